// Package tracing records simulation activity into a SQLite database.
package tracing

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// DefaultBatchSize is the number of buffered records that triggers a flush.
const DefaultBatchSize = 100000

// EventRecord is one invoked event.
type EventRecord struct {
	Seq     uint64
	Time    float64
	Steps   int64
	Context uint32
}

// PacketRecord is one packet leaving the network, either delivered or
// dropped.
type PacketRecord struct {
	UID    uint64
	Kind   string
	Node   string
	Time   float64
	Src    string
	Dst    string
	Size   int
	Hops   int
	Reason string
}

// Recorder buffers records and writes them to SQLite in batches.
type Recorder struct {
	*sql.DB

	eventStmt  *sql.Stmt
	packetStmt *sql.Stmt

	lock      sync.Mutex
	dbName    string
	batchSize int
	events    []EventRecord
	packets   []PacketRecord
	closed    bool
}

// NewRecorder creates a database at path plus the ".sqlite3" extension. An
// empty path picks a unique name. It is an error for the file to exist.
func NewRecorder(path string) (*Recorder, error) {
	r := &Recorder{
		dbName:    path,
		batchSize: DefaultBatchSize,
	}

	if r.dbName == "" {
		r.dbName = "nssim_trace_" + xid.New().String()
	}

	filename := r.FileName()
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("tracing: file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}
	r.DB = db

	if err := r.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	logrus.WithField("file", filename).Info("tracing: recording trace")

	atexit.Register(func() { r.Close() })

	return r, nil
}

// WithBatchSize sets how many records are buffered before a flush.
func (r *Recorder) WithBatchSize(n int) *Recorder {
	if n <= 0 {
		panic("tracing: batch size must be positive")
	}

	r.batchSize = n
	return r
}

// FileName returns the name of the database file.
func (r *Recorder) FileName() string {
	return r.dbName + ".sqlite3"
}

func (r *Recorder) createTables() error {
	stmts := []string{
		`CREATE TABLE events (
	seq INTEGER PRIMARY KEY,
	time REAL,
	steps INTEGER,
	context INTEGER
);`,
		`CREATE TABLE packets (
	uid INTEGER,
	kind TEXT,
	node TEXT,
	time REAL,
	src TEXT,
	dst TEXT,
	size INTEGER,
	hops INTEGER,
	reason TEXT
);`,
		`CREATE INDEX packets_uid ON packets(uid);`,
	}

	for _, s := range stmts {
		if _, err := r.Exec(s); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	var err error

	r.eventStmt, err = r.Prepare("INSERT INTO events VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}

	r.packetStmt, err = r.Prepare(
		"INSERT INTO packets VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")

	return err
}

// RecordEvent buffers an event record.
func (r *Recorder) RecordEvent(e EventRecord) {
	r.lock.Lock()
	r.events = append(r.events, e)
	full := len(r.events)+len(r.packets) >= r.batchSize
	r.lock.Unlock()

	if full {
		r.Flush()
	}
}

// RecordPacket buffers a packet record.
func (r *Recorder) RecordPacket(p PacketRecord) {
	r.lock.Lock()
	r.packets = append(r.packets, p)
	full := len(r.events)+len(r.packets) >= r.batchSize
	r.lock.Unlock()

	if full {
		r.Flush()
	}
}

// Flush writes all the buffered records to the database.
func (r *Recorder) Flush() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed || len(r.events)+len(r.packets) == 0 {
		return
	}

	if err := r.flush(); err != nil {
		panic(err)
	}
}

func (r *Recorder) flush() error {
	tx, err := r.Begin()
	if err != nil {
		return err
	}

	for _, e := range r.events {
		_, err = tx.Stmt(r.eventStmt).Exec(e.Seq, e.Time, e.Steps, e.Context)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("tracing: insert event %d: %w", e.Seq, err)
		}
	}

	for _, p := range r.packets {
		_, err = tx.Stmt(r.packetStmt).Exec(
			p.UID, p.Kind, p.Node, p.Time, p.Src, p.Dst, p.Size, p.Hops, p.Reason)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("tracing: insert packet %d: %w", p.UID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"events":  len(r.events),
		"packets": len(r.packets),
	}).Debug("tracing: flushed")

	r.events = nil
	r.packets = nil

	return nil
}

// Close flushes the buffers and closes the database. Closing twice is a
// no-op.
func (r *Recorder) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return nil
	}

	var err error
	if len(r.events)+len(r.packets) > 0 {
		err = r.flush()
	}

	r.closed = true
	r.eventStmt.Close()
	r.packetStmt.Close()

	if cerr := r.DB.Close(); err == nil {
		err = cerr
	}

	return err
}
