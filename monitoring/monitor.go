// Package monitoring turns a running simulation into an HTTP server that can
// be inspected and controlled from outside.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"

	"github.com/sarchlab/nssim/netmodel"
	"github.com/sarchlab/nssim/nix"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

// ErrNotStarted is returned when the server is used before StartServer.
var ErrNotStarted = errors.New("monitoring: server not started")

// Monitor serves the state of a simulation over HTTP.
type Monitor struct {
	runID      string
	sim        sim.Simulator
	network    *netmodel.Network
	domain     *nix.Domain
	gatherer   prometheus.Gatherer
	portNumber int

	profileDuration time.Duration

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		runID:           xid.New().String(),
		gatherer:        prometheus.DefaultGatherer,
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// refused and a random port is used instead.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		logrus.WithField("port", portNumber).
			Warn("monitoring: port not allowed, using a random port")
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithGatherer sets where /metrics takes its metrics from.
func (m *Monitor) WithGatherer(g prometheus.Gatherer) *Monitor {
	m.gatherer = g
	return m
}

// RunID identifies the simulation run being served.
func (m *Monitor) RunID() string {
	return m.runID
}

// RegisterSimulator registers the simulator to control.
func (m *Monitor) RegisterSimulator(s sim.Simulator) {
	m.sim = s
}

// RegisterNetwork registers the network and its routing domain. The domain
// may be nil.
func (m *Monitor) RegisterNetwork(n *netmodel.Network, d *nix.Domain) {
	m.network = n
	m.domain = d
}

// CreateProgressBar creates a bar counting packets, events or any other
// unit of work, and lists it until it is completed.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	return m.addProgressBar(name, "items", total)
}

// TrackSimulationTime creates a bar that follows the simulation clock of s
// up to horizon.
func (m *Monitor) TrackSimulationTime(s sim.Simulator, horizon simtime.Time) *ProgressBar {
	bar := m.addProgressBar("simulation time", "steps", uint64(max(horizon.GetTimeStep(), 0)))
	s.AcceptHook(simTimeProgress{bar: bar})

	return bar
}

func (m *Monitor) addProgressBar(name, unit string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		id:    xid.New().String(),
		name:  name,
		unit:  unit,
		start: time.Now(),
		total: total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", m.index)
	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.resume)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/nodes", m.listNodes)
	r.HandleFunc("/api/node/{name}", m.nodeDetails)
	r.HandleFunc("/api/field/{json}", m.fieldValue)
	r.HandleFunc("/api/route/{from}/{to}", m.routingPath)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))

	return r
}

// StartServer starts serving in the background and returns the URL of the
// server.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := m.URL()
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("monitoring: server failed")
		}
	}()

	return url, nil
}

// URL returns the address the server listens on.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// OpenBrowser opens the monitor in the default web browser.
func (m *Monitor) OpenBrowser() error {
	if m.listener == nil {
		return ErrNotStarted
	}

	return browser.OpenURL(m.URL())
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return ErrNotStarted
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	rsp := struct {
		RunID     string   `json:"run_id"`
		Endpoints []string `json:"endpoints"`
	}{
		RunID: m.runID,
		Endpoints: []string{
			"/api/pause", "/api/continue", "/api/now", "/api/nodes",
			"/api/node/{name}", "/api/field/{json}", "/api/route/{from}/{to}",
			"/api/progress", "/api/resource", "/api/profile", "/metrics",
		},
	}

	writeJSON(w, rsp)
}

func (m *Monitor) simulatorOr503(w http.ResponseWriter) sim.Simulator {
	if m.sim == nil {
		http.Error(w, "no simulator registered", http.StatusServiceUnavailable)
	}

	return m.sim
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	s := m.simulatorOr503(w)
	if s == nil {
		return
	}

	s.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) resume(w http.ResponseWriter, _ *http.Request) {
	s := m.simulatorOr503(w)
	if s == nil {
		return
	}

	s.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	s := m.simulatorOr503(w)
	if s == nil {
		return
	}

	rsp := struct {
		Now    float64 `json:"now"`
		Time   string  `json:"time"`
		Events uint64  `json:"events"`
		State  string  `json:"state"`
	}{
		Now:    s.Now().Seconds(),
		Time:   s.Now().String(),
		Events: s.GetEventCount(),
		State:  s.State().String(),
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	if m.network == nil {
		http.Error(w, "no network registered", http.StatusServiceUnavailable)
		return
	}

	names := make([]string, 0, m.network.NumNodes())
	for _, n := range m.network.Nodes() {
		names = append(names, n.Name())
	}

	writeJSON(w, names)
}

// nodeState is the view of a node served to clients.
type nodeState struct {
	ID        int
	Name      string
	Addresses []string
	Devices   []deviceState
	Received  uint64
	Dropped   uint64
	Routing   *routingState
}

type deviceState struct {
	Name      string
	Kind      string
	Up        bool
	LinkUp    bool
	Addresses []string
}

type routingState struct {
	CachedVectors int
	CachedRoutes  int
	Stats         nix.Stats
}

func (m *Monitor) snapshotNode(n *netmodel.Node) *nodeState {
	st := &nodeState{
		ID:       int(n.ID()),
		Name:     n.Name(),
		Received: n.Received(),
		Dropped:  n.Dropped(),
	}

	for _, a := range n.Addresses() {
		st.Addresses = append(st.Addresses, a.String())
	}

	for _, d := range n.Devices() {
		ds := deviceState{
			Name:   d.Name(),
			Kind:   d.Kind().String(),
			Up:     d.IsUp(),
			LinkUp: d.IsLinkUp(),
		}
		for _, p := range d.Addresses() {
			ds.Addresses = append(ds.Addresses, p.String())
		}
		st.Devices = append(st.Devices, ds)
	}

	if m.domain != nil {
		if r := m.domain.Routing(n); r != nil {
			st.Routing = &routingState{
				CachedVectors: r.NumCachedVectors(),
				CachedRoutes:  r.NumCachedRoutes(),
				Stats:         r.Stats(),
			}
		}
	}

	return st
}

func (m *Monitor) findNodeOr404(w http.ResponseWriter, name string) *netmodel.Node {
	var node *netmodel.Node
	if m.network != nil {
		node = m.network.NodeByName(name)
	}

	if node == nil {
		http.Error(w, "Node not found", http.StatusNotFound)
	}

	return node
}

func (m *Monitor) nodeDetails(w http.ResponseWriter, r *http.Request) {
	node := m.findNodeOr404(w, mux.Vars(r)["name"])
	if node == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.snapshotNode(node))
	serializer.SetMaxDepth(3)

	if err := serializer.Serialize(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type fieldReq struct {
	NodeName  string `json:"node_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}
	if err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	node := m.findNodeOr404(w, req.NodeName)
	if node == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.snapshotNode(node))
	serializer.SetMaxDepth(1)

	if err := serializer.SetEntryPoint(strings.Split(req.FieldName, ".")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := serializer.Serialize(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Monitor) routingPath(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if m.domain == nil {
		http.Error(w, "no routing domain registered", http.StatusServiceUnavailable)
		return
	}

	from := m.findNodeOr404(w, vars["from"])
	if from == nil {
		return
	}

	to, err := netip.ParseAddr(vars["to"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buf := bytes.NewBuffer(nil)
	if err := m.domain.PrintRoutingPath(from, to, buf); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	now := time.Now()
	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot(now))
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
