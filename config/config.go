// Package config loads the settings of a simulation run from .env files,
// NSSIM_* environment variables, and an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

// EnvPrefix starts the name of every environment variable read by Load.
const EnvPrefix = "NSSIM_"

// ErrInvalid is returned when a setting cannot be used.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds the settings of a simulation run.
// All fields must be listed for strict YAML parsing.
type Config struct {
	Resolution  string `yaml:"resolution"`
	Scheduler   string `yaml:"scheduler"`
	Realtime    bool   `yaml:"realtime"`
	SyncMode    string `yaml:"sync_mode"`
	HardLimit   string `yaml:"hard_limit"`
	LogLevel    string `yaml:"log_level"`
	TraceDB     string `yaml:"trace_db"`
	MonitorPort int    `yaml:"monitor_port"`
	Topology    string `yaml:"topology"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Resolution: simtime.NS.String(),
		Scheduler:  scheduler.KindHeap.String(),
		SyncMode:   sim.SyncBestEffort.String(),
		HardLimit:  sim.DefaultHardLimit.String(),
		LogLevel:   logrus.InfoLevel.String(),
	}
}

// Load builds a Config from the defaults, then the YAML file at path if path
// is not empty, then the environment. Variables from envFiles, or from .env
// when none is given, are added to the environment without overriding it. A
// missing env file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", f, err)
		}
	}

	c := Default()

	if path != "" {
		if err := c.readYAML(path); err != nil {
			return nil, err
		}
	}

	if err := c.readEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"resolution": c.Resolution,
		"scheduler":  c.Scheduler,
		"realtime":   c.Realtime,
	}).Debug("config: loaded")

	return c, nil
}

func (c *Config) readYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	return nil
}

func (c *Config) readEnv() error {
	strs := map[string]*string{
		"RESOLUTION": &c.Resolution,
		"SCHEDULER":  &c.Scheduler,
		"SYNC_MODE":  &c.SyncMode,
		"HARD_LIMIT": &c.HardLimit,
		"LOG_LEVEL":  &c.LogLevel,
		"TRACE_DB":   &c.TraceDB,
		"TOPOLOGY":   &c.Topology,
	}

	for name, field := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*field = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "REALTIME"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sREALTIME=%q", ErrInvalid, EnvPrefix, v)
		}
		c.Realtime = b
	}

	if v, ok := os.LookupEnv(EnvPrefix + "MONITOR_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sMONITOR_PORT=%q", ErrInvalid, EnvPrefix, v)
		}
		c.MonitorPort = port
	}

	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := simtime.ParseUnit(c.Resolution); err != nil {
		return fmt.Errorf("%w: resolution: %w", ErrInvalid, err)
	}

	if _, err := scheduler.ParseKind(c.Scheduler); err != nil {
		return fmt.Errorf("%w: scheduler: %w", ErrInvalid, err)
	}

	if _, err := sim.ParseSyncMode(c.SyncMode); err != nil {
		return fmt.Errorf("%w: sync mode: %w", ErrInvalid, err)
	}

	if d, err := time.ParseDuration(c.HardLimit); err != nil || d <= 0 {
		return fmt.Errorf("%w: hard limit %q", ErrInvalid, c.HardLimit)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level: %w", ErrInvalid, err)
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor port %d", ErrInvalid, c.MonitorPort)
	}

	return nil
}

// Apply sets the time resolution and the log level, then creates the
// simulator the settings describe.
func (c *Config) Apply() (s sim.Simulator, err error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	unit, _ := simtime.ParseUnit(c.Resolution)
	kind, _ := scheduler.ParseKind(c.Scheduler)
	mode, _ := sim.ParseSyncMode(c.SyncMode)
	limit, _ := time.ParseDuration(c.HardLimit)
	level, _ := logrus.ParseLevel(c.LogLevel)

	logrus.SetLevel(level)

	if err := setResolution(unit); err != nil {
		return nil, err
	}

	b := sim.MakeBuilder().WithScheduler(kind)
	if c.Realtime {
		b = b.WithRealtime().WithSyncMode(mode).WithHardLimit(limit)
	}

	return b.Build(), nil
}

func setResolution(unit simtime.Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !errors.Is(e, simtime.ErrResolutionFrozen) {
				panic(r)
			}
			err = e
		}
	}()

	simtime.SetResolution(unit)

	return nil
}
