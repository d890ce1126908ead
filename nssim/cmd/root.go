// Package cmd provides the command-line interface of nssim.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/nssim/config"
	"github.com/sarchlab/nssim/metrics"
	"github.com/sarchlab/nssim/monitoring"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
	"github.com/sarchlab/nssim/tracing"
)

var (
	configPath  string
	logLevel    string
	traceDB     string
	monitorPort int
	openBrowser bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nssim",
	Short: "Discrete-event network simulator with Nix-vector routing",
	Long: `nssim runs discrete-event network simulations. It can route ` +
		`packets over a topology described in YAML or JSON, stress the ` +
		`event engines, and benchmark the event schedulers.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML configuration file")
	flags.StringVar(&logLevel, "log-level", "", "log level, overrides the configuration")
	flags.StringVar(&traceDB, "trace-db", "", "record events into this SQLite database")
	flags.IntVar(&monitorPort, "monitor-port", 0, "serve the monitor on this port")
	flags.BoolVar(&openBrowser, "open", false, "open the monitor in a browser")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadConfig reads the configuration file and applies the global flags on
// top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("trace-db") {
		cfg.TraceDB = traceDB
	}
	if flags.Changed("monitor-port") {
		cfg.MonitorPort = monitorPort
	}

	return cfg, cfg.Validate()
}

// session is the simulator of one command plus the tooling attached to it.
type session struct {
	cfg      *config.Config
	sim      sim.Simulator
	registry *prometheus.Registry
	recorder *tracing.Recorder
	monitor  *monitoring.Monitor
}

func newSession(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	s, err := cfg.Apply()
	if err != nil {
		return nil, err
	}

	ss := &session{
		cfg:      cfg,
		sim:      s,
		registry: prometheus.NewRegistry(),
	}

	if _, err := metrics.NewEngineCollector(ss.registry, s); err != nil {
		ss.close()
		return nil, err
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		s.AcceptHook(tracing.NewEventLogger(nil))
	}

	if cfg.TraceDB != "" {
		ss.recorder, err = tracing.NewRecorder(cfg.TraceDB)
		if err != nil {
			ss.close()
			return nil, err
		}
		tracing.CollectTrace(s, ss.recorder)
	}

	if cfg.MonitorPort != 0 {
		ss.monitor = monitoring.NewMonitor().
			WithPortNumber(cfg.MonitorPort).
			WithGatherer(ss.registry)
		ss.monitor.RegisterSimulator(s)

		url, err := ss.monitor.StartServer()
		if err != nil {
			ss.close()
			return nil, err
		}

		if openBrowser {
			if err := ss.monitor.OpenBrowser(); err != nil {
				logrus.WithError(err).Warn("nssim: cannot open browser")
			}
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Monitor: %s\n", url)
	}

	return ss, nil
}

// run runs the simulator. A realtime simulator keeps waiting for events
// from other goroutines, so it is stopped after horizon.
func (ss *session) run(horizon simtime.Time) {
	if _, ok := ss.sim.(*sim.RealtimeSimulator); ok {
		ss.sim.StopAt(horizon)
	}

	ss.sim.Run()
}

func (ss *session) close() {
	ss.sim.Destroy()

	if ss.recorder != nil {
		if err := ss.recorder.Close(); err != nil {
			logrus.WithError(err).Error("nssim: closing trace")
		}
	}

	if ss.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = ss.monitor.StopServer(ctx)
	}
}
