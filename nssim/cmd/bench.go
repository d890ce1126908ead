package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iti/rngstream"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/simtime"
	"github.com/sarchlab/nssim/stats"
)

var (
	benchEvents    int
	benchScheduler string
	benchHorizon   string
	benchSeed      string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare the insert and run rates of the schedulers",
	Long: `Schedules events at random times within the horizon, then runs ` +
		`them, and reports the rates for each scheduler. The delays come ` +
		`from a named random stream, so runs with the same seed name ` +
		`schedule the same events.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		kinds, err := benchKinds(benchScheduler)
		if err != nil {
			return err
		}

		horizon, err := simtime.Parse(benchHorizon)
		if err != nil {
			return err
		}

		if cfg.TraceDB != "" || cfg.MonitorPort != 0 || cfg.Realtime {
			logrus.Info("nssim: bench ignores tracing, monitoring and realtime settings")
		}

		cfg.TraceDB = ""
		cfg.MonitorPort = 0
		cfg.Realtime = false

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-10s %14s %14s\n", "scheduler", "insert ev/s", "run ev/s")

		for _, kind := range kinds {
			cfg.Scheduler = kind.String()

			ss, err := newSession(cmd, cfg)
			if err != nil {
				return err
			}

			b := newBenchRun(ss, horizon)
			b.run(benchEvents)
			b.report(w, kind)

			ss.close()
		}

		return nil
	},
}

func init() {
	flags := benchCmd.Flags()
	flags.IntVar(&benchEvents, "events", 1000000, "number of events to schedule")
	flags.StringVar(&benchScheduler, "scheduler", "all",
		"list, heap, map, calendar or all")
	flags.StringVar(&benchHorizon, "horizon", "1s", "latest event time")
	flags.StringVar(&benchSeed, "seed", "bench", "name of the random stream")

	rootCmd.AddCommand(benchCmd)
}

func benchKinds(name string) ([]scheduler.Kind, error) {
	if strings.EqualFold(name, "all") {
		return scheduler.AllKinds, nil
	}

	kind, err := scheduler.ParseKind(name)
	if err != nil {
		return nil, err
	}

	return []scheduler.Kind{kind}, nil
}

type benchRun struct {
	ss      *session
	horizon simtime.Time

	insert, exec time.Duration
	events       int

	// gaps counts the virtual time between consecutive events in
	// nanoseconds.
	gaps *stats.Histogram
	last simtime.Time
}

func newBenchRun(ss *session, horizon simtime.Time) *benchRun {
	return &benchRun{
		ss:      ss,
		horizon: horizon,
	}
}

func (b *benchRun) run(n int) {
	rng := rngstream.New(benchSeed)
	horizon := b.horizon.Seconds()

	delays := make([]simtime.Time, n)
	for i := range delays {
		delays[i] = simtime.Seconds(rng.RandU01() * horizon)
	}

	width := 1.0
	if n > 0 {
		width = max(horizon*1e9/float64(min(n, stats.MaxBins-1)), 1)
	}
	b.gaps = stats.NewHistogram(width)

	s := b.ss.sim
	fn := func() {
		now := s.Now()
		b.gaps.AddValue(now.Sub(b.last).Seconds() * 1e9)
		b.last = now
	}

	start := time.Now()
	for _, d := range delays {
		s.Schedule(d, fn)
	}
	b.insert = time.Since(start)

	start = time.Now()
	s.Run()
	b.exec = time.Since(start)

	b.events = n
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(n) / d.Seconds()
}

func (b *benchRun) report(w io.Writer, kind scheduler.Kind) {
	fmt.Fprintf(w, "%-10s %14.0f %14.0f\n",
		kind, rate(b.events, b.insert), rate(b.events, b.exec))

	if b.gaps.Count() == 0 {
		return
	}

	busiest := 0
	for i := 0; i < b.gaps.GetNBins(); i++ {
		if b.gaps.GetBinCount(i) > b.gaps.GetBinCount(busiest) {
			busiest = i
		}
	}

	logrus.WithFields(logrus.Fields{
		"scheduler": kind,
		"bins":      b.gaps.GetNBins(),
		"mode_ns":   b.gaps.GetBinStart(busiest),
	}).Debug("nssim: inter-event gaps")
}
