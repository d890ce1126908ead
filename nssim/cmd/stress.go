package cmd

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
	"github.com/sarchlab/nssim/stats"
)

// ErrInconsistent is returned when the stress run observes events out of
// sequence.
var ErrInconsistent = errors.New("event sequence violated")

var (
	stressThreads   int
	stressDuration  string
	stressScheduler string
	stressRealtime  bool
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Schedule events from many goroutines while the engine runs",
	Long: `Runs the sequence A, B, C, D every 10us on the main loop while ` +
		`background goroutines keep scheduling events 1us ahead, and ` +
		`checks that the sequence is never observed out of order.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("scheduler") {
			cfg.Scheduler = stressScheduler
		}
		if cmd.Flags().Changed("realtime") {
			cfg.Realtime = stressRealtime
		}
		if _, err := scheduler.ParseKind(cfg.Scheduler); err != nil {
			return err
		}

		duration, err := simtime.Parse(stressDuration)
		if err != nil {
			return err
		}

		ss, err := newSession(cmd, cfg)
		if err != nil {
			return err
		}
		defer ss.close()

		if ss.monitor != nil {
			bar := ss.monitor.TrackSimulationTime(ss.sim, duration)
			defer ss.monitor.CompleteProgressBar(bar)
		}

		r := newStressRun(ss.sim, duration)
		r.run(stressThreads)

		return r.report(cmd.OutOrStdout())
	},
}

func init() {
	flags := stressCmd.Flags()
	flags.IntVar(&stressThreads, "threads", 10, "number of background goroutines")
	flags.StringVar(&stressDuration, "duration", "1s", "simulated duration")
	flags.StringVar(&stressScheduler, "scheduler", "heap", "list, heap, map or calendar")
	flags.BoolVar(&stressRealtime, "realtime", false, "use the realtime engine")

	rootCmd.AddCommand(stressCmd)
}

// stressRun keeps four counters that advance in sequence order. Every event
// checks that they are equal or that exactly one leads by one.
type stressRun struct {
	s        sim.Simulator
	duration simtime.Time

	a, b, c, d int
	violation  string

	stop       atomic.Bool
	background int
	early      int

	// turnaround is the wall time, in microseconds, from scheduling a
	// background event to its invocation. Only the main loop touches it.
	turnaround *stats.Histogram
}

func newStressRun(s sim.Simulator, duration simtime.Time) *stressRun {
	return &stressRun{
		s:          s,
		duration:   duration,
		turnaround: stats.NewHistogram(100),
	}
}

func (r *stressRun) check(where string) {
	a, b, c, d := r.a, r.b, r.c, r.d

	ok := (a == b && b == c && c == d) ||
		(a == b+1 && b == c && c == d) ||
		(a == b && b == c+1 && c == d) ||
		(a == b && b == c && c == d+1)

	if !ok && r.violation == "" {
		r.violation = fmt.Sprintf("%s: a=%d b=%d c=%d d=%d", where, a, b, c, d)
	}
}

func (r *stressRun) step(where string, counter *int) {
	r.check(where)
	*counter++
	r.check(where)
}

func (r *stressRun) eventA() {
	r.step("A", &r.a)
	r.s.Schedule(simtime.MicroSeconds(10), r.eventB)
}

func (r *stressRun) eventB() {
	r.step("B", &r.b)
	r.s.Schedule(simtime.MicroSeconds(10), r.eventC)
}

func (r *stressRun) eventC() {
	r.step("C", &r.c)
	r.s.Schedule(simtime.MicroSeconds(10), r.eventD)
}

func (r *stressRun) eventD() {
	r.step("D", &r.d)

	if r.s.Now().Before(r.duration) {
		r.s.Schedule(simtime.MicroSeconds(10), r.eventA)
		return
	}

	r.stop.Store(true)
	r.s.Stop()
}

func (r *stressRun) backgroundLoop(ctx uint32, wg *sync.WaitGroup) {
	defer wg.Done()

	for !r.stop.Load() {
		var done atomic.Bool
		scheduledAt := r.s.Now()
		wall := time.Now()

		r.s.ScheduleWithContext(ctx, simtime.MicroSeconds(1), func() {
			r.check("X")
			if r.s.Now().Before(scheduledAt.Add(simtime.MicroSeconds(1))) {
				r.early++
			}
			r.background++
			r.turnaround.AddValue(float64(time.Since(wall).Microseconds()))
			done.Store(true)
		})

		for !done.Load() && !r.stop.Load() {
			time.Sleep(10 * time.Microsecond)
		}
	}
}

func (r *stressRun) run(threads int) {
	var wg sync.WaitGroup

	r.s.Schedule(simtime.Zero(), r.eventA)

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go r.backgroundLoop(uint32(i), &wg)
	}

	r.s.Run()
	r.stop.Store(true)
	wg.Wait()
}

func (r *stressRun) report(w io.Writer) error {
	fmt.Fprintf(w, "Simulated %s, %d events\n", r.s.Now(), r.s.GetEventCount())
	fmt.Fprintf(w, "Sequences: %d, background events: %d, early: %d\n",
		r.d, r.background, r.early)

	if rt, ok := r.s.(*sim.RealtimeSimulator); ok {
		fmt.Fprintf(w, "Max lag: %s\n", rt.MaxLag())
	}

	if r.turnaround.Count() > 0 {
		fmt.Fprintln(w, "Background turnaround (us):")
		fmt.Fprint(w, r.turnaround)
	}

	if r.violation != "" {
		return fmt.Errorf("%w: %s", ErrInconsistent, r.violation)
	}

	if r.early > 0 {
		return fmt.Errorf("%w: %d background events fired early", ErrInconsistent, r.early)
	}

	return nil
}
