// Package metrics exposes simulation statistics as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/nssim/hooking"
	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

// EngineCollector counts the events a simulator fires. It is a hook and
// must be attached to the simulator it observes.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	EventsTotal    *prometheus.CounterVec
	EventDuration  prometheus.Histogram
	SimulationTime prometheus.Gauge
	Runs           prometheus.Counter

	started time.Time
}

// NewEngineCollector registers engine metrics and attaches the collector to
// s. A nil registerer means the default registry.
func NewEngineCollector(reg prometheus.Registerer, s sim.Simulator) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nssim_events_total",
		Help: "Number of events fired, by whether they carry a context.",
	}, []string{"context"})
	if err := register(reg, events, "nssim_events_total"); err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nssim_event_wall_duration_seconds",
		Help:    "Wall-clock time spent running one event.",
		Buckets: prometheus.ExponentialBuckets(1e-7, 10, 8),
	})
	if err := register(reg, duration, "nssim_event_wall_duration_seconds"); err != nil {
		return nil, err
	}

	now := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nssim_simulation_time_seconds",
		Help: "Virtual time of the last event fired.",
	})
	if err := register(reg, now, "nssim_simulation_time_seconds"); err != nil {
		return nil, err
	}

	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nssim_runs_total",
		Help: "Number of times Run returned.",
	})
	if err := register(reg, runs, "nssim_runs_total"); err != nil {
		return nil, err
	}

	if rt, ok := s.(*sim.RealtimeSimulator); ok {
		lag := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nssim_realtime_max_lag_seconds",
			Help: "Largest delay of the realtime engine behind the wall clock.",
		}, func() float64 {
			return rt.MaxLag().Seconds()
		})
		if err := register(reg, lag, "nssim_realtime_max_lag_seconds"); err != nil {
			return nil, err
		}
	}

	c := &EngineCollector{
		gatherer:       gatherer,
		EventsTotal:    events,
		EventDuration:  duration,
		SimulationTime: now,
		Runs:           runs,
	}

	s.AcceptHook(c)

	return c, nil
}

// Gatherer returns the gatherer the metrics are registered with.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// Func records the hook sites of the simulator.
func (c *EngineCollector) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosBeforeEvent:
		c.started = time.Now()
	case sim.HookPosAfterEvent:
		c.EventDuration.Observe(time.Since(c.started).Seconds())

		ev := ctx.Item.(*scheduler.Event)

		label := "node"
		if ev.Key.Context == sim.NoContext {
			label = "none"
		}
		c.EventsTotal.WithLabelValues(label).Inc()

		c.SimulationTime.Set(simtime.FromSteps(ev.Key.Timestamp).Seconds())
	case sim.HookPosSimulationEnd:
		c.Runs.Inc()
	}
}

func register(reg prometheus.Registerer, c prometheus.Collector, name string) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return fmt.Errorf("metrics: collector %s already registered", name)
		}
		return err
	}
	return nil
}
