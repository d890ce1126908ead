package tracing

import (
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/hooking"
	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

// EventLogger is a hook that logs every event before it is invoked.
type EventLogger struct {
	logger *logrus.Logger
	level  logrus.Level
}

// NewEventLogger creates a hook that writes to logger at the trace level. A
// nil logger means the standard logger.
func NewEventLogger(logger *logrus.Logger) *EventLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &EventLogger{
		logger: logger,
		level:  logrus.TraceLevel,
	}
}

// WithLevel sets the level events are logged at.
func (h *EventLogger) WithLevel(level logrus.Level) *EventLogger {
	h.level = level
	return h
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != sim.HookPosBeforeEvent || !h.logger.IsLevelEnabled(h.level) {
		return
	}

	ev := ctx.Item.(*scheduler.Event)

	entry := h.logger.WithFields(logrus.Fields{
		"time": simtime.FromSteps(ev.Key.Timestamp).String(),
		"uid":  ev.Key.UID,
	})

	if ev.Key.Context != sim.NoContext {
		entry = entry.WithField("context", ev.Key.Context)
	}

	entry.Log(h.level, "event")
}
