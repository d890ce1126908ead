package tracing_test

import (
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
	"github.com/sarchlab/nssim/tracing"
)

var _ = Describe("EventLogger", func() {
	var (
		s      sim.Simulator
		logger *logrus.Logger
		hook   *test.Hook
	)

	BeforeEach(func() {
		s = sim.MakeBuilder().Build()
		logger, hook = test.NewNullLogger()
	})

	AfterEach(func() {
		s.Destroy()
	})

	It("should log each event with its time and context", func() {
		logger.SetLevel(logrus.TraceLevel)
		s.AcceptHook(tracing.NewEventLogger(logger))

		s.Schedule(simtime.MilliSeconds(1), func() {})
		s.ScheduleWithContext(7, simtime.MilliSeconds(2), func() {})
		s.Run()

		entries := hook.AllEntries()
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Data["time"]).To(Equal(simtime.MilliSeconds(1).String()))
		Expect(entries[0].Data).NotTo(HaveKey("context"))
		Expect(entries[1].Data["context"]).To(Equal(uint32(7)))
	})

	It("should stay quiet below its level", func() {
		logger.SetLevel(logrus.InfoLevel)
		s.AcceptHook(tracing.NewEventLogger(logger))

		s.Schedule(simtime.MilliSeconds(1), func() {})
		s.Run()

		Expect(hook.AllEntries()).To(BeEmpty())
	})

	It("should log at a chosen level", func() {
		logger.SetLevel(logrus.InfoLevel)
		s.AcceptHook(tracing.NewEventLogger(logger).WithLevel(logrus.InfoLevel))

		s.Schedule(simtime.MilliSeconds(1), func() {})
		s.Run()

		Expect(hook.LastEntry().Level).To(Equal(logrus.InfoLevel))
	})
})
