package sim

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/simtime"
)

var _ = Describe("RealtimeSimulator", func() {
	var s *RealtimeSimulator

	BeforeEach(func() {
		s = NewRealtimeSimulator(
			scheduler.NewHeapScheduler(), SyncBestEffort, DefaultHardLimit)
	})

	AfterEach(func() {
		s.Destroy()
	})

	It("should pace events against the wall clock", func() {
		var fired []simtime.Time

		s.Schedule(simtime.MilliSeconds(10), func() { fired = append(fired, s.Now()) })
		s.Schedule(simtime.MilliSeconds(20), func() { fired = append(fired, s.Now()) })
		s.StopAt(simtime.MilliSeconds(20))

		start := time.Now()
		s.Run()
		elapsed := time.Since(start)

		gomega.Expect(fired).To(gomega.Equal([]simtime.Time{
			simtime.MilliSeconds(10), simtime.MilliSeconds(20),
		}))
		gomega.Expect(elapsed).To(gomega.BeNumerically(">=", 20*time.Millisecond))
		gomega.Expect(s.State()).To(gomega.Equal(StateStopped))
	})

	It("should wait for events from other goroutines", func() {
		fired := make(chan uint32, 1)

		go func() {
			time.Sleep(5 * time.Millisecond)
			s.ScheduleWithContext(42, simtime.Zero(), func() {
				fired <- s.GetContext()
				s.Stop()
			})
		}()

		s.Run()

		gomega.Eventually(fired).Should(gomega.Receive(gomega.Equal(uint32(42))))
	})

	It("should wake up for an earlier event", func() {
		var order []string

		s.Schedule(simtime.Seconds(10), func() { order = append(order, "late") })

		go func() {
			time.Sleep(5 * time.Millisecond)
			s.ScheduleWithContext(NoContext, simtime.MilliSeconds(1), func() {
				order = append(order, "early")
				s.Stop()
			})
		}()

		start := time.Now()
		s.Run()

		gomega.Expect(order).To(gomega.Equal([]string{"early"}))
		gomega.Expect(time.Since(start)).To(gomega.BeNumerically("<", 5*time.Second))
	})

	It("should schedule relative to the wall clock", func() {
		var rt, at simtime.Time

		s.Schedule(simtime.MilliSeconds(1), func() {
			time.Sleep(20 * time.Millisecond)

			rt = s.RealtimeNow()
			s.ScheduleRealtimeNow(func() {
				at = s.Now()
				s.Stop()
			})
		})

		s.Run()

		gomega.Expect(rt.After(simtime.MilliSeconds(20))).To(gomega.BeTrue())
		gomega.Expect(at.Before(rt)).To(gomega.BeFalse())
	})

	It("should panic when a hard limit is exceeded", func() {
		s = NewRealtimeSimulator(
			scheduler.NewHeapScheduler(), SyncHardLimit, time.Millisecond)

		s.Schedule(simtime.Zero(), func() { time.Sleep(30 * time.Millisecond) })
		s.Schedule(simtime.MilliSeconds(1), func() {})
		s.StopAt(simtime.MilliSeconds(2))

		err := recoverError(s.Run)

		gomega.Expect(errors.Is(err, ErrHardLimit)).To(gomega.BeTrue())
	})

	It("should keep running late events in best effort mode", func() {
		s = NewRealtimeSimulator(
			scheduler.NewHeapScheduler(), SyncBestEffort, time.Millisecond)

		count := 0
		s.Schedule(simtime.Zero(), func() { time.Sleep(30 * time.Millisecond) })
		s.Schedule(simtime.MilliSeconds(1), func() { count++ })
		s.StopAt(simtime.MilliSeconds(2))

		s.Run()

		gomega.Expect(count).To(gomega.Equal(1))
		gomega.Expect(s.MaxLag()).To(gomega.BeNumerically(">", 10*time.Millisecond))
	})

	It("should parse sync modes", func() {
		mode, err := ParseSyncMode("hard-limit")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(mode).To(gomega.Equal(SyncHardLimit))

		_, err = ParseSyncMode("eventually")
		gomega.Expect(err).To(gomega.MatchError(ErrUnknownSyncMode))
	})
})
