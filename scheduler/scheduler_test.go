package scheduler_test

import (
	"github.com/iti/rngstream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nssim/scheduler"
)

type input struct {
	ts  int64
	uid uint64
}

func makeEvents(inputs []input) []*scheduler.Event {
	events := make([]*scheduler.Event, len(inputs))
	for i, in := range inputs {
		events[i] = scheduler.NewEvent(
			in.ts, in.uid, scheduler.NoContext, scheduler.Func(func() {}))
	}
	return events
}

func drain(s scheduler.Scheduler) []scheduler.EventKey {
	keys := make([]scheduler.EventKey, 0, s.Len())
	for !s.IsEmpty() {
		keys = append(keys, s.RemoveNext().Key)
	}
	return keys
}

func randomInputs(name string, n int, spread float64) []input {
	rng := rngstream.New(name)

	inputs := make([]input, n)
	for i := range inputs {
		inputs[i] = input{
			ts:  int64(rng.RandU01() * spread),
			uid: uint64(i),
		}
	}

	return inputs
}

func expectTotalOrder(keys []scheduler.EventKey) {
	for i := 1; i < len(keys); i++ {
		prev, cur := keys[i-1], keys[i]
		Expect(prev.Timestamp).To(BeNumerically("<=", cur.Timestamp))
		if prev.Timestamp == cur.Timestamp {
			Expect(prev.UID).To(BeNumerically("<", cur.UID))
		}
	}
}

var _ = Describe("Scheduler", func() {
	for _, kind := range scheduler.AllKinds {
		kind := kind

		Context(kind.String(), func() {
			var s scheduler.Scheduler

			BeforeEach(func() {
				s = scheduler.New(kind)
			})

			It("should be empty at creation", func() {
				Expect(s.IsEmpty()).To(BeTrue())
				Expect(s.Len()).To(Equal(0))
				Expect(s.PeekNext()).To(BeNil())
				Expect(s.RemoveNext()).To(BeNil())
			})

			It("should order by time then by insertion", func() {
				events := makeEvents([]input{
					{5, 0}, {3, 1}, {5, 2}, {1, 3}, {3, 4}, {5, 5},
				})
				for _, e := range events {
					s.Insert(e)
				}

				Expect(s.Len()).To(Equal(6))
				Expect(s.PeekNext()).To(BeIdenticalTo(events[3]))
				Expect(s.Len()).To(Equal(6))

				var uids []uint64
				for _, k := range drain(s) {
					uids = append(uids, k.UID)
				}
				Expect(uids).To(Equal([]uint64{3, 1, 4, 0, 2, 5}))
			})

			It("should remove an arbitrary event", func() {
				events := makeEvents([]input{{5, 0}, {3, 1}, {7, 2}})
				for _, e := range events {
					s.Insert(e)
				}

				Expect(s.Remove(events[0])).To(BeTrue())
				Expect(s.Remove(events[0])).To(BeFalse())

				keys := drain(s)
				Expect(keys).To(HaveLen(2))
				Expect(keys[0].UID).To(Equal(uint64(1)))
				Expect(keys[1].UID).To(Equal(uint64(2)))
			})

			It("should remove the earliest event", func() {
				events := makeEvents([]input{{2, 0}, {1, 1}, {1, 2}})
				for _, e := range events {
					s.Insert(e)
				}

				Expect(s.Remove(events[1])).To(BeTrue())
				Expect(s.PeekNext()).To(BeIdenticalTo(events[2]))
				Expect(s.Len()).To(Equal(2))
			})

			It("should reject events it does not hold", func() {
				other := makeEvents([]input{{1, 0}})[0]
				s.Insert(makeEvents([]input{{1, 1}})[0])

				Expect(s.Remove(other)).To(BeFalse())
				Expect(s.Len()).To(Equal(1))
			})

			It("should accept inserts while draining", func() {
				uid := uint64(0)
				next := func(ts int64) *scheduler.Event {
					e := makeEvents([]input{{ts, uid}})[0]
					uid++
					return e
				}

				s.Insert(next(10))
				s.Insert(next(20))

				var got []int64
				for !s.IsEmpty() {
					e := s.RemoveNext()
					got = append(got, e.Key.Timestamp)

					if e.Key.Timestamp < 40 {
						s.Insert(next(e.Key.Timestamp + 5))
						s.Insert(next(e.Key.Timestamp))
					}
				}

				for i := 1; i < len(got); i++ {
					Expect(got[i]).To(BeNumerically(">=", got[i-1]))
				}
				Expect(got[0]).To(Equal(int64(10)))
			})

			It("should keep order through growth and shrinkage", func() {
				events := makeEvents(randomInputs("grow-"+kind.String(), 2000, 1e6))
				for _, e := range events {
					s.Insert(e)
				}

				for i := 0; i < len(events); i += 3 {
					Expect(s.Remove(events[i])).To(BeTrue())
				}

				keys := drain(s)
				Expect(keys).To(HaveLen(len(events) - (len(events)+2)/3))
				expectTotalOrder(keys)
			})
		})
	}

	It("should agree on the firing order across all kinds", func() {
		inputs := randomInputs("cross-variant", 5000, 200)
		cancelled := randomInputs("cross-variant-cancel", 5000, 4)

		var reference []scheduler.EventKey
		for _, kind := range scheduler.AllKinds {
			s := scheduler.New(kind)
			events := makeEvents(inputs)
			for _, e := range events {
				s.Insert(e)
			}

			for i, c := range cancelled {
				if c.ts == 0 {
					s.Remove(events[i])
				}
			}

			keys := drain(s)
			expectTotalOrder(keys)

			if reference == nil {
				reference = keys
				continue
			}

			Expect(keys).To(Equal(reference), "kind %s", kind)
		}
	})

	It("should parse kinds", func() {
		for _, kind := range scheduler.AllKinds {
			parsed, err := scheduler.ParseKind(kind.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(kind))
		}

		_, err := scheduler.ParseKind("splay")
		Expect(err).To(MatchError(scheduler.ErrUnknownKind))
	})

	It("should resize the calendar", func() {
		s := scheduler.NewCalendarScheduler()
		events := makeEvents(randomInputs("calendar", 1000, 1e5))
		for _, e := range events {
			s.Insert(e)
		}

		Expect(s.NumBuckets()).To(BeNumerically(">=", 256))
		Expect(s.BucketWidth()).To(BeNumerically(">=", 1))

		keys := drain(s)
		Expect(keys).To(HaveLen(1000))
		expectTotalOrder(keys)
		Expect(s.NumBuckets()).To(BeNumerically("<=", 4))
	})
})
