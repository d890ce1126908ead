package scheduler

import (
	"container/list"
	"math"
	"sort"
)

const (
	calendarMinBuckets = 2
	calendarMaxBuckets = 1 << 15
)

// CalendarScheduler is a calendar queue (R. Brown, 1988). Events hash into
// buckets that each cover one "day" of width ticks, and a year spans all
// buckets. The queue resizes itself as it grows and shrinks so that
// insertion and removal stay amortised O(1) for evenly spread timestamps.
type CalendarScheduler struct {
	buckets []*list.List
	elems   map[*Event]*list.Element
	width   int64
	size    int

	lastBucket int
	bucketTop  int64
	lastPrio   int64

	resizeEnabled bool
}

// NewCalendarScheduler creates an empty CalendarScheduler.
func NewCalendarScheduler() *CalendarScheduler {
	s := &CalendarScheduler{
		elems:         make(map[*Event]*list.Element),
		resizeEnabled: true,
	}
	s.init(calendarMinBuckets, 1, 0)

	return s
}

// NumBuckets returns the current number of buckets.
func (s *CalendarScheduler) NumBuckets() int {
	return len(s.buckets)
}

// BucketWidth returns the current bucket width in ticks.
func (s *CalendarScheduler) BucketWidth() int64 {
	return s.width
}

func (s *CalendarScheduler) init(nBuckets int, width int64, startPrio int64) {
	s.buckets = make([]*list.List, nBuckets)
	for i := range s.buckets {
		s.buckets[i] = list.New()
	}

	s.width = width
	s.lastPrio = startPrio
	s.lastBucket = s.hash(startPrio)
	s.bucketTop = s.topOf(startPrio)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func (s *CalendarScheduler) hash(ts int64) int {
	n := int64(len(s.buckets))
	i := floorDiv(ts, s.width) % n
	if i < 0 {
		i += n
	}
	return int(i)
}

func (s *CalendarScheduler) topOf(ts int64) int64 {
	return saturatingAdd(floorDiv(ts, s.width)*s.width, s.width)
}

func saturatingAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// Insert adds an event to its bucket.
func (s *CalendarScheduler) Insert(ev *Event) {
	s.doInsert(ev)
	s.size++

	if ev.Key.Timestamp < s.lastPrio {
		s.lastPrio = ev.Key.Timestamp
		s.lastBucket = s.hash(s.lastPrio)
		s.bucketTop = s.topOf(s.lastPrio)
	}

	s.resizeUp()
}

func (s *CalendarScheduler) doInsert(ev *Event) {
	b := s.buckets[s.hash(ev.Key.Timestamp)]

	var ele *list.Element
	for ele = b.Back(); ele != nil; ele = ele.Prev() {
		if ele.Value.(*Event).Key.Less(ev.Key) {
			break
		}
	}

	if ele != nil {
		s.elems[ev] = b.InsertAfter(ev, ele)
	} else {
		s.elems[ev] = b.PushFront(ev)
	}
}

// IsEmpty tells if no event is pending.
func (s *CalendarScheduler) IsEmpty() bool {
	return s.size == 0
}

// PeekNext returns the earliest event.
func (s *CalendarScheduler) PeekNext() *Event {
	if s.size == 0 {
		return nil
	}

	ev, _, _ := s.search()

	return ev
}

// RemoveNext removes the earliest event.
func (s *CalendarScheduler) RemoveNext() *Event {
	if s.size == 0 {
		return nil
	}

	ev, bucket, top := s.search()

	s.lastBucket = bucket
	s.lastPrio = ev.Key.Timestamp
	s.bucketTop = top

	s.buckets[bucket].Remove(s.elems[ev])
	delete(s.elems, ev)
	s.size--

	s.resizeDown()

	return ev
}

// search walks one year of buckets starting at the current day. If no
// event falls inside its day, it falls back to a direct search of the
// bucket fronts.
func (s *CalendarScheduler) search() (*Event, int, int64) {
	n := len(s.buckets)
	i := s.lastBucket
	top := s.bucketTop

	var min *Event

	for k := 0; k < n; k++ {
		if front := s.buckets[i].Front(); front != nil {
			ev := front.Value.(*Event)
			if ev.Key.Timestamp < top {
				return ev, i, top
			}

			if min == nil || ev.Key.Less(min.Key) {
				min = ev
			}
		}

		i = (i + 1) % n
		top = saturatingAdd(top, s.width)
	}

	ts := min.Key.Timestamp

	return min, s.hash(ts), s.topOf(ts)
}

// Remove deletes an arbitrary event.
func (s *CalendarScheduler) Remove(ev *Event) bool {
	ele, ok := s.elems[ev]
	if !ok {
		return false
	}

	s.buckets[s.hash(ev.Key.Timestamp)].Remove(ele)
	delete(s.elems, ev)
	s.size--

	s.resizeDown()

	return true
}

// Len returns the number of events.
func (s *CalendarScheduler) Len() int {
	return s.size
}

func (s *CalendarScheduler) resizeUp() {
	n := len(s.buckets)
	if s.resizeEnabled && s.size > n*2 && n < calendarMaxBuckets {
		s.resize(n * 2)
	}
}

func (s *CalendarScheduler) resizeDown() {
	n := len(s.buckets)
	if s.resizeEnabled && s.size < n/2 && n > calendarMinBuckets {
		s.resize(n / 2)
	}
}

func (s *CalendarScheduler) resize(nBuckets int) {
	events := make([]*Event, 0, s.size)
	for _, b := range s.buckets {
		for ele := b.Front(); ele != nil; ele = ele.Next() {
			events = append(events, ele.Value.(*Event))
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Key.Less(events[j].Key)
	})

	width := newWidth(events)

	s.init(nBuckets, width, s.lastPrio)
	for _, ev := range events {
		s.doInsert(ev)
	}
}

// newWidth estimates the bucket width from the separation of the earliest
// events. Gaps larger than twice the average are ignored and the width is
// set to three times the remaining average.
func newWidth(sorted []*Event) int64 {
	if len(sorted) < 2 {
		return 1
	}

	nSamples := len(sorted)
	if nSamples > 5 {
		nSamples = 5 + nSamples/10
	}
	if nSamples > 25 {
		nSamples = 25
	}
	if nSamples > len(sorted) {
		nSamples = len(sorted)
	}

	gaps := make([]float64, 0, nSamples-1)
	total := 0.0
	for i := 1; i < nSamples; i++ {
		gap := float64(sorted[i].Key.Timestamp - sorted[i-1].Key.Timestamp)
		gaps = append(gaps, gap)
		total += gap
	}

	avg := total / float64(len(gaps))

	total = 0
	count := 0
	for _, gap := range gaps {
		if gap <= 2*avg {
			total += gap
			count++
		}
	}

	if count == 0 || total == 0 {
		return 1
	}

	width := int64(3 * total / float64(count))
	if width < 1 {
		width = 1
	}

	return width
}
