package scheduler

import (
	"container/heap"
	"container/list"
)

// MapScheduler groups events by timestamp. Each distinct timestamp owns a
// FIFO bucket and a min-heap orders the timestamps. Events sharing a
// timestamp are therefore served in O(1).
type MapScheduler struct {
	buckets map[int64]*list.List
	elems   map[*Event]*list.Element
	stamps  timestampHeap
	queued  map[int64]bool
	size    int
}

// NewMapScheduler creates an empty MapScheduler.
func NewMapScheduler() *MapScheduler {
	return &MapScheduler{
		buckets: make(map[int64]*list.List),
		elems:   make(map[*Event]*list.Element),
		queued:  make(map[int64]bool),
	}
}

// Insert adds an event at the back of its timestamp bucket.
func (s *MapScheduler) Insert(ev *Event) {
	ts := ev.Key.Timestamp

	b, ok := s.buckets[ts]
	if !ok {
		b = list.New()
		s.buckets[ts] = b

		if !s.queued[ts] {
			heap.Push(&s.stamps, ts)
			s.queued[ts] = true
		}
	}

	s.elems[ev] = s.insertSorted(b, ev)
	s.size++
}

// insertSorted keeps the bucket in uid order. Events normally arrive with
// increasing uids, so the loop exits at once.
func (s *MapScheduler) insertSorted(b *list.List, ev *Event) *list.Element {
	for ele := b.Back(); ele != nil; ele = ele.Prev() {
		if ele.Value.(*Event).Key.UID < ev.Key.UID {
			return b.InsertAfter(ev, ele)
		}
	}
	return b.PushFront(ev)
}

// IsEmpty tells if no event is pending.
func (s *MapScheduler) IsEmpty() bool {
	return s.size == 0
}

// PeekNext returns the first event of the earliest bucket.
func (s *MapScheduler) PeekNext() *Event {
	b := s.firstBucket()
	if b == nil {
		return nil
	}
	return b.Front().Value.(*Event)
}

// RemoveNext pops the first event of the earliest bucket.
func (s *MapScheduler) RemoveNext() *Event {
	b := s.firstBucket()
	if b == nil {
		return nil
	}

	ev := b.Remove(b.Front()).(*Event)
	delete(s.elems, ev)
	s.size--

	if b.Len() == 0 {
		ts := heap.Pop(&s.stamps).(int64)
		delete(s.queued, ts)
		delete(s.buckets, ts)
	}

	return ev
}

// Remove deletes an event. An emptied bucket is dropped at once while its
// timestamp is discarded from the heap lazily.
func (s *MapScheduler) Remove(ev *Event) bool {
	ele, ok := s.elems[ev]
	if !ok {
		return false
	}

	ts := ev.Key.Timestamp
	b := s.buckets[ts]
	b.Remove(ele)
	delete(s.elems, ev)
	s.size--

	if b.Len() == 0 {
		delete(s.buckets, ts)
	}

	return true
}

// Len returns the number of events.
func (s *MapScheduler) Len() int {
	return s.size
}

func (s *MapScheduler) firstBucket() *list.List {
	for len(s.stamps) > 0 {
		ts := s.stamps[0]
		if b, ok := s.buckets[ts]; ok {
			return b
		}

		heap.Pop(&s.stamps)
		delete(s.queued, ts)
	}

	return nil
}

type timestampHeap []int64

func (h timestampHeap) Len() int           { return len(h) }
func (h timestampHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h timestampHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timestampHeap) Push(x any) {
	*h = append(*h, x.(int64))
}

func (h *timestampHeap) Pop() any {
	old := *h
	n := len(old)
	ts := old[n-1]
	*h = old[:n-1]
	return ts
}
