package scheduler

import "container/heap"

// HeapScheduler is a binary min-heap of events. Insert, RemoveNext and
// Remove are all O(log n).
type HeapScheduler struct {
	events eventHeap
}

// NewHeapScheduler creates an empty HeapScheduler.
func NewHeapScheduler() *HeapScheduler {
	s := &HeapScheduler{}
	s.events = make([]*Event, 0)
	heap.Init(&s.events)
	return s
}

// Insert adds an event.
func (s *HeapScheduler) Insert(ev *Event) {
	heap.Push(&s.events, ev)
}

// IsEmpty tells if the heap holds no event.
func (s *HeapScheduler) IsEmpty() bool {
	return len(s.events) == 0
}

// PeekNext returns the root of the heap.
func (s *HeapScheduler) PeekNext() *Event {
	if len(s.events) == 0 {
		return nil
	}
	return s.events[0]
}

// RemoveNext pops the root of the heap.
func (s *HeapScheduler) RemoveNext() *Event {
	if len(s.events) == 0 {
		return nil
	}
	return heap.Pop(&s.events).(*Event)
}

// Remove deletes an event using its tracked position.
func (s *HeapScheduler) Remove(ev *Event) bool {
	i := ev.index
	if i < 0 || i >= len(s.events) || s.events[i] != ev {
		return false
	}

	heap.Remove(&s.events, i)

	return true
}

// Len returns the number of events.
func (s *HeapScheduler) Len() int {
	return len(s.events)
}

type eventHeap []*Event

// Len returns the length of the event queue
func (h eventHeap) Len() int {
	return len(h)
}

// Less determines the order between two events. Less returns true if the i-th
// event happens before the j-th event.
func (h eventHeap) Less(i, j int) bool {
	return h[i].Key.Less(h[j].Key)
}

// Swap changes the position of two events in the event queue
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push adds an event into the event queue
func (h *eventHeap) Push(x any) {
	event := x.(*Event)
	event.index = len(*h)
	*h = append(*h, event)
}

// Pop removes and returns the last event of the slice
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	event := old[n-1]
	old[n-1] = nil
	event.index = -1
	*h = old[0 : n-1]
	return event
}
