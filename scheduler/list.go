package scheduler

import "container/list"

// ListScheduler keeps events in a sorted linked list. Insertion is linear,
// which makes it a reference implementation rather than a fast one.
type ListScheduler struct {
	l     *list.List
	elems map[*Event]*list.Element
}

// NewListScheduler creates an empty ListScheduler.
func NewListScheduler() *ListScheduler {
	return &ListScheduler{
		l:     list.New(),
		elems: make(map[*Event]*list.Element),
	}
}

// Insert adds an event. The list is scanned from the back because new
// events tend to be the latest ones.
func (s *ListScheduler) Insert(ev *Event) {
	var ele *list.Element
	for ele = s.l.Back(); ele != nil; ele = ele.Prev() {
		if ele.Value.(*Event).Key.Less(ev.Key) {
			break
		}
	}

	if ele != nil {
		s.elems[ev] = s.l.InsertAfter(ev, ele)
	} else {
		s.elems[ev] = s.l.PushFront(ev)
	}
}

// IsEmpty tells if the list holds no event.
func (s *ListScheduler) IsEmpty() bool {
	return s.l.Len() == 0
}

// PeekNext returns the front of the list.
func (s *ListScheduler) PeekNext() *Event {
	front := s.l.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Event)
}

// RemoveNext pops the front of the list.
func (s *ListScheduler) RemoveNext() *Event {
	front := s.l.Front()
	if front == nil {
		return nil
	}

	ev := s.l.Remove(front).(*Event)
	delete(s.elems, ev)

	return ev
}

// Remove deletes an event from the list.
func (s *ListScheduler) Remove(ev *Event) bool {
	ele, ok := s.elems[ev]
	if !ok {
		return false
	}

	s.l.Remove(ele)
	delete(s.elems, ev)

	return true
}

// Len returns the number of events.
func (s *ListScheduler) Len() int {
	return s.l.Len()
}
