package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects a scheduler implementation.
type Kind int

// Available scheduler implementations.
const (
	KindHeap Kind = iota
	KindList
	KindMap
	KindCalendar
)

// ErrUnknownKind is returned when parsing an unknown scheduler name.
var ErrUnknownKind = errors.New("scheduler: unknown kind")

// AllKinds lists every implementation.
var AllKinds = []Kind{KindList, KindHeap, KindMap, KindCalendar}

var kindNames = map[Kind]string{
	KindHeap:     "heap",
	KindList:     "list",
	KindMap:      "map",
	KindCalendar: "calendar",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a name such as "heap" to a Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// New creates an empty scheduler of the given kind.
func New(kind Kind) Scheduler {
	switch kind {
	case KindHeap:
		return NewHeapScheduler()
	case KindList:
		return NewListScheduler()
	case KindMap:
		return NewMapScheduler()
	case KindCalendar:
		return NewCalendarScheduler()
	default:
		panic(fmt.Sprintf("scheduler: unknown kind %d", int(kind)))
	}
}
