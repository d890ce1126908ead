package simtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Unit is a unit of simulated time.
type Unit int

// Supported units, from coarsest to finest.
const (
	S Unit = iota
	MS
	US
	NS
	PS
	FS

	numUnits
)

var unitNames = [numUnits]string{"s", "ms", "us", "ns", "ps", "fs"}

// exponent is the power of ten of one unit expressed in seconds.
var exponent = [numUnits]int{0, -3, -6, -9, -12, -15}

// ErrResolutionFrozen is raised when the resolution is changed after a Time
// value has been created with the previous resolution.
var ErrResolutionFrozen = errors.New(
	"simtime: resolution cannot change after time values exist")

// ErrInvalidUnit is returned when parsing an unknown unit.
var ErrInvalidUnit = errors.New("simtime: invalid unit")

// String returns the unit suffix, such as "ms".
func (u Unit) String() string {
	if u < 0 || u >= numUnits {
		return fmt.Sprintf("Unit(%d)", int(u))
	}
	return unitNames[u]
}

// ParseUnit converts a unit suffix to a Unit.
func ParseUnit(s string) (Unit, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range unitNames {
		if name == s {
			return Unit(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// Information describes how to convert between a unit and the resolution.
// When FromMul is true, a count in the unit is multiplied by Factor to get a
// count of resolution steps; otherwise it is divided. ToMul describes the
// reverse direction.
type Information struct {
	Factor  int64
	FromMul bool
	ToMul   bool
}

type resolutionTable struct {
	unit  Unit
	infos [numUnits]Information
}

func newResolutionTable(res Unit) *resolutionTable {
	t := &resolutionTable{unit: res}

	for u := S; u < numUnits; u++ {
		shift := exponent[u] - exponent[res]
		if shift >= 0 {
			t.infos[u] = Information{
				Factor:  pow10(shift),
				FromMul: true,
				ToMul:   false,
			}
			continue
		}

		t.infos[u] = Information{
			Factor:  pow10(-shift),
			FromMul: false,
			ToMul:   true,
		}
	}

	return t
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

var (
	resolutionLock sync.Mutex
	currentTable   atomic.Pointer[resolutionTable]
	frozen         atomic.Bool
)

// table returns the conversion table, creating it with a nanosecond
// resolution on first use.
func table() *resolutionTable {
	if t := currentTable.Load(); t != nil {
		return t
	}

	resolutionLock.Lock()
	defer resolutionLock.Unlock()

	if t := currentTable.Load(); t != nil {
		return t
	}

	t := newResolutionTable(NS)
	currentTable.Store(t)

	return t
}

// bake returns the table and marks the resolution as in use.
func bake() *resolutionTable {
	if !frozen.Load() {
		frozen.Store(true)
	}
	return table()
}

// SetResolution sets the process-wide time resolution. It must be called
// before any Time value is created. Setting the current resolution again is
// allowed at any time.
func SetResolution(unit Unit) {
	if unit < 0 || unit >= numUnits {
		panic(fmt.Errorf("%w: %d", ErrInvalidUnit, int(unit)))
	}

	resolutionLock.Lock()
	defer resolutionLock.Unlock()

	current := currentTable.Load()
	if current != nil && current.unit == unit {
		return
	}

	if frozen.Load() {
		from := NS
		if current != nil {
			from = current.unit
		}

		panic(fmt.Errorf("%w: from %s to %s", ErrResolutionFrozen, from, unit))
	}

	currentTable.Store(newResolutionTable(unit))

	logrus.WithField("resolution", unit).Debug("simtime: resolution set")
}

// Resolution returns the process-wide time resolution.
func Resolution() Unit {
	return table().unit
}

// UnitInformation returns the conversion record of a unit under the current
// resolution.
func UnitInformation(unit Unit) Information {
	return table().infos[unit]
}

// ResetResolutionForTesting restores the default nanosecond resolution and
// forgets that time values were created. Only tests may call it.
func ResetResolutionForTesting() {
	resolutionLock.Lock()
	defer resolutionLock.Unlock()

	currentTable.Store(nil)
	frozen.Store(false)
}
