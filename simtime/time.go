// Package simtime defines simulated time. A Time counts steps of a
// process-wide resolution using high-precision arithmetic.
package simtime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/nssim/hp"
)

// ErrInvalidTime is returned when a time string cannot be parsed.
var ErrInvalidTime = errors.New("simtime: invalid time")

// Time is a signed instant or duration in simulated time.
type Time struct {
	v hp.HighPrecision
}

// Zero returns the zero time. Creating it does not fix the resolution.
func Zero() Time {
	return Time{}
}

// Max returns the largest representable time.
func Max() Time {
	return Time{v: hp.FromInteger(math.MaxInt64, math.MaxUint64)}
}

// FromInteger creates a time of n units.
func FromInteger(n int64, unit Unit) Time {
	info := bake().infos[unit]

	v := hp.FromInt64(n)
	if info.FromMul {
		return Time{v: v.MulInt(info.Factor)}
	}

	return Time{v: v.DivInt(info.Factor)}
}

// FromDouble creates a time of x units.
func FromDouble(x float64, unit Unit) Time {
	info := bake().infos[unit]

	v := hp.FromDouble(x)
	if info.FromMul {
		return Time{v: v.MulInt(info.Factor)}
	}

	return Time{v: v.DivInt(info.Factor)}
}

// FromSteps creates a time from a raw count of resolution steps.
func FromSteps(steps int64) Time {
	bake()
	return Time{v: hp.FromInt64(steps)}
}

// Seconds creates a time of x seconds.
func Seconds(x float64) Time { return FromDouble(x, S) }

// MilliSeconds creates a time of n milliseconds.
func MilliSeconds(n int64) Time { return FromInteger(n, MS) }

// MicroSeconds creates a time of n microseconds.
func MicroSeconds(n int64) Time { return FromInteger(n, US) }

// NanoSeconds creates a time of n nanoseconds.
func NanoSeconds(n int64) Time { return FromInteger(n, NS) }

// PicoSeconds creates a time of n picoseconds.
func PicoSeconds(n int64) Time { return FromInteger(n, PS) }

// FemtoSeconds creates a time of n femtoseconds.
func FemtoSeconds(n int64) Time { return FromInteger(n, FS) }

// FromDuration converts a wall-clock duration.
func FromDuration(d time.Duration) Time {
	return FromInteger(d.Nanoseconds(), NS)
}

// ToInteger converts the time to a count of units. Converting to a unit
// finer than the resolution rounds to the nearest integer; coarser units
// truncate toward zero.
func (t Time) ToInteger(unit Unit) int64 {
	info := table().infos[unit]
	if info.ToMul {
		return t.v.MulInt(info.Factor).Round()
	}

	return t.v.DivInt(info.Factor).GetInteger()
}

// ToDouble converts the time to a fractional count of units.
func (t Time) ToDouble(unit Unit) float64 {
	info := table().infos[unit]
	if info.ToMul {
		return t.v.MulInt(info.Factor).GetDouble()
	}

	return t.v.DivInt(info.Factor).GetDouble()
}

// GetTimeStep returns the time as a count of resolution steps.
func (t Time) GetTimeStep() int64 {
	return t.v.GetInteger()
}

// HighPrecision exposes the underlying value in resolution steps.
func (t Time) HighPrecision() hp.HighPrecision {
	return t.v
}

// Seconds returns the time in seconds.
func (t Time) Seconds() float64 {
	return t.ToDouble(S)
}

// ToDuration converts the time to a wall-clock duration.
func (t Time) ToDuration() time.Duration {
	return time.Duration(t.ToInteger(NS))
}

// Add returns t+o.
func (t Time) Add(o Time) Time {
	return Time{v: t.v.Add(o.v)}
}

// Sub returns t-o.
func (t Time) Sub(o Time) Time {
	return Time{v: t.v.Sub(o.v)}
}

// MulInt scales the time by k.
func (t Time) MulInt(k int64) Time {
	return Time{v: t.v.MulInt(k)}
}

// DivInt divides the time by k.
func (t Time) DivInt(k int64) Time {
	return Time{v: t.v.DivInt(k)}
}

// Ratio returns t/o as a high-precision number.
func (t Time) Ratio(o Time) hp.HighPrecision {
	return t.v.Div(o.v)
}

// Compare returns -1, 0 or 1 when t is before, equal to or after o.
func (t Time) Compare(o Time) int {
	return t.v.Compare(o.v)
}

// Before tells if t is strictly before o.
func (t Time) Before(o Time) bool { return t.v.Compare(o.v) < 0 }

// After tells if t is strictly after o.
func (t Time) After(o Time) bool { return t.v.Compare(o.v) > 0 }

// Equal tells if both times are the same.
func (t Time) Equal(o Time) bool { return t.v.Compare(o.v) == 0 }

// IsZero tells if the time is zero.
func (t Time) IsZero() bool { return t.v.IsZero() }

// IsPositive tells if the time is zero or above.
func (t Time) IsPositive() bool { return !t.v.IsNegative() }

// IsNegative tells if the time is zero or below.
func (t Time) IsNegative() bool { return t.v.IsNegative() || t.v.IsZero() }

// IsStrictlyPositive tells if the time is above zero.
func (t Time) IsStrictlyPositive() bool {
	return !t.v.IsNegative() && !t.v.IsZero()
}

// IsStrictlyNegative tells if the time is below zero.
func (t Time) IsStrictlyNegative() bool { return t.v.IsNegative() }

// Min returns the earlier time.
func (t Time) Min(o Time) Time {
	if t.Before(o) {
		return t
	}
	return o
}

// Max returns the later time.
func (t Time) Max(o Time) Time {
	if t.After(o) {
		return t
	}
	return o
}

// String renders the time in the resolution unit, such as "+1500.0ns".
func (t Time) String() string {
	unit := Resolution()
	steps := t.v

	var sb strings.Builder
	if steps.IsNegative() {
		sb.WriteByte('-')
		steps = steps.Neg()
	} else {
		sb.WriteByte('+')
	}

	s := steps.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	sb.WriteString(s)
	sb.WriteString(unit.String())

	return sb.String()
}

// Parse reads a time such as "1.5s", "+200ns" or "3ms". A bare number is in
// seconds.
func Parse(s string) (Time, error) {
	str := strings.TrimSpace(s)

	i := len(str)
	for i > 0 && isUnitByte(str[i-1]) {
		i--
	}

	numPart, unitPart := str[:i], str[i:]

	unit := S
	if unitPart != "" {
		u, err := ParseUnit(unitPart)
		if err != nil {
			return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		unit = u
	}

	if n, err := strconv.ParseInt(strings.TrimPrefix(numPart, "+"), 10, 64); err == nil {
		return FromInteger(n, unit), nil
	}

	x, err := strconv.ParseFloat(numPart, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	return FromDouble(x, unit), nil
}

func isUnitByte(c byte) bool {
	return (c >= 'a' && c <= 'z' && c != 'e') || (c >= 'A' && c <= 'Z' && c != 'E')
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}
