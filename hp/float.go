package hp

import (
	"math"
	"strconv"
)

// Float is the double precision backend. It exposes the same operations as
// Int128 but only keeps 53 significant bits, so long simulations accumulate
// rounding error. It exists for platforms where 128-bit arithmetic is too
// slow and should not be the default.
type Float struct {
	v float64
}

// NewFloat creates a Float from an integer part and a 64-bit fraction.
func NewFloat(intPart int64, frac uint64) Float {
	return Float{v: float64(intPart) + float64(frac)/twoTo64}
}

// FloatFromInt64 converts an integer.
func FloatFromInt64(v int64) Float {
	return Float{v: float64(v)}
}

// FloatFromDouble wraps a float64.
func FloatFromDouble(v float64) Float {
	if math.IsNaN(v) {
		panic("hp: cannot convert NaN")
	}
	return Float{v: v}
}

// GetHigh returns the floor of the value.
func (a Float) GetHigh() int64 {
	return int64(math.Floor(a.v))
}

// GetLow returns the fraction scaled to 64 bits.
func (a Float) GetLow() uint64 {
	frac := math.Ldexp(a.v-math.Floor(a.v), 64)
	if frac >= twoTo64 {
		return math.MaxUint64
	}
	return uint64(frac)
}

// GetDouble returns the value.
func (a Float) GetDouble() float64 {
	return a.v
}

// GetInteger returns the integer part, truncated toward zero.
func (a Float) GetInteger() int64 {
	return int64(math.Trunc(a.v))
}

// Round returns the nearest integer. Halves round away from zero.
func (a Float) Round() int64 {
	return int64(math.Round(a.v))
}

// IsZero tells if the value is zero.
func (a Float) IsZero() bool {
	return a.v == 0
}

// IsNegative tells if the value is strictly below zero.
func (a Float) IsNegative() bool {
	return a.v < 0
}

// Compare returns -1, 0 or 1.
func (a Float) Compare(b Float) int {
	switch {
	case a.v < b.v:
		return -1
	case a.v > b.v:
		return 1
	}
	return 0
}

// Add returns a+b.
func (a Float) Add(b Float) Float {
	return Float{v: a.v + b.v}
}

// Sub returns a-b.
func (a Float) Sub(b Float) Float {
	return Float{v: a.v - b.v}
}

// Neg returns -a.
func (a Float) Neg() Float {
	return Float{v: -a.v}
}

// Abs returns |a|.
func (a Float) Abs() Float {
	return Float{v: math.Abs(a.v)}
}

// Mul returns a*b.
func (a Float) Mul(b Float) Float {
	return Float{v: a.v * b.v}
}

// MulInt multiplies by an integer.
func (a Float) MulInt(k int64) Float {
	return Float{v: a.v * float64(k)}
}

// Div returns a/b. It panics with ErrDivideByZero if b is zero.
func (a Float) Div(b Float) Float {
	if b.v == 0 {
		panic(ErrDivideByZero)
	}
	return Float{v: a.v / b.v}
}

// DivInt divides by an integer. It panics with ErrDivideByZero if k is zero.
func (a Float) DivInt(k int64) Float {
	if k == 0 {
		panic(ErrDivideByZero)
	}
	return Float{v: a.v / float64(k)}
}

// Min returns the smaller value.
func (a Float) Min(b Float) Float {
	if a.v <= b.v {
		return a
	}
	return b
}

// Max returns the larger value.
func (a Float) Max(b Float) Float {
	if a.v >= b.v {
		return a
	}
	return b
}

// String renders the value in decimal.
func (a Float) String() string {
	return strconv.FormatFloat(a.v, 'f', -1, 64)
}
