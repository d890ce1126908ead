// Package hp provides the fixed point arithmetic used to represent simulated
// time.
//
// Two backends implement the same method set: Int128, a signed 64.64 fixed
// point number built on 128-bit integer arithmetic, and Float, a float64
// fallback. HighPrecision names the backend selected at build time. Int128 is
// the default; building with the hpdouble tag selects Float.
package hp

import "errors"

// ErrDivideByZero is the panic value raised when dividing by zero.
var ErrDivideByZero = errors.New("hp: division by zero")

// Number is the operation set shared by both backends.
type Number[T any] interface {
	Add(T) T
	Sub(T) T
	Mul(T) T
	Div(T) T
	MulInt(int64) T
	DivInt(int64) T
	Neg() T
	Compare(T) int
	GetDouble() float64
	GetInteger() int64
	GetHigh() int64
	GetLow() uint64
	Round() int64
	IsZero() bool
	IsNegative() bool
}

var (
	_ Number[Int128] = Int128{}
	_ Number[Float]  = Float{}
)

// Zero returns the zero value of the selected backend.
func Zero() HighPrecision {
	return HighPrecision{}
}
