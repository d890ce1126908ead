//go:build !hpdouble

package hp

// HighPrecision is the arithmetic backend used by simulated time.
type HighPrecision = Int128

// Backend names the selected backend.
const Backend = "int128"

// FromInteger creates a value from an integer part and a 64-bit fraction.
func FromInteger(intPart int64, frac uint64) HighPrecision {
	return NewInt128(intPart, frac)
}

// FromInt64 converts an integer.
func FromInt64(v int64) HighPrecision {
	return Int128FromInt64(v)
}

// FromDouble converts a float64.
func FromDouble(v float64) HighPrecision {
	return Int128FromDouble(v)
}
