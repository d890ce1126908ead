//go:build hpdouble

package hp

// HighPrecision is the arithmetic backend used by simulated time.
type HighPrecision = Float

// Backend names the selected backend.
const Backend = "double"

// FromInteger creates a value from an integer part and a 64-bit fraction.
func FromInteger(intPart int64, frac uint64) HighPrecision {
	return NewFloat(intPart, frac)
}

// FromInt64 converts an integer.
func FromInt64(v int64) HighPrecision {
	return FloatFromInt64(v)
}

// FromDouble converts a float64.
func FromDouble(v float64) HighPrecision {
	return FloatFromDouble(v)
}
