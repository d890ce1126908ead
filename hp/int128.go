package hp

import (
	"math"
	"math/bits"
	"strconv"
	"strings"
)

const twoTo64 = 18446744073709551616.0

// Int128 is a signed 64.64 fixed point number. The value is the 128-bit two's
// complement integer hi*2^64 + lo, scaled by 2^-64. Hence hi is the floor of
// the value and lo is the fraction, always non-negative.
type Int128 struct {
	hi int64
	lo uint64
}

// NewInt128 creates an Int128 from its integer part and its 64-bit fraction.
func NewInt128(intPart int64, frac uint64) Int128 {
	return Int128{hi: intPart, lo: frac}
}

// Int128FromInt64 converts an integer without loss.
func Int128FromInt64(v int64) Int128 {
	return Int128{hi: v}
}

// Int128FromDouble converts a float64. Values outside of the int64 range
// saturate.
func Int128FromDouble(v float64) Int128 {
	if math.IsNaN(v) {
		panic("hp: cannot convert NaN")
	}

	if v >= math.MaxInt64 {
		return Int128{hi: math.MaxInt64, lo: math.MaxUint64}
	}

	if v < math.MinInt64 {
		return Int128{hi: math.MinInt64}
	}

	intPart := math.Floor(v)
	frac := math.Ldexp(v-intPart, 64)

	lo := uint64(math.MaxUint64)
	if frac < twoTo64 {
		lo = uint64(frac)
	}

	return Int128{hi: int64(intPart), lo: lo}
}

// GetHigh returns the floor of the value.
func (a Int128) GetHigh() int64 {
	return a.hi
}

// GetLow returns the fractional bits.
func (a Int128) GetLow() uint64 {
	return a.lo
}

// GetDouble projects the value to a float64.
func (a Int128) GetDouble() float64 {
	return float64(a.hi) + float64(a.lo)/twoTo64
}

// GetInteger returns the integer part, truncated toward zero.
func (a Int128) GetInteger() int64 {
	if a.hi < 0 && a.lo != 0 {
		return a.hi + 1
	}

	return a.hi
}

// Round returns the nearest integer. Halves round away from zero.
func (a Int128) Round() int64 {
	const half = uint64(1) << 63

	if a.hi >= 0 {
		if a.lo >= half {
			return a.hi + 1
		}
		return a.hi
	}

	if a.lo > half {
		return a.hi + 1
	}
	return a.hi
}

// IsZero tells if the value is exactly zero.
func (a Int128) IsZero() bool {
	return a.hi == 0 && a.lo == 0
}

// IsNegative tells if the value is strictly below zero.
func (a Int128) IsNegative() bool {
	return a.hi < 0
}

// Compare returns -1, 0 or 1 when a is less than, equal to or greater than b.
func (a Int128) Compare(b Int128) int {
	switch {
	case a.hi < b.hi:
		return -1
	case a.hi > b.hi:
		return 1
	case a.lo < b.lo:
		return -1
	case a.lo > b.lo:
		return 1
	}

	return 0
}

// Add returns a+b. The sum is exact unless the integer part overflows.
func (a Int128) Add(b Int128) Int128 {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	return Int128{hi: a.hi + b.hi + int64(carry), lo: lo}
}

// Sub returns a-b.
func (a Int128) Sub(b Int128) Int128 {
	lo, borrow := bits.Sub64(a.lo, b.lo, 0)
	return Int128{hi: a.hi - b.hi - int64(borrow), lo: lo}
}

// Neg returns -a.
func (a Int128) Neg() Int128 {
	lo, carry := bits.Add64(^a.lo, 1, 0)
	return Int128{hi: int64(^uint64(a.hi) + carry), lo: lo}
}

// Abs returns |a|.
func (a Int128) Abs() Int128 {
	if a.IsNegative() {
		return a.Neg()
	}
	return a
}

// Mul returns a*b. Fractional bits below 2^-64 are truncated.
func (a Int128) Mul(b Int128) Int128 {
	neg := a.IsNegative() != b.IsNegative()
	ua, ub := a.Abs(), b.Abs()

	ah, al := uint64(ua.hi), ua.lo
	bh, bl := uint64(ub.hi), ub.lo

	h0, _ := bits.Mul64(al, bl)
	h1, l1 := bits.Mul64(al, bh)
	h2, l2 := bits.Mul64(ah, bl)
	_, l3 := bits.Mul64(ah, bh)

	mid, c1 := bits.Add64(h0, l1, 0)
	mid, c2 := bits.Add64(mid, l2, 0)
	top := h1 + h2 + l3 + c1 + c2

	r := Int128{hi: int64(top), lo: mid}
	if neg {
		return r.Neg()
	}
	return r
}

// MulInt multiplies by an integer. The result is exact unless it overflows.
func (a Int128) MulInt(k int64) Int128 {
	return a.Mul(Int128FromInt64(k))
}

// Div returns a/b, truncated toward zero at the last fractional bit. It panics
// with ErrDivideByZero if b is zero.
func (a Int128) Div(b Int128) Int128 {
	if b.IsZero() {
		panic(ErrDivideByZero)
	}

	if b.lo == 0 {
		return a.DivInt(b.hi)
	}

	neg := a.IsNegative() != b.IsNegative()
	ua, ub := a.Abs(), b.Abs()

	hi, lo := div192(uint64(ua.hi), ua.lo, 0, uint64(ub.hi), ub.lo)

	r := Int128{hi: int64(hi), lo: lo}
	if neg {
		return r.Neg()
	}
	return r
}

// div192 returns the low 128 bits of the quotient of the 192-bit n2:n1:n0
// by the 128-bit dh:dl, which must not be zero.
func div192(n2, n1, n0, dh, dl uint64) (qh, ql uint64) {
	if dh == 0 {
		_, r := bits.Div64(0, n2, dl)
		qh, r = bits.Div64(r, n1, dl)
		ql, _ = bits.Div64(r, n0, dl)
		return qh, ql
	}

	var rh, rl uint64
	for _, w := range [3]uint64{n2, n1, n0} {
		for i := 63; i >= 0; i-- {
			carry := rh >> 63
			rh = rh<<1 | rl>>63
			rl = rl<<1 | w>>uint(i)&1

			qh = qh<<1 | ql>>63
			ql <<= 1

			// With the carry the remainder is above 2^128 > d, and the
			// wrapped subtraction still yields the right value.
			if carry != 0 || rh > dh || rh == dh && rl >= dl {
				var borrow uint64
				rl, borrow = bits.Sub64(rl, dl, 0)
				rh, _ = bits.Sub64(rh, dh, borrow)
				ql |= 1
			}
		}
	}

	return qh, ql
}

// DivInt divides by an integer. It panics with ErrDivideByZero if k is zero.
func (a Int128) DivInt(k int64) Int128 {
	if k == 0 {
		panic(ErrDivideByZero)
	}

	neg := a.IsNegative() != (k < 0)
	ua := a.Abs()

	d := uint64(k)
	if k < 0 {
		d = uint64(-k)
	}

	qh, r := bits.Div64(0, uint64(ua.hi), d)
	ql, _ := bits.Div64(r, ua.lo, d)

	q := Int128{hi: int64(qh), lo: ql}
	if neg {
		return q.Neg()
	}
	return q
}

// Min returns the smaller value.
func (a Int128) Min(b Int128) Int128 {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger value.
func (a Int128) Max(b Int128) Int128 {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

// String renders the value in decimal with up to 20 fractional digits.
func (a Int128) String() string {
	var sb strings.Builder

	v := a
	if v.IsNegative() {
		sb.WriteByte('-')
		v = v.Neg()
	}

	sb.WriteString(strconv.FormatUint(uint64(v.hi), 10))

	if v.lo == 0 {
		return sb.String()
	}

	var digits [20]byte
	frac := v.lo
	n := 0
	for ; n < len(digits) && frac != 0; n++ {
		var digit uint64
		digit, frac = bits.Mul64(frac, 10)
		digits[n] = byte('0' + digit)
	}

	fracStr := strings.TrimRight(string(digits[:n]), "0")
	if fracStr != "" {
		sb.WriteByte('.')
		sb.WriteString(fracStr)
	}

	return sb.String()
}
