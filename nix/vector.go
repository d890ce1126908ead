// Package nix implements Nix-vector routing. A Nix vector is a source route
// packed into bits: for every hop, the index of the next node among the
// neighbors of the current one. Each node caches the vectors and next-hop
// routes it computed, and drops them all on the first use after any
// topology change.
package nix

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Errors returned by Nix-vector operations.
var (
	ErrInsufficientBits = errors.New("nix: not enough bits left in vector")
	ErrBadEncoding      = errors.New("nix: malformed serialized vector")
)

const wordBits = 32

// NixVector holds the neighbor selectors of a path. Selectors are extracted
// in the reverse order they were added, so a path is built from the
// destination back to the source and consumed from the source on.
type NixVector struct {
	words []uint32
	total uint32
	used  uint32
	epoch uint64
}

// NewNixVector returns an empty vector.
func NewNixVector() *NixVector {
	return &NixVector{}
}

// BitCount returns the number of bits a selector among numNeighbors
// neighbors takes: ceil(log2(numNeighbors)), and at least one.
func BitCount(numNeighbors uint32) uint32 {
	if numNeighbors < 2 {
		return 1
	}
	return uint32(bits.Len32(numNeighbors - 1))
}

// BitCount is the method form of the package-level BitCount.
func (v *NixVector) BitCount(numNeighbors uint32) uint32 {
	return BitCount(numNeighbors)
}

// AddNeighborIndex appends a selector of the given width.
func (v *NixVector) AddNeighborIndex(index, width uint32) {
	if width == 0 || width > wordBits {
		panic(fmt.Sprintf("nix: selector width %d out of range", width))
	}
	if width < wordBits && index>>width != 0 {
		panic(fmt.Sprintf("nix: index %d does not fit in %d bits", index, width))
	}

	for i := uint32(0); i < width; i++ {
		v.setBit(v.total+i, index>>i&1 == 1)
	}

	v.total += width
}

// ExtractNeighborIndex consumes the most recently added selector not yet
// extracted.
func (v *NixVector) ExtractNeighborIndex(width uint32) (uint32, error) {
	if width > v.RemainingBits() {
		return 0, fmt.Errorf("%w: need %d, have %d",
			ErrInsufficientBits, width, v.RemainingBits())
	}

	start := v.total - v.used - width

	var index uint32
	for i := uint32(0); i < width; i++ {
		if v.bit(start + i) {
			index |= 1 << i
		}
	}

	v.used += width

	return index, nil
}

// RemainingBits returns the number of bits not extracted yet.
func (v *NixVector) RemainingBits() uint32 {
	return v.total - v.used
}

// TotalBits returns the number of bits ever added.
func (v *NixVector) TotalBits() uint32 {
	return v.total
}

// Epoch returns the topology epoch the vector was computed in.
func (v *NixVector) Epoch() uint64 {
	return v.epoch
}

// SetEpoch records the topology epoch the vector was computed in.
func (v *NixVector) SetEpoch(epoch uint64) {
	v.epoch = epoch
}

// Copy returns an independent copy, extraction state included.
func (v *NixVector) Copy() *NixVector {
	c := *v
	c.words = append([]uint32(nil), v.words...)
	return &c
}

// Serialize encodes the bits not extracted yet: the bit count followed by
// the packed words.
func (v *NixVector) Serialize() []uint32 {
	remaining := v.RemainingBits()
	out := make([]uint32, 1, 1+(remaining+wordBits-1)/wordBits)
	out[0] = remaining

	packed := &NixVector{}
	for i := uint32(0); i < remaining; i++ {
		packed.setBit(i, v.bit(i))
	}

	return append(out, packed.words...)
}

// Deserialize decodes what Serialize produced.
func Deserialize(data []uint32) (*NixVector, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrBadEncoding)
	}

	total := data[0]
	need := int((total + wordBits - 1) / wordBits)
	if len(data)-1 != need {
		return nil, fmt.Errorf("%w: %d bits need %d words, got %d",
			ErrBadEncoding, total, need, len(data)-1)
	}

	v := &NixVector{
		words: append([]uint32(nil), data[1:]...),
		total: total,
	}

	if rest := total % wordBits; rest != 0 && v.words[need-1]>>rest != 0 {
		return nil, fmt.Errorf("%w: bits set past the end", ErrBadEncoding)
	}

	return v, nil
}

// String renders the remaining bits, the next selector to extract first.
func (v *NixVector) String() string {
	var b strings.Builder

	for i := int64(v.total-v.used) - 1; i >= 0; i-- {
		if v.bit(uint32(i)) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}

	return b.String()
}

func (v *NixVector) bit(i uint32) bool {
	return v.words[i/wordBits]>>(i%wordBits)&1 == 1
}

func (v *NixVector) setBit(i uint32, on bool) {
	for int(i/wordBits) >= len(v.words) {
		v.words = append(v.words, 0)
	}

	if on {
		v.words[i/wordBits] |= 1 << (i % wordBits)
	} else {
		v.words[i/wordBits] &^= 1 << (i % wordBits)
	}
}
