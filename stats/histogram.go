// Package stats collects simple statistics from simulation runs.
package stats

import (
	"fmt"
	"math"
	"strings"
)

// DefaultBinWidth is the bin width of a zero Histogram.
const DefaultBinWidth = 1.0

// MaxBins bounds the number of bins a histogram may grow to.
const MaxBins = 1 << 24

// Histogram counts non-negative values into bins of a fixed width. Bin i
// holds the values in [i*width, (i+1)*width). The bin array grows to the
// highest bin used and never loses counts.
type Histogram struct {
	binWidth float64
	bins     []uint32
	count    uint64
}

// NewHistogram creates an empty histogram.
func NewHistogram(binWidth float64) *Histogram {
	h := &Histogram{}
	h.SetDefaultBinWidth(binWidth)
	return h
}

// SetDefaultBinWidth changes the bin width. It panics if values have been
// added already.
func (h *Histogram) SetDefaultBinWidth(binWidth float64) {
	if len(h.bins) > 0 {
		panic("stats: cannot change the bin width of a non-empty histogram")
	}
	if !(binWidth > 0) || math.IsInf(binWidth, 0) {
		panic(fmt.Sprintf("stats: invalid bin width %v", binWidth))
	}

	h.binWidth = binWidth
}

func (h *Histogram) width() float64 {
	if h.binWidth == 0 {
		return DefaultBinWidth
	}
	return h.binWidth
}

// AddValue counts one value.
func (h *Histogram) AddValue(v float64) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		panic(fmt.Sprintf("stats: cannot bin value %v", v))
	}

	bin := math.Floor(v / h.width())
	if bin >= MaxBins {
		panic(fmt.Sprintf("stats: value %v needs bin %g, the limit is %d bins",
			v, bin, MaxBins))
	}

	index := int(bin)
	if index >= len(h.bins) {
		h.bins = append(h.bins, make([]uint32, index+1-len(h.bins))...)
	}

	h.bins[index]++
	h.count++
}

// GetNBins returns the number of bins.
func (h *Histogram) GetNBins() int {
	return len(h.bins)
}

// GetBinStart returns the lower bound of bin i.
func (h *Histogram) GetBinStart(i int) float64 {
	return float64(i) * h.width()
}

// GetBinEnd returns the upper bound of bin i.
func (h *Histogram) GetBinEnd(i int) float64 {
	return float64(i+1) * h.width()
}

// GetBinWidth returns the width of bin i. All bins have the same width.
func (h *Histogram) GetBinWidth(int) float64 {
	return h.width()
}

// GetBinCount returns the number of values in bin i.
func (h *Histogram) GetBinCount(i int) uint32 {
	return h.bins[i]
}

// Count returns the number of values added.
func (h *Histogram) Count() uint64 {
	return h.count
}

// String lists the non-empty bins, one per line.
func (h *Histogram) String() string {
	var b strings.Builder

	for i, c := range h.bins {
		if c == 0 {
			continue
		}

		fmt.Fprintf(&b, "[%g, %g) %d\n", h.GetBinStart(i), h.GetBinEnd(i), c)
	}

	return b.String()
}
