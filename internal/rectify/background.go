package rectify

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultHistogramBins is the bin count used to find the background mode.
	DefaultHistogramBins = 1000
	// DefaultBackgroundTolerance is the absolute distance from the mode within
	// which a value counts as background.
	DefaultBackgroundTolerance = 1e-10
)

// Background removes the dominant fill value of a channel.
type Background struct {
	Bins      int
	Tolerance float64
}

// DefaultBackground returns the suppressor with default settings.
func DefaultBackground() Background {
	return Background{Bins: DefaultHistogramBins, Tolerance: DefaultBackgroundTolerance}
}

// Dominant returns the left edge of the most populated histogram bin of
// values. Bins are equal width over [min, max] with the last bin closed; ties
// go to the lowest bin. values must be finite and non-empty.
func (b Background) Dominant(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return lo
	}

	bins := b.Bins
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// stat.Histogram bins are half-open; nudge the top edge so max lands in
	// the last bin.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	return dividers[floats.MaxIdx(counts)]
}

// Suppress returns a copy of m with background pixels removed, together with
// the detected background value. Pixels whose value is NaN are removed too.
// Only pixels already valid in m contribute to the histogram.
func (b Background) Suppress(data *Grid, m *Mask) (*Mask, float64, error) {
	if !m.Matches(data) {
		return nil, 0, fmt.Errorf("suppress background: %w", ErrShapeMismatch)
	}

	under, _ := m.Values(data)
	vals := finite(under)
	if len(vals) == 0 {
		return nil, 0, fmt.Errorf("suppress background: no finite values: %w", ErrEmptyMask)
	}

	dominant := b.Dominant(vals)
	out := m.Clone()
	for i, ok := range out.valid {
		if !ok {
			continue
		}
		v := data.Data[i]
		if math.IsNaN(v) || math.Abs(v-dominant) <= b.Tolerance {
			out.valid[i] = false
		}
	}

	if !out.Any() {
		return out, dominant, fmt.Errorf("suppress background %g: every pixel is background: %w", dominant, ErrEmptyMask)
	}
	return out, dominant, nil
}
