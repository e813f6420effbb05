package rectify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// MaxUint16 is the top of the normalized range.
	MaxUint16 = 65535
	// NoDataUint16 marks invalid pixels in normalized rasters.
	NoDataUint16 = 0
)

// Stats summarizes a valid pixel population.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

// Summarize computes Stats over values. StdDev is the population standard
// deviation. An empty slice yields zero Stats.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return Stats{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
		Count:  len(values),
	}
}

// Normalize rescales the valid pixels of data linearly onto [0, 65535].
// Non-finite values are treated as 0 before scaling. Invalid pixels are set to
// NoDataUint16. The returned Stats describe the valid population in source
// units.
func Normalize(data *Grid, m *Mask) (*Grid, Stats, error) {
	if !m.Matches(data) {
		return nil, Stats{}, fmt.Errorf("normalize: %w", ErrShapeMismatch)
	}

	idx := m.Indices()
	if len(idx) == 0 {
		return nil, Stats{}, fmt.Errorf("normalize: %w", ErrEmptyMask)
	}
	pop := make([]float64, len(idx))
	for j, i := range idx {
		v := data.Data[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		pop[j] = v
	}

	st := Summarize(pop)
	if st.Min == st.Max {
		return nil, st, fmt.Errorf("normalize: min = max = %g: %w", st.Min, ErrNoDynamicRange)
	}

	out := NewGrid(data.Rows, data.Cols)
	span := st.Max - st.Min
	for j, i := range idx {
		// Scale before dividing so an integer population already spanning
		// [0, 65535] maps onto itself exactly.
		v := (pop[j] - st.Min) * MaxUint16 / span
		out.Data[i] = math.Trunc(clamp(v, 0, MaxUint16))
	}
	return out, st, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
