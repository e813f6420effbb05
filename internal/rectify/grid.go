package rectify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Grid is a row-major 2-D array of samples.
type Grid struct {
	Rows int
	Cols int
	Data []float64
}

// NewGrid allocates a zero-filled grid.
func NewGrid(rows, cols int) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// GridFrom wraps data as a rows×cols grid without copying.
func GridFrom(rows, cols int, data []float64) (*Grid, error) {
	if rows <= 0 || cols <= 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("grid %dx%d from %d values: %w", rows, cols, len(data), ErrShapeMismatch)
	}
	return &Grid{Rows: rows, Cols: cols, Data: data}, nil
}

// At returns the sample at row r, column c.
func (g *Grid) At(r, c int) float64 { return g.Data[r*g.Cols+c] }

// Set stores v at row r, column c.
func (g *Grid) Set(r, c int, v float64) { g.Data[r*g.Cols+c] = v }

// Len returns the number of samples.
func (g *Grid) Len() int { return len(g.Data) }

// SameShape reports whether o has the same dimensions as g.
func (g *Grid) SameShape(o *Grid) bool {
	return o != nil && g.Rows == o.Rows && g.Cols == o.Cols
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	return &Grid{Rows: g.Rows, Cols: g.Cols, Data: append([]float64(nil), g.Data...)}
}

// Mask marks which pixels of a grid are valid.
type Mask struct {
	Rows  int
	Cols  int
	valid []bool
}

// NewMask returns a mask with every pixel invalid.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, valid: make([]bool, rows*cols)}
}

// Valid reports whether the pixel at flat index i is valid.
func (m *Mask) Valid(i int) bool { return m.valid[i] }

// ValidAt reports whether the pixel at row r, column c is valid.
func (m *Mask) ValidAt(r, c int) bool { return m.valid[r*m.Cols+c] }

// Matches reports whether the mask covers g exactly.
func (m *Mask) Matches(g *Grid) bool {
	return g != nil && m.Rows == g.Rows && m.Cols == g.Cols
}

// Count returns the number of valid pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.valid {
		if v {
			n++
		}
	}
	return n
}

// Any reports whether at least one pixel is valid.
func (m *Mask) Any() bool {
	for _, v := range m.valid {
		if v {
			return true
		}
	}
	return false
}

// Clone returns a copy of m.
func (m *Mask) Clone() *Mask {
	return &Mask{Rows: m.Rows, Cols: m.Cols, valid: append([]bool(nil), m.valid...)}
}

// And returns a new mask valid only where both m and o are valid.
func (m *Mask) And(o *Mask) (*Mask, error) {
	if o == nil || m.Rows != o.Rows || m.Cols != o.Cols {
		return nil, fmt.Errorf("and masks: %w", ErrShapeMismatch)
	}
	out := NewMask(m.Rows, m.Cols)
	for i := range m.valid {
		out.valid[i] = m.valid[i] && o.valid[i]
	}
	return out, nil
}

// SubsetOf reports whether every pixel valid in m is also valid in o.
func (m *Mask) SubsetOf(o *Mask) bool {
	if o == nil || m.Rows != o.Rows || m.Cols != o.Cols {
		return false
	}
	for i, v := range m.valid {
		if v && !o.valid[i] {
			return false
		}
	}
	return true
}

// Indices returns the flat indices of valid pixels in row-major order.
func (m *Mask) Indices() []int {
	idx := make([]int, 0, m.Count())
	for i, v := range m.valid {
		if v {
			idx = append(idx, i)
		}
	}
	return idx
}

// Values gathers g's samples at the valid pixels of m.
func (m *Mask) Values(g *Grid) ([]float64, error) {
	if !m.Matches(g) {
		return nil, fmt.Errorf("gather values: %w", ErrShapeMismatch)
	}
	out := make([]float64, 0, m.Count())
	for i, v := range m.valid {
		if v {
			out = append(out, g.Data[i])
		}
	}
	return out, nil
}

// BBox is a geographic extent in degrees.
type BBox struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	South float64 `json:"south"`
	North float64 `json:"north"`
}

// Bounds returns the extent of the valid coordinates of c under m.
func Bounds(c *Coords, m *Mask) (BBox, error) {
	if !m.Matches(c.Lat) || !m.Matches(c.Lon) {
		return BBox{}, fmt.Errorf("bounds: %w", ErrShapeMismatch)
	}
	lons, _ := m.Values(c.Lon)
	lats, _ := m.Values(c.Lat)
	lons = finite(lons)
	lats = finite(lats)
	if len(lons) == 0 || len(lats) == 0 {
		return BBox{}, fmt.Errorf("bounds: %w", ErrEmptyMask)
	}
	return BBox{
		West:  floats.Min(lons),
		East:  floats.Max(lons),
		South: floats.Min(lats),
		North: floats.Max(lats),
	}, nil
}

// RegularCoords builds coordinate grids for a product that is already on a
// regular lat/lon grid. Row 0 is at upper, column 0 at left.
func RegularCoords(left, right, upper, lower float64, rows, cols int) (*Coords, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("regular coords %dx%d: %w", rows, cols, ErrShapeMismatch)
	}
	lats := linspace(upper, lower, rows)
	lons := linspace(left, right, cols)

	c := &Coords{Lat: NewGrid(rows, cols), Lon: NewGrid(rows, cols)}
	for r := 0; r < rows; r++ {
		for col := 0; col < cols; col++ {
			c.Lat.Set(r, col, lats[r])
			c.Lon.Set(r, col, lons[col])
		}
	}
	return c, nil
}

// Extent returns the min/max of every coordinate in c, ignoring NaN.
func Extent(c *Coords) (BBox, error) {
	all := NewMask(c.Lat.Rows, c.Lat.Cols)
	for i := range all.valid {
		all.valid[i] = true
	}
	return Bounds(c, all)
}

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	return floats.Span(out, start, stop)
}

func finite(vs []float64) []float64 {
	out := vs[:0:0]
	for _, v := range vs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
