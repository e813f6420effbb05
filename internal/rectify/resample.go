package rectify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Resampler maps scattered samples onto a regular lat/lon grid by nearest
// neighbour.
type Resampler struct {
	// MaxDistance, in degrees, is the farthest a sample may be from a cell
	// centre and still fill it. Zero means unlimited.
	MaxDistance float64
}

// Resample builds a rows×cols grid spanning the valid extent of c under m.
// Each cell takes the value of the nearest valid sample; cells beyond
// MaxDistance get 0. When two samples are equally near, the one with the lower
// row-major source index wins.
func (r Resampler) Resample(c *Coords, values *Grid, m *Mask, rows, cols int) (*Grid, BBox, error) {
	if rows <= 0 || cols <= 0 {
		return nil, BBox{}, fmt.Errorf("resample to %dx%d: %w", rows, cols, ErrShapeMismatch)
	}
	if !m.Matches(values) || !m.Matches(c.Lat) || !m.Matches(c.Lon) {
		return nil, BBox{}, fmt.Errorf("resample: %w", ErrShapeMismatch)
	}

	pts := make(samples, 0, m.Count())
	for _, i := range m.Indices() {
		lon, lat := c.Lon.Data[i], c.Lat.Data[i]
		if math.IsNaN(lon) || math.IsNaN(lat) {
			continue
		}
		pts = append(pts, sample{lon: lon, lat: lat, value: values.Data[i], index: i})
	}
	if len(pts) == 0 {
		return nil, BBox{}, fmt.Errorf("resample: %w", ErrEmptyMask)
	}

	bbox, err := Bounds(c, m)
	if err != nil {
		return nil, BBox{}, err
	}

	tree := kdtree.New(pts, false)
	maxSq := r.MaxDistance * r.MaxDistance

	xs := linspace(bbox.West, bbox.East, cols)
	ys := linspace(bbox.North, bbox.South, rows)
	out := NewGrid(rows, cols)
	for row, y := range ys {
		for col, x := range xs {
			best, ok := nearest(tree, sample{lon: x, lat: y})
			if !ok {
				continue
			}
			if r.MaxDistance > 0 && best.Distance(sample{lon: x, lat: y}) > maxSq {
				continue
			}
			out.Set(row, col, best.value)
		}
	}
	return out, bbox, nil
}

// nearest returns the closest sample to q, preferring the lowest source index
// among equidistant candidates.
func nearest(tree *kdtree.Tree, q sample) (sample, bool) {
	got, dist := tree.Nearest(q)
	if got == nil {
		return sample{}, false
	}
	best := got.(sample)

	keep := kdtree.NewDistKeeper(dist)
	tree.NearestSet(keep, q)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		s := cd.Comparable.(sample)
		if cd.Dist == dist && s.index < best.index {
			best = s
		}
	}
	return best, true
}

type sample struct {
	lon, lat float64
	value    float64
	index    int
}

func (s sample) coord(d kdtree.Dim) float64 {
	if d == 0 {
		return s.lon
	}
	return s.lat
}

// Compare implements kdtree.Comparable.
func (s sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return s.coord(d) - c.(sample).coord(d)
}

// Dims implements kdtree.Comparable.
func (s sample) Dims() int { return 2 }

// Distance implements kdtree.Comparable as squared Euclidean distance.
func (s sample) Distance(c kdtree.Comparable) float64 {
	o := c.(sample)
	dx, dy := s.lon-o.lon, s.lat-o.lat
	return dx*dx + dy*dy
}

type samples []sample

func (p samples) Index(i int) kdtree.Comparable { return p[i] }
func (p samples) Len() int                      { return len(p) }
func (p samples) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p samples) Pivot(d kdtree.Dim) int {
	pl := plane{dim: d, samples: p}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

// plane sorts samples along one dimension for median selection.
type plane struct {
	dim kdtree.Dim
	samples
}

func (p plane) Less(i, j int) bool {
	return p.samples[i].coord(p.dim) < p.samples[j].coord(p.dim)
}

func (p plane) Swap(i, j int) { p.samples[i], p.samples[j] = p.samples[j], p.samples[i] }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{dim: p.dim, samples: p.samples[start:end]}
}
