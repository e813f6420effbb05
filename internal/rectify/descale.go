package rectify

import (
	"fmt"
	"math"
)

// CoordFamily groups channels that share a coordinate scale.
type CoordFamily string

const (
	// Visible covers the visible and shortwave-infrared channels.
	Visible CoordFamily = "VIS"
	// WaterVapour covers the water-vapour channel.
	WaterVapour CoordFamily = "WV"
	// Infrared covers thermal and mid infrared channels and derived products.
	Infrared CoordFamily = "IR"
)

// Divisor returns the factor raw coordinates are divided by to get degrees.
func (f CoordFamily) Divisor() float64 {
	if f == Visible {
		return 10000.0
	}
	return 100.0
}

// Coords holds per-pixel latitude and longitude in degrees. Invalid entries
// are NaN.
type Coords struct {
	Lat *Grid
	Lon *Grid
}

// Descale converts scaled integer coordinates into degrees. Entries outside
// the valid latitude/longitude range after scaling become NaN. The inputs are
// not modified.
func Descale(rawLat, rawLon *Grid, fam CoordFamily) (*Coords, error) {
	if rawLat == nil || rawLon == nil || !rawLat.SameShape(rawLon) {
		return nil, fmt.Errorf("descale %s coordinates: %w", fam, ErrShapeMismatch)
	}
	div := fam.Divisor()

	lat := NewGrid(rawLat.Rows, rawLat.Cols)
	lon := NewGrid(rawLon.Rows, rawLon.Cols)
	for i := range rawLat.Data {
		la := rawLat.Data[i] / div
		lo := rawLon.Data[i] / div
		if la > 90 || la < -90 {
			la = math.NaN()
		}
		if lo > 180 || lo < -180 {
			lo = math.NaN()
		}
		lat.Data[i] = la
		lon.Data[i] = lo
	}
	return &Coords{Lat: lat, Lon: lon}, nil
}
