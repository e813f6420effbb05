package rectify

import (
	"fmt"
	"math"
)

const (
	// DefaultSubSatelliteLon is the nominal INSAT-3D sub-satellite longitude.
	DefaultSubSatelliteLon = 82.0
	// DefaultEarthRadiusKm is the mean Earth radius.
	DefaultEarthRadiusKm = 6371.0
)

// CoordinateMask marks pixels whose latitude and longitude are finite and in
// range.
func CoordinateMask(c *Coords) *Mask {
	m := NewMask(c.Lat.Rows, c.Lat.Cols)
	for i := range m.valid {
		lat, lon := c.Lat.Data[i], c.Lon.Data[i]
		m.valid[i] = !math.IsNaN(lat) && !math.IsNaN(lon) &&
			lat >= -90 && lat <= 90 &&
			lon >= -180 && lon <= 180
	}
	return m
}

// Haversine returns the great-circle distance between two points given in
// degrees, in the unit of radius.
func Haversine(lat1, lon1, lat2, lon2, radius float64) float64 {
	dlat := radians(lat1 - lat2)
	dlon := radians(lon1 - lon2)
	s1 := math.Sin(dlat / 2)
	s2 := math.Sin(dlon / 2)
	a := s1*s1 + math.Cos(radians(lat1))*math.Cos(radians(lat2))*s2*s2
	return 2 * radius * math.Asin(math.Sqrt(math.Min(a, 1)))
}

// Disk tests visibility from a geostationary satellite.
type Disk struct {
	SubSatelliteLon float64
	EarthRadius     float64
}

// DefaultDisk returns the disk for the default satellite position.
func DefaultDisk() Disk {
	return Disk{SubSatelliteLon: DefaultSubSatelliteLon, EarthRadius: DefaultEarthRadiusKm}
}

// Horizon is the largest great-circle distance from the sub-satellite point
// still considered on the disk.
func (d Disk) Horizon() float64 {
	return d.EarthRadius * math.Pi / 2
}

// OnDisk reports whether the point is within the visible hemisphere.
func (d Disk) OnDisk(lat, lon float64) bool {
	return Haversine(lat, lon, 0, d.SubSatelliteLon, d.EarthRadius) <= d.Horizon()
}

// Mask returns coordinate validity AND on-disk. It fails with ErrEmptyMask
// when no pixel survives.
func (d Disk) Mask(c *Coords) (*Mask, error) {
	if c == nil || !c.Lat.SameShape(c.Lon) {
		return nil, fmt.Errorf("disk mask: %w", ErrShapeMismatch)
	}
	m := CoordinateMask(c)
	for i, ok := range m.valid {
		if ok && !d.OnDisk(c.Lat.Data[i], c.Lon.Data[i]) {
			m.valid[i] = false
		}
	}
	if !m.Any() {
		return m, fmt.Errorf("disk mask: %w", ErrEmptyMask)
	}
	return m, nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
