package product

import (
	"strings"

	"github.com/couchcryptid/swath-rectifier/internal/domain"
	"github.com/couchcryptid/swath-rectifier/internal/geotiff"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// geometry tells how a family's pixels are located on the ground.
type geometry int

const (
	// swath products carry per-pixel latitude/longitude datasets.
	swath geometry = iota
	// gridded products are already on a regular grid described by root
	// attributes.
	gridded
)

// composition is the processing recipe of one product family.
type composition struct {
	family   domain.ProductFamily
	geometry geometry
	// resample puts swath output on a regular grid instead of the native one.
	resample bool
	sample   geotiff.SampleType
	nodata   float64
	units    func(names []string) []unit
}

// unit is one output raster of a product.
type unit struct {
	name    string // output unit, used in the file name
	dataset string
	coords  coordSet
}

var (
	irCoords  = coordSet{lat: "Latitude", lon: "Longitude", family: rectify.Infrared}
	visCoords = coordSet{lat: "Latitude_VIS", lon: "Longitude_VIS", family: rectify.Visible}
	wvCoords  = coordSet{lat: "Latitude_WV", lon: "Longitude_WV", family: rectify.WaterVapour}
)

// L1C bands and L2C parameters, in output order.
var (
	l1cBands  = []string{"WV", "TIR1", "TIR2", "MIR", "SWIR", "VIS"}
	l2cParams = []string{"DHI", "DNI", "GHI", "INS"}
)

// Root attributes bounding gridded products.
const (
	attrLeftLon  = "left_longitude"
	attrRightLon = "right_longitude"
	attrUpperLat = "upper_latitude"
	attrLowerLat = "lower_latitude"
)

var compositions = map[domain.ProductFamily]composition{
	domain.FamilyL1B: {
		family:   domain.FamilyL1B,
		geometry: swath,
		sample:   geotiff.Uint16,
		nodata:   rectify.NoDataUint16,
		units:    l1bUnits,
	},
	domain.FamilyL1C: {
		family:   domain.FamilyL1C,
		geometry: gridded,
		sample:   geotiff.Float32,
		nodata:   -999,
		units:    fixedUnits(l1cBands, "IMG_"),
	},
	domain.FamilyL2B: {
		family:   domain.FamilyL2B,
		geometry: swath,
		resample: true,
		sample:   geotiff.Uint16,
		nodata:   rectify.NoDataUint16,
		units:    l2bUnits,
	},
	domain.FamilyL2C: {
		family:   domain.FamilyL2C,
		geometry: gridded,
		sample:   geotiff.Uint16,
		nodata:   rectify.NoDataUint16,
		units:    fixedUnits(l2cParams, ""),
	},
}

// l1bUnits selects IMG_ channels and pairs each with the coordinates of its
// resolution.
func l1bUnits(names []string) []unit {
	var out []unit
	for _, n := range names {
		if !strings.HasPrefix(n, "IMG_") {
			continue
		}
		out = append(out, unit{name: strings.TrimPrefix(n, "IMG_"), dataset: n, coords: channelCoords(n)})
	}
	return out
}

func channelCoords(dataset string) coordSet {
	switch {
	case strings.HasPrefix(dataset, "IMG_VIS"), strings.HasPrefix(dataset, "IMG_SWIR"):
		return visCoords
	case strings.HasPrefix(dataset, "IMG_WV"):
		return wvCoords
	default:
		return irCoords
	}
}

// l2bUnits selects the HEM* derived products, all on the IR grid.
func l2bUnits(names []string) []unit {
	var out []unit
	for _, n := range names {
		if strings.HasPrefix(n, "HEM") {
			out = append(out, unit{name: n, dataset: n, coords: irCoords})
		}
	}
	return out
}

// fixedUnits lists the same units for every archive; absent datasets are
// reported as skipped.
func fixedUnits(names []string, prefix string) func([]string) []unit {
	return func([]string) []unit {
		out := make([]unit, len(names))
		for i, n := range names {
			out[i] = unit{name: n, dataset: prefix + n}
		}
		return out
	}
}
