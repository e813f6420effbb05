// Package geotiff writes and reads single-band, tiled, compressed GeoTIFF
// rasters in geographic (EPSG:4326) coordinates through GDAL.
//
// Files carry nearest-neighbour overviews so tile servers can read reduced
// resolutions without touching the full image. Band statistics and dataset
// items are stored as GDAL metadata.
package geotiff

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
)

var (
	// ErrDegenerateShape is returned for rasters with fewer than two rows or
	// columns, which have no defined pixel size.
	ErrDegenerateShape = errors.New("degenerate raster shape")

	// ErrUnsupported is returned when reading a file that is not a
	// single-band GeoTIFF of a sample type this package produces.
	ErrUnsupported = errors.New("unsupported raster")
)

const epsgWGS84 = 4326

var registerOnce sync.Once

// register loads the GDAL drivers once per process.
func register() {
	registerOnce.Do(godal.RegisterAll)
}

// Compression selects the tile codec.
type Compression string

const (
	CompressionNone    Compression = "none"
	CompressionDeflate Compression = "deflate"
	CompressionZstd    Compression = "zstd"
)

// ParseCompression maps a configuration string onto a Compression.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case CompressionNone, CompressionDeflate, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

// gdalName is the GTiff COMPRESS creation option value.
func (c Compression) gdalName() string {
	switch c {
	case CompressionDeflate:
		return "DEFLATE"
	case CompressionZstd:
		return "ZSTD"
	default:
		return "NONE"
	}
}

func compressionFromGDAL(s string) Compression {
	switch strings.ToUpper(s) {
	case "DEFLATE", "ADOBE_DEFLATE":
		return CompressionDeflate
	case "ZSTD":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// SampleType is the on-disk pixel type.
type SampleType int

const (
	Uint16 SampleType = iota
	Float32
)

func (t SampleType) String() string {
	if t == Float32 {
		return "float32"
	}
	return "uint16"
}

func (t SampleType) dataType() godal.DataType {
	if t == Float32 {
		return godal.Float32
	}
	return godal.UInt16
}

// predictor is the TIFF predictor used when tiles are compressed:
// horizontal differencing for integers, floating point for floats.
func (t SampleType) predictor() int {
	if t == Float32 {
		return 3
	}
	return 2
}

func sampleTypeFromGDAL(dt godal.DataType) (SampleType, error) {
	switch dt {
	case godal.UInt16:
		return Uint16, nil
	case godal.Float32:
		return Float32, nil
	default:
		return 0, fmt.Errorf("sample type %v: %w", dt, ErrUnsupported)
	}
}
