package domain

import (
	"context"
	"time"

	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ProductEvent announces a product archive available on local storage.
type ProductEvent struct {
	// Path is the local file to process.
	Path string `json:"path"`
	// Key is the uploaded object name. It carries the product name when the
	// local file was renamed; empty means the base name of Path.
	Key string `json:"key,omitempty"`
}

// Name returns the product name used for family and date detection.
func (e ProductEvent) Name() string {
	if e.Key != "" {
		return e.Key
	}
	return e.Path
}

// Raster describes one GeoTIFF written for a product unit.
type Raster struct {
	Family       ProductFamily `json:"family"`
	Unit         string        `json:"unit"`
	Date         string        `json:"date"`
	Source       string        `json:"source"`
	Path         string        `json:"path"`
	Rows         int           `json:"rows"`
	Cols         int           `json:"cols"`
	SampleType   string        `json:"sample_type"`
	Bounds       rectify.BBox  `json:"bounds"`
	GeoTransform [6]float64    `json:"geotransform"`
	Stats        rectify.Stats `json:"stats"`
}

// RasterEvent is published for every written raster.
type RasterEvent struct {
	ID string `json:"id"`
	Raster
	ProcessedAt time.Time `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
