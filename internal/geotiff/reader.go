package geotiff

import (
	"fmt"
	"math"
	"strconv"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// Raster is a GeoTIFF read back into memory.
type Raster struct {
	Width, Height int
	TileWidth     int
	TileHeight    int
	Type          SampleType
	Compression   Compression
	Predictor     int
	GeoTransform  GeoTransform
	// EPSG is 4326 when the spatial reference is geographic WGS 84, else 0.
	EPSG        int
	NoData      float64
	HasNoData   bool
	Description string
	// Metadata holds dataset-level items; BandMetadata the items of band 1.
	Metadata     map[string]string
	BandMetadata map[string]string
	// Overviews lists the reduction factor of each overview level.
	Overviews []int

	values *rectify.Grid
}

// Open reads the raster at path, pixels included, and releases the file.
func Open(path string) (*Raster, error) {
	register()

	ds, err := godal.Open(path, godal.Drivers("GTiff"))
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w: %w", path, ErrUnsupported, err)
	}
	defer ds.Close()

	r, err := read(ds)
	if err != nil {
		return nil, fmt.Errorf("read raster %s: %w", path, err)
	}
	return r, nil
}

func read(ds *godal.Dataset) (*Raster, error) {
	bands := ds.Bands()
	if len(bands) != 1 {
		return nil, fmt.Errorf("%d bands: %w", len(bands), ErrUnsupported)
	}
	band := bands[0]
	bs := band.Structure()

	typ, err := sampleTypeFromGDAL(bs.DataType)
	if err != nil {
		return nil, err
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("geotransform: %w", err)
	}

	r := &Raster{
		Width:        bs.SizeX,
		Height:       bs.SizeY,
		TileWidth:    bs.BlockSizeX,
		TileHeight:   bs.BlockSizeY,
		Type:         typ,
		GeoTransform: gt,
		EPSG:         geographicEPSG(ds),
		Description:  band.Description(),
		Metadata:     ds.Metadatas(),
		BandMetadata: band.Metadatas(),
	}
	r.NoData, r.HasNoData = band.NoData()

	structure := godal.Domain("IMAGE_STRUCTURE")
	r.Compression = compressionFromGDAL(ds.Metadata("COMPRESSION", structure))
	r.Predictor, _ = strconv.Atoi(ds.Metadata("PREDICTOR", structure))

	for _, ov := range band.Overviews() {
		w := ov.Structure().SizeX
		if w > 0 {
			r.Overviews = append(r.Overviews, int(math.Round(float64(r.Width)/float64(w))))
		}
	}

	buf := make([]float64, r.Width*r.Height)
	if err := band.Read(0, 0, buf, r.Width, r.Height); err != nil {
		return nil, fmt.Errorf("read pixels: %w", err)
	}
	if r.values, err = rectify.GridFrom(r.Height, r.Width, buf); err != nil {
		return nil, err
	}
	return r, nil
}

func geographicEPSG(ds *godal.Dataset) int {
	if ds.Projection() == "" {
		return 0
	}
	sr := ds.SpatialRef()
	defer sr.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(epsgWGS84)
	if err != nil {
		return 0
	}
	defer wgs84.Close()
	if sr.IsSame(wgs84) {
		return epsgWGS84
	}
	return 0
}

// Bounds returns the extent recorded in the geotransform.
func (r *Raster) Bounds() rectify.BBox {
	return r.GeoTransform.Bounds(r.Height, r.Width)
}

// Stats returns the band statistics stored in the metadata.
func (r *Raster) Stats() (rectify.Stats, bool) {
	st, err := parseStats(r.BandMetadata)
	return st, err == nil
}

// Values returns a copy of the Height×Width pixel grid.
func (r *Raster) Values() (*rectify.Grid, error) {
	if r.values == nil {
		return nil, fmt.Errorf("raster has no pixels: %w", ErrUnsupported)
	}
	return r.values.Clone(), nil
}
