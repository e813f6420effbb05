package geotiff

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// DefaultTileSize is the default tile edge in pixels.
const DefaultTileSize = 512

// DefaultOverviews are the reduction factors of the overview levels.
var DefaultOverviews = []int{2, 4, 8, 16}

// GeoTransform is the GDAL-style affine transform
// (originX, pixelWidth, 0, originY, 0, -pixelHeight).
type GeoTransform [6]float64

// NewGeoTransform anchors a rows×cols raster at the north-west corner of bbox.
// Pixel sizes are (east-west)/(cols-1) and (north-south)/(rows-1).
func NewGeoTransform(bbox rectify.BBox, rows, cols int) (GeoTransform, error) {
	if rows < 2 || cols < 2 {
		return GeoTransform{}, fmt.Errorf("geotransform for %dx%d: %w", rows, cols, ErrDegenerateShape)
	}
	px := (bbox.East - bbox.West) / float64(cols-1)
	py := (bbox.North - bbox.South) / float64(rows-1)
	return GeoTransform{bbox.West, px, 0, bbox.North, 0, -py}, nil
}

// PixelWidth returns the horizontal pixel size in degrees.
func (g GeoTransform) PixelWidth() float64 { return g[1] }

// PixelHeight returns the vertical pixel size in degrees (positive).
func (g GeoTransform) PixelHeight() float64 { return -g[5] }

// Bounds reconstructs the extent of a rows×cols raster.
func (g GeoTransform) Bounds(rows, cols int) rectify.BBox {
	return rectify.BBox{
		West:  g[0],
		East:  g[0] + g[1]*float64(cols-1),
		North: g[3],
		South: g[3] + g[5]*float64(rows-1),
	}
}

// Band is the single band of a raster.
type Band struct {
	Grid        *rectify.Grid
	Type        SampleType
	NoData      float64
	Description string
	// Stats, when set, are written as the band statistics. Otherwise they are
	// computed from the written pixels, excluding nodata.
	Stats *rectify.Stats
}

// Options controls the file layout.
type Options struct {
	TileSize    int
	Compression Compression
	// Overviews lists the overview reduction factors. Nil means
	// DefaultOverviews; an empty slice writes none.
	Overviews []int
	// Metadata holds dataset-level GDAL metadata items.
	Metadata map[string]string
}

// Write stores band as a GeoTIFF at path. The file appears atomically: it is
// written under a temporary name in the same directory and renamed on success.
func Write(path string, band Band, bbox rectify.BBox, opts Options) (GeoTransform, error) {
	g := band.Grid
	if g == nil {
		return GeoTransform{}, fmt.Errorf("write %s: nil grid", path)
	}
	gt, err := NewGeoTransform(bbox, g.Rows, g.Cols)
	if err != nil {
		return GeoTransform{}, err
	}

	tile := opts.TileSize
	if tile <= 0 {
		tile = DefaultTileSize
	}
	if tile%16 != 0 {
		return GeoTransform{}, fmt.Errorf("write %s: tile size %d is not a multiple of 16", path, tile)
	}
	comp := opts.Compression
	if comp == "" {
		comp = CompressionDeflate
	}
	levels := opts.Overviews
	if levels == nil {
		levels = DefaultOverviews
	}

	pixels := encodePixels(band)
	stats := band.statistics(pixels)

	register()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rectify-*.tif")
	if err != nil {
		return GeoTransform{}, fmt.Errorf("create temp raster in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	err = create(tmpName, band, pixels, gt, stats, opts.Metadata, creationOptions(band.Type, tile, comp), overviewLevels(g.Rows, g.Cols, levels))
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return GeoTransform{}, fmt.Errorf("write %s: %w", path, err)
	}
	return gt, nil
}

// create writes the dataset at name and closes it.
func create(name string, b Band, pixels []float64, gt GeoTransform, st rectify.Stats, meta map[string]string, co []string, levels []int) (err error) {
	ds, err := godal.Create(godal.GTiff, name, 1, b.Type.dataType(), b.Grid.Cols, b.Grid.Rows, godal.CreationOption(co...))
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close dataset: %w", cerr)
		}
	}()

	if err := ds.SetGeoTransform(gt); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(epsgWGS84)
	if err != nil {
		return fmt.Errorf("load EPSG:%d: %w", epsgWGS84, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("set spatial reference: %w", err)
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := ds.SetMetadata(k, meta[k]); err != nil {
			return fmt.Errorf("set metadata %s: %w", k, err)
		}
	}

	bnd := ds.Bands()[0]
	if err := bnd.SetNoData(b.NoData); err != nil {
		return fmt.Errorf("set nodata: %w", err)
	}
	if b.Description != "" {
		if err := bnd.SetDescription(b.Description); err != nil {
			return fmt.Errorf("set description: %w", err)
		}
	}
	for _, item := range statsMetadata(st) {
		if err := bnd.SetMetadata(item[0], item[1]); err != nil {
			return fmt.Errorf("set metadata %s: %w", item[0], err)
		}
	}
	if err := bnd.Write(0, 0, samples(pixels, b.Type), b.Grid.Cols, b.Grid.Rows); err != nil {
		return fmt.Errorf("write pixels: %w", err)
	}

	if len(levels) > 0 {
		if err := ds.BuildOverviews(godal.Resampling(godal.Nearest), godal.Levels(levels...)); err != nil {
			return fmt.Errorf("build overviews: %w", err)
		}
	}
	return nil
}

// creationOptions returns the GTiff creation options for a band. BIGTIFF is
// left to GDAL so files past 4 GiB switch to 64-bit offsets.
func creationOptions(t SampleType, tile int, comp Compression) []string {
	co := []string{
		"TILED=YES",
		"BLOCKXSIZE=" + strconv.Itoa(tile),
		"BLOCKYSIZE=" + strconv.Itoa(tile),
		"COMPRESS=" + comp.gdalName(),
		"BIGTIFF=IF_SAFER",
	}
	if comp == CompressionNone {
		return co
	}
	co = append(co, "PREDICTOR="+strconv.Itoa(t.predictor()))
	if comp == CompressionDeflate {
		co = append(co, "ZLEVEL=9")
	}
	return co
}

// overviewLevels keeps the factors that leave at least one full pixel in
// both dimensions, in increasing order.
func overviewLevels(rows, cols int, factors []int) []int {
	out := make([]int, 0, len(factors))
	for _, f := range factors {
		if f > 1 && rows >= f && cols >= f {
			out = append(out, f)
		}
	}
	sort.Ints(out)
	return out
}

// encodePixels converts the grid to the band's sample type. NaN becomes
// nodata; integer samples are rounded and clamped to [0, 65535].
func encodePixels(b Band) []float64 {
	out := make([]float64, len(b.Grid.Data))
	for i, v := range b.Grid.Data {
		switch {
		case math.IsNaN(v):
			out[i] = b.NoData
		case b.Type == Uint16:
			out[i] = math.Max(0, math.Min(rectify.MaxUint16, math.Round(v)))
		default:
			out[i] = float64(float32(v))
		}
	}
	return out
}

// samples packs encoded pixels into the buffer type GDAL writes.
func samples(pixels []float64, t SampleType) any {
	if t == Float32 {
		out := make([]float32, len(pixels))
		for i, v := range pixels {
			out[i] = float32(v)
		}
		return out
	}
	out := make([]uint16, len(pixels))
	for i, v := range pixels {
		out[i] = uint16(v)
	}
	return out
}

// Statistics returns the statistics Write records for b: Stats when set,
// otherwise those of the encoded pixels excluding nodata.
func (b Band) Statistics() rectify.Stats {
	return b.statistics(encodePixels(b))
}

func (b Band) statistics(pixels []float64) rectify.Stats {
	if b.Stats != nil {
		return *b.Stats
	}
	return computeStats(pixels, b.NoData)
}

func computeStats(pixels []float64, nodata float64) rectify.Stats {
	valid := make([]float64, 0, len(pixels))
	for _, v := range pixels {
		if v == nodata || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		valid = append(valid, v)
	}
	return rectify.Summarize(valid)
}

// Band statistics metadata keys, as GDAL writes them.
const (
	keyStatsMin    = "STATISTICS_MINIMUM"
	keyStatsMax    = "STATISTICS_MAXIMUM"
	keyStatsMean   = "STATISTICS_MEAN"
	keyStatsStdDev = "STATISTICS_STDDEV"
	keyStatsCount  = "STATISTICS_VALID_COUNT"
)

func statsMetadata(st rectify.Stats) [][2]string {
	return [][2]string{
		{keyStatsMin, formatFloat(st.Min)},
		{keyStatsMax, formatFloat(st.Max)},
		{keyStatsMean, formatFloat(st.Mean)},
		{keyStatsStdDev, formatFloat(st.StdDev)},
		{keyStatsCount, strconv.Itoa(st.Count)},
	}
}

func parseStats(md map[string]string) (rectify.Stats, error) {
	var st rectify.Stats
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{keyStatsMin, &st.Min},
		{keyStatsMax, &st.Max},
		{keyStatsMean, &st.Mean},
		{keyStatsStdDev, &st.StdDev},
	} {
		v, err := strconv.ParseFloat(md[f.key], 64)
		if err != nil {
			return rectify.Stats{}, errors.New("missing " + f.key)
		}
		*f.dst = v
	}
	st.Count, _ = strconv.Atoi(md[keyStatsCount])
	return st, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
