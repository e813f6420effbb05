package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/swath-rectifier/internal/domain"
	"github.com/couchcryptid/swath-rectifier/internal/geotiff"
	"github.com/couchcryptid/swath-rectifier/internal/product"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

const testDate = "18JUN2024"

var testBBox = rectify.BBox{West: 60, East: 90, South: 0, North: 30}

func writeRaster(t *testing.T, dir string, fam domain.ProductFamily, unit string, band geotiff.Band) string {
	t.Helper()
	path := filepath.Join(dir, domain.OutputName(fam, unit, testDate))
	_, err := geotiff.Write(path, band, testBBox, geotiff.Options{
		TileSize: 16,
		Metadata: map[string]string{
			"PRODUCT_FAMILY": string(fam),
			"DATE":           testDate,
			"UNIT":           unit,
		},
	})
	require.NoError(t, err)
	return path
}

func l1cBand() geotiff.Band {
	g, _ := rectify.GridFrom(2, 3, []float64{210.5, 230.25, math.NaN(), 250, 260.75, 299})
	return geotiff.Band{Grid: g, Type: geotiff.Float32, NoData: -999, Description: "TIR1"}
}

func l1bBand() geotiff.Band {
	g, _ := rectify.GridFrom(2, 2, []float64{0, 21845, 43690, 65535})
	return geotiff.Band{
		Grid: g, Type: geotiff.Uint16, NoData: 0, Description: "IMG_MIR",
		Stats: &rectify.Stats{Min: 250, Max: 320, Mean: 285, StdDev: 20, Count: 4},
	}
}

func failures(phases []*phase) map[string][]string {
	out := map[string][]string{}
	for _, p := range phases {
		if !p.passed() {
			out[p.name] = p.errors
		}
	}
	return out
}

func TestValidate_WellFormedRasters(t *testing.T) {
	dir := t.TempDir()
	l1c := writeRaster(t, dir, domain.FamilyL1C, "TIR1", l1cBand())
	l1b := writeRaster(t, dir, domain.FamilyL1B, "MIR", l1bBand())

	rasters, err := loadRasters(dir)
	require.NoError(t, err)
	require.Len(t, rasters, 2)

	reports := []product.Report{{
		Source: "3RIMG_18JUN2024_0815_L1C_ASIA_MER_V01R00.h5",
		Outputs: []domain.Raster{
			{Path: l1c, Rows: 2, Cols: 3, SampleType: "float32", Bounds: testBBox},
			{Path: l1b, Rows: 2, Cols: 2, SampleType: "uint16", Bounds: testBBox},
		},
	}}

	phases := validate(rasters, reports)
	assert.Len(t, phases, 4)
	assert.Empty(t, failures(phases))
}

func TestValidate_DetectsProblems(t *testing.T) {
	dir := t.TempDir()

	band := l1cBand()
	band.Description = ""
	writeRaster(t, dir, domain.FamilyL1C, "TIR1", band)

	// Stats that disagree with the pixels of a computed-stats family.
	bad := l1cBand()
	bad.Stats = &rectify.Stats{Min: 0, Max: 1, Mean: 0.5, Count: 5}
	writeRaster(t, dir, domain.FamilyL1C, "TIR2", bad)

	// A renamed file no longer matches its metadata.
	path := writeRaster(t, dir, domain.FamilyL1C, "MIR", l1cBand())
	require.NoError(t, os.Rename(path, filepath.Join(dir, "renamed.tif")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.tif"), []byte("not a tiff"), 0o644))

	rasters, err := loadRasters(dir)
	require.NoError(t, err)

	got := failures(validate(rasters, []product.Report{{
		Outputs: []domain.Raster{{Path: filepath.Join(dir, "missing.tif")}},
	}}))

	require.Len(t, got["Phase 1: Georeferencing"], 1)
	assert.Contains(t, got["Phase 1: Georeferencing"][0], "junk.tif")

	metadata := got["Phase 2: Band Metadata"]
	require.Len(t, metadata, 2)
	assert.Contains(t, metadata[0], "L1C_TIR1_18JUN2024.tif: missing band description")
	assert.Contains(t, metadata[1], "renamed.tif: file name does not match metadata")

	stats := got["Phase 3: Statistics vs Pixels"]
	require.NotEmpty(t, stats)
	for _, e := range stats {
		assert.Contains(t, e, "L1C_TIR2_18JUN2024.tif")
	}

	require.Len(t, got["Phase 4: Report Cross-check"], 1)
	assert.Contains(t, got["Phase 4: Report Cross-check"][0], "not found")
}

func TestValidate_L1BCountBound(t *testing.T) {
	dir := t.TempDir()
	band := l1bBand()
	band.Stats.Count = 1
	writeRaster(t, dir, domain.FamilyL1B, "MIR", band)

	rasters, err := loadRasters(dir)
	require.NoError(t, err)

	got := failures(validate(rasters, nil))
	require.Len(t, got["Phase 3: Statistics vs Pixels"], 1)
	assert.Contains(t, got["Phase 3: Statistics vs Pixels"][0], "3 valid pixels but statistics count 1")
}

func TestApproxEqual(t *testing.T) {
	assert.True(t, approxEqual(1, 1+1e-9))
	assert.True(t, approxEqual(6371000, 6371000.001))
	assert.False(t, approxEqual(0.5, 0.51))
}
