// Command validate checks rectified GeoTIFFs for integrity: georeferencing,
// band metadata, and statistics against the pixel data. With -report it also
// cross-checks the rasters listed by cmd/convert.
//
// Usage:
//
//	go run ./cmd/validate -dir /data/tif [-report report.json]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/swath-rectifier/internal/domain"
	"github.com/couchcryptid/swath-rectifier/internal/geotiff"
	"github.com/couchcryptid/swath-rectifier/internal/product"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

const (
	epsgWGS84 = 4326
	// relTol bounds relative differences between recorded and recomputed values.
	relTol = 1e-6
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "directory containing rectified .tif files")
	reportPath := flag.String("report", "", "optional JSON report written by cmd/convert")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *reportPath); code != 0 {
		os.Exit(code)
	}
}

func run(dir, reportPath string) int {
	fmt.Println("=== Raster Integrity Validation ===")
	fmt.Println()

	rasters, err := loadRasters(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load rasters: %v\n", err)
		return 1
	}
	if len(rasters) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no .tif files in %s\n", dir)
		return 1
	}

	var reports []product.Report
	if reportPath != "" {
		if reports, err = loadReports(reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load report: %v\n", err)
			return 1
		}
	}

	phases := validate(rasters, reports)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rasters: %d files, %d reported outputs\n", len(rasters), countOutputs(reports))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// rasterFile is a parsed GeoTIFF with its path, or the error opening it.
type rasterFile struct {
	path   string
	raster *geotiff.Raster
	err    error
}

func loadRasters(dir string) ([]rasterFile, error) {
	var out []rasterFile
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".tif") {
			return nil
		}
		r, err := geotiff.Open(path)
		out = append(out, rasterFile{path: path, raster: r, err: err})
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, err
}

func loadReports(path string) ([]product.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reports []product.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func countOutputs(reports []product.Report) int {
	n := 0
	for _, r := range reports {
		n += len(r.Outputs)
	}
	return n
}

func validate(rasters []rasterFile, reports []product.Report) []*phase {
	phases := []*phase{
		validateGeoreferencing(rasters),
		validateBandMetadata(rasters),
		validateStatistics(rasters),
	}
	if len(reports) > 0 {
		phases = append(phases, validateReports(rasters, reports))
	}
	return phases
}

// ── Phase 1: Georeferencing ──

func validateGeoreferencing(rasters []rasterFile) *phase {
	p := &phase{name: "Phase 1: Georeferencing"}

	for _, f := range rasters {
		if f.err != nil {
			p.errorf("%s: %v", f.path, f.err)
			continue
		}
		r := f.raster
		if r.EPSG != epsgWGS84 {
			p.errorf("%s: EPSG %d, want %d", f.path, r.EPSG, epsgWGS84)
		}
		gt := r.GeoTransform
		if gt[2] != 0 || gt[4] != 0 {
			p.errorf("%s: rotated geotransform %v", f.path, gt)
		}
		if gt.PixelWidth() <= 0 || gt.PixelHeight() <= 0 {
			p.errorf("%s: non-positive pixel size %g x %g", f.path, gt.PixelWidth(), gt.PixelHeight())
			continue
		}
		b := r.Bounds()
		if b.West < -180-relTol || b.East > 180+relTol || b.South < -90-relTol || b.North > 90+relTol {
			p.errorf("%s: bounds %+v outside the globe", f.path, b)
		}
		// The pixel size must reconstruct the extent it was derived from.
		width := gt.PixelWidth() * float64(r.Width-1)
		height := gt.PixelHeight() * float64(r.Height-1)
		if !approxEqual(width, b.East-b.West) || !approxEqual(height, b.North-b.South) {
			p.errorf("%s: pixel size %g x %g does not span %+v", f.path, gt.PixelWidth(), gt.PixelHeight(), b)
		}
	}
	return p
}

// ── Phase 2: Band metadata ──

func validateBandMetadata(rasters []rasterFile) *phase {
	p := &phase{name: "Phase 2: Band Metadata"}

	for _, f := range rasters {
		if f.err != nil {
			continue
		}
		r := f.raster
		if !r.HasNoData {
			p.errorf("%s: missing nodata value", f.path)
		}
		if r.Description == "" {
			p.errorf("%s: missing band description", f.path)
		}
		fam := domain.ProductFamily(r.Metadata["PRODUCT_FAMILY"])
		if !fam.Known() {
			p.errorf("%s: unrecognized PRODUCT_FAMILY %q", f.path, fam)
			continue
		}
		want := domain.OutputName(fam, r.Metadata["UNIT"], r.Metadata["DATE"])
		if filepath.Base(f.path) != want {
			p.errorf("%s: file name does not match metadata, want %s", f.path, want)
		}
	}
	return p
}

// ── Phase 3: Statistics ──
// L1B statistics describe the source radiometry, so only their shape is
// checked; every other family records statistics of the written pixels.

func validateStatistics(rasters []rasterFile) *phase {
	p := &phase{name: "Phase 3: Statistics vs Pixels"}

	for _, f := range rasters {
		if f.err != nil {
			continue
		}
		r := f.raster
		st, ok := r.Stats()
		if !ok {
			p.errorf("%s: missing statistics", f.path)
			continue
		}
		if st.Min > st.Max || st.StdDev < 0 {
			p.errorf("%s: inconsistent statistics %+v", f.path, st)
		}

		values, err := r.Values()
		if err != nil {
			p.errorf("%s: decode pixels: %v", f.path, err)
			continue
		}
		valid := validPixels(values, r.NoData)

		if r.Metadata["PRODUCT_FAMILY"] == string(domain.FamilyL1B) {
			if len(valid) > st.Count {
				p.errorf("%s: %d valid pixels but statistics count %d", f.path, len(valid), st.Count)
			}
			continue
		}

		got := rectify.Summarize(valid)
		if got.Count != st.Count {
			p.errorf("%s: valid count %d, recorded %d", f.path, got.Count, st.Count)
		}
		for _, c := range []struct {
			name      string
			got, want float64
		}{
			{"minimum", got.Min, st.Min},
			{"maximum", got.Max, st.Max},
			{"mean", got.Mean, st.Mean},
			{"stddev", got.StdDev, st.StdDev},
		} {
			if !approxEqual(c.got, c.want) {
				p.errorf("%s: %s %g, recorded %g", f.path, c.name, c.got, c.want)
			}
		}
	}
	return p
}

func validPixels(g *rectify.Grid, nodata float64) []float64 {
	out := make([]float64, 0, g.Len())
	for _, v := range g.Data {
		if v == nodata || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ── Phase 4: Report cross-check ──

func validateReports(rasters []rasterFile, reports []product.Report) *phase {
	p := &phase{name: "Phase 4: Report Cross-check"}

	byPath := make(map[string]*geotiff.Raster, len(rasters))
	for _, f := range rasters {
		if f.err == nil {
			abs, _ := filepath.Abs(f.path)
			byPath[abs] = f.raster
		}
	}

	for _, rep := range reports {
		for _, o := range rep.Outputs {
			abs, _ := filepath.Abs(o.Path)
			r, ok := byPath[abs]
			if !ok {
				p.errorf("%s %s: reported file %s not found", rep.Source, o.Unit, o.Path)
				continue
			}
			if r.Width != o.Cols || r.Height != o.Rows {
				p.errorf("%s: %dx%d on disk, reported %dx%d", o.Path, r.Width, r.Height, o.Cols, o.Rows)
			}
			if r.Type.String() != o.SampleType {
				p.errorf("%s: sample type %s on disk, reported %s", o.Path, r.Type, o.SampleType)
			}
			b := r.Bounds()
			if !approxEqual(b.West, o.Bounds.West) || !approxEqual(b.East, o.Bounds.East) ||
				!approxEqual(b.South, o.Bounds.South) || !approxEqual(b.North, o.Bounds.North) {
				p.errorf("%s: bounds %+v on disk, reported %+v", o.Path, b, o.Bounds)
			}
		}
	}
	return p
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= relTol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
