// Package product turns one archive into per-unit rasters. The family of the
// archive selects a composition of the rectify stages; units are processed
// independently and a failing unit never stops its siblings.
package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/swath-rectifier/internal/domain"
	"github.com/couchcryptid/swath-rectifier/internal/geotiff"
	"github.com/couchcryptid/swath-rectifier/internal/observability"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// DefaultCoordCacheSize holds the three coordinate resolutions of an L1B
// archive with room to spare.
const DefaultCoordCacheSize = 4

// Options configures a Dispatcher.
type Options struct {
	Disk       rectify.Disk
	Background rectify.Background
	Resampler  rectify.Resampler
	// Raster holds tiling and compression; Metadata is filled per unit.
	Raster geotiff.Options
	// Workers bounds how many units of one file run at once.
	Workers        int
	CoordCacheSize int
}

// DefaultOptions returns the settings used for INSAT-3D products.
func DefaultOptions() Options {
	return Options{
		Disk:           rectify.DefaultDisk(),
		Background:     rectify.DefaultBackground(),
		Raster:         geotiff.Options{TileSize: geotiff.DefaultTileSize, Compression: geotiff.CompressionDeflate},
		Workers:        1,
		CoordCacheSize: DefaultCoordCacheSize,
	}
}

// Skipped records a unit that produced no raster.
type Skipped struct {
	Unit   string `json:"unit"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Report is the outcome of one Process call. Outputs and Skipped follow unit
// order.
type Report struct {
	Source  string               `json:"source"`
	Family  domain.ProductFamily `json:"family"`
	Date    string               `json:"date"`
	Outputs []domain.Raster      `json:"outputs"`
	Skipped []Skipped            `json:"skipped"`
}

// Dispatcher routes archives to the composition of their family.
type Dispatcher struct {
	open    Opener
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(open Opener, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Dispatcher{open: open, opts: opts, logger: logger, metrics: metrics}
}

// Process rectifies the archive at srcPath into outDir, detecting the family
// and date from the file name.
func (d *Dispatcher) Process(ctx context.Context, srcPath, outDir string) (*Report, error) {
	return d.ProcessNamed(ctx, srcPath, srcPath, outDir)
}

// ProcessNamed is Process with the product name given separately from the
// local path, for archives stored under a different name.
func (d *Dispatcher) ProcessNamed(ctx context.Context, srcPath, name, outDir string) (*Report, error) {
	fam, date, err := domain.ParseProductName(name)
	if err != nil {
		return nil, err
	}
	comp := compositions[fam]

	opened, err := d.open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableSource, err)
	}
	src := &lockedSource{src: opened}
	defer src.Close()

	names, err := src.DatasetNames()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableSource, err)
	}

	job := &fileJob{
		comp:   comp,
		src:    src,
		source: filepath.Base(name),
		date:   date,
		outDir: outDir,
	}
	if comp.geometry == gridded {
		if job.bounds, err = readBounds(src); err != nil {
			return nil, err
		}
	} else {
		job.coords = newCoordCache(src, d.opts.Disk, d.opts.CoordCacheSize, d.metrics)
	}

	// Created only once the archive is known to be usable, so aborted
	// products leave no empty run directory behind.
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	units := comp.units(names)
	d.logger.Info("processing product",
		"source", job.source, "family", fam, "date", date, "units", len(units))

	results := make([]unitResult, len(units))
	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for i, u := range units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = d.runUnit(job, u)
			results[i].done = true
			return nil
		})
	}
	waitErr := g.Wait()

	report := &Report{Source: job.source, Family: fam, Date: date}
	for i, r := range results {
		if !r.done {
			continue
		}
		if r.err != nil {
			report.Skipped = append(report.Skipped, Skipped{Unit: units[i].name, Reason: r.reason, Error: r.err.Error()})
			continue
		}
		report.Outputs = append(report.Outputs, r.raster)
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("process %s: %w", job.source, err)
	}
	if waitErr != nil {
		return report, fmt.Errorf("process %s: %w", job.source, waitErr)
	}
	d.logger.Info("product processed",
		"source", job.source, "family", fam, "written", len(report.Outputs), "skipped", len(report.Skipped))
	return report, nil
}

// fileJob is the per-file state shared by the units of one archive.
type fileJob struct {
	comp   composition
	src    Source
	source string
	date   string
	outDir string
	bounds bounds
	coords *coordCache
}

type unitResult struct {
	raster domain.Raster
	reason string
	err    error
	done   bool
}

func (d *Dispatcher) runUnit(job *fileJob, u unit) unitResult {
	start := time.Now()
	fam := string(job.comp.family)

	raster, err := d.rectifyUnit(job, u)
	if err != nil {
		reason := skipReason(err)
		d.logger.Warn("unit skipped",
			"source", job.source, "family", fam, "unit", u.name, "reason", reason, "error", err)
		if d.metrics != nil {
			d.metrics.UnitsSkipped.WithLabelValues(fam, reason).Inc()
		}
		return unitResult{reason: reason, err: err}
	}

	d.logger.Info("raster written",
		"source", job.source, "family", fam, "unit", u.name, "path", raster.Path,
		"rows", raster.Rows, "cols", raster.Cols)
	if d.metrics != nil {
		d.metrics.UnitsWritten.WithLabelValues(fam).Inc()
		d.metrics.UnitDuration.WithLabelValues(fam).Observe(time.Since(start).Seconds())
	}
	return unitResult{raster: raster}
}

func (d *Dispatcher) rectifyUnit(job *fileJob, u unit) (domain.Raster, error) {
	data, err := job.src.ReadGrid(u.dataset)
	if err != nil {
		return domain.Raster{}, err
	}

	var (
		band geotiff.Band
		bbox rectify.BBox
	)
	if job.comp.geometry == gridded {
		band, bbox, err = d.gridded(job, u, data)
	} else {
		band, bbox, err = d.swath(job, u, data)
	}
	if err != nil {
		return domain.Raster{}, err
	}

	path := filepath.Join(job.outDir, domain.OutputName(job.comp.family, u.name, job.date))
	opts := d.opts.Raster
	opts.Metadata = map[string]string{
		"PRODUCT_FAMILY": string(job.comp.family),
		"SOURCE_FILE":    job.source,
		"DATE":           job.date,
		"UNIT":           u.name,
	}
	gt, err := geotiff.Write(path, band, bbox, opts)
	if err != nil {
		return domain.Raster{}, fmt.Errorf("%w: %w", errWriteFailed, err)
	}

	return domain.Raster{
		Family:       job.comp.family,
		Unit:         u.name,
		Date:         job.date,
		Source:       job.source,
		Path:         path,
		Rows:         band.Grid.Rows,
		Cols:         band.Grid.Cols,
		SampleType:   band.Type.String(),
		Bounds:       bbox,
		GeoTransform: gt,
		Stats:        band.Statistics(),
	}, nil
}

// swath runs descale, disk, background and normalization, then either keeps
// the native grid or resamples onto a regular one.
func (d *Dispatcher) swath(job *fileJob, u unit, data *rectify.Grid) (geotiff.Band, rectify.BBox, error) {
	geo := job.coords.get(u.coords)
	if geo.err != nil {
		return geotiff.Band{}, rectify.BBox{}, geo.err
	}
	if !geo.disk.Matches(data) {
		return geotiff.Band{}, rectify.BBox{}, fmt.Errorf("channel %s is %dx%d, coordinates %dx%d: %w",
			u.dataset, data.Rows, data.Cols, geo.disk.Rows, geo.disk.Cols, rectify.ErrShapeMismatch)
	}

	mask, _, err := d.opts.Background.Suppress(data, geo.disk)
	if err != nil {
		return geotiff.Band{}, rectify.BBox{}, err
	}
	norm, stats, err := rectify.Normalize(data, mask)
	if err != nil {
		return geotiff.Band{}, rectify.BBox{}, err
	}

	band := geotiff.Band{Type: job.comp.sample, NoData: job.comp.nodata, Description: u.dataset}
	if job.comp.resample {
		grid, bbox, err := d.opts.Resampler.Resample(geo.coords, norm, mask, data.Rows, data.Cols)
		if err != nil {
			return geotiff.Band{}, rectify.BBox{}, err
		}
		band.Grid = grid
		return band, bbox, nil
	}

	bbox, err := rectify.Bounds(geo.coords, mask)
	if err != nil {
		return geotiff.Band{}, rectify.BBox{}, err
	}
	band.Grid = norm
	band.Stats = &stats
	return band, bbox, nil
}

// gridded writes the channel as stored, georeferenced by the file bounds.
func (d *Dispatcher) gridded(job *fileJob, u unit, data *rectify.Grid) (geotiff.Band, rectify.BBox, error) {
	b := job.bounds
	coords, err := rectify.RegularCoords(b.left, b.right, b.upper, b.lower, data.Rows, data.Cols)
	if err != nil {
		return geotiff.Band{}, rectify.BBox{}, err
	}
	bbox, err := rectify.Extent(coords)
	if err != nil {
		return geotiff.Band{}, rectify.BBox{}, err
	}
	return geotiff.Band{
		Grid:        data,
		Type:        job.comp.sample,
		NoData:      job.comp.nodata,
		Description: u.name,
	}, bbox, nil
}

type bounds struct {
	left, right, upper, lower float64
}

func readBounds(src Source) (bounds, error) {
	var b bounds
	for _, a := range []struct {
		name string
		dst  *float64
	}{
		{attrLeftLon, &b.left},
		{attrRightLon, &b.right},
		{attrUpperLat, &b.upper},
		{attrLowerLat, &b.lower},
	} {
		v, err := src.ReadAttr(a.name)
		if err != nil {
			return bounds{}, fmt.Errorf("%w: %w", ErrUnreadableSource, err)
		}
		*a.dst = v
	}
	return b, nil
}

// lockedSource serializes access to a Source shared by unit workers.
type lockedSource struct {
	mu  sync.Mutex
	src Source
}

func (s *lockedSource) DatasetNames() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.DatasetNames()
}

func (s *lockedSource) ReadGrid(name string) (*rectify.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.ReadGrid(name)
}

func (s *lockedSource) ReadAttr(name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.ReadAttr(name)
}

func (s *lockedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Close()
}

var errWriteFailed = errors.New("write failed")

// Skip reasons.
const (
	ReasonEmptyMask      = "empty_mask"
	ReasonNoDynamicRange = "no_dynamic_range"
	ReasonShapeMismatch  = "shape_mismatch"
	ReasonMissingDataset = "missing_dataset"
	ReasonWriteFailed    = "write_failed"
	ReasonOther          = "other"
)

func skipReason(err error) string {
	switch {
	case errors.Is(err, rectify.ErrEmptyMask):
		return ReasonEmptyMask
	case errors.Is(err, rectify.ErrNoDynamicRange):
		return ReasonNoDynamicRange
	case errors.Is(err, rectify.ErrShapeMismatch), errors.Is(err, geotiff.ErrDegenerateShape):
		return ReasonShapeMismatch
	case errors.Is(err, ErrMissingDataset):
		return ReasonMissingDataset
	case errors.Is(err, errWriteFailed):
		return ReasonWriteFailed
	default:
		return ReasonOther
	}
}
