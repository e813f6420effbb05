// Command convert rectifies INSAT-3D HDF5 archives into GeoTIFFs without
// Kafka. Engine settings come from the same environment variables as the
// service; flags override them.
//
// Usage:
//
//	go run ./cmd/convert -out /data/tif [-workers 4] [-compression zstd] \
//	  [-report report.json] 3RIMG_18JUN2024_0815_L1B_STD_V01R00.h5 ...
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	hdf5adapter "github.com/couchcryptid/swath-rectifier/internal/adapter/hdf5"
	"github.com/couchcryptid/swath-rectifier/internal/config"
	"github.com/couchcryptid/swath-rectifier/internal/geotiff"
	"github.com/couchcryptid/swath-rectifier/internal/product"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], hdf5adapter.Opener, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "convert:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, open product.Opener, stdout, stderr io.Writer) error {
	engine, err := config.LoadEngine()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outDir := fs.String("out", engine.OutputDir, "directory receiving the GeoTIFFs")
	workers := fs.Int("workers", engine.UnitWorkers, "units rectified concurrently per archive")
	compression := fs.String("compression", string(engine.Compression), "tile compression: deflate, zstd or none")
	reportPath := fs.String("report", "", "write the per-archive reports as JSON to this path")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no input archives")
	}
	if *workers < 1 {
		return errors.New("-workers must be at least 1")
	}
	if engine.Compression, err = geotiff.ParseCompression(*compression); err != nil {
		return err
	}
	engine.UnitWorkers = *workers

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("-log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	d := product.NewDispatcher(open, engine.DispatcherOptions(), logger, nil)

	var (
		reports []*product.Report
		failed  int
	)
	for _, path := range fs.Args() {
		report, err := d.Process(ctx, path, *outDir)
		if report != nil {
			printReport(stdout, report)
			reports = append(reports, report)
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failed++
			fmt.Fprintf(stdout, "FAILED  %s: %v\n", path, err)
			logger.Error("archive failed", "source", path, "error", err)
		}
	}

	if *reportPath != "" {
		if err := writeReports(*reportPath, reports); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed", failed, fs.NArg())
	}
	return nil
}

func printReport(w io.Writer, r *product.Report) {
	for _, o := range r.Outputs {
		fmt.Fprintf(w, "WROTE   %s (%dx%d %s, lon %.4f..%.4f lat %.4f..%.4f)\n",
			o.Path, o.Cols, o.Rows, o.SampleType, o.Bounds.West, o.Bounds.East, o.Bounds.South, o.Bounds.North)
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "SKIPPED %s %s: %s (%s)\n", r.Source, s.Unit, s.Reason, s.Error)
	}
}

func writeReports(path string, reports []*product.Report) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reports: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	return nil
}
