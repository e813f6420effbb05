package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/couchcryptid/swath-rectifier/internal/domain"
	"github.com/couchcryptid/swath-rectifier/internal/product"
)

// Processor rectifies one archive. *product.Dispatcher implements it.
type Processor interface {
	ProcessNamed(ctx context.Context, srcPath, name, outDir string) (*product.Report, error)
}

// ProductTransformer implements Transformer by rectifying the archive a
// product event points at.
type ProductTransformer struct {
	processor   Processor
	outputDir   string
	isolateRuns bool
	logger      *slog.Logger
	newRunID    func() string
}

// NewTransformer creates a ProductTransformer writing under outputDir. With
// isolateRuns every product gets its own subdirectory.
func NewTransformer(processor Processor, outputDir string, isolateRuns bool, logger *slog.Logger) *ProductTransformer {
	return &ProductTransformer{
		processor:   processor,
		outputDir:   outputDir,
		isolateRuns: isolateRuns,
		logger:      logger,
		newRunID:    uuid.NewString,
	}
}

func (t *ProductTransformer) Transform(ctx context.Context, raw domain.RawEvent) ([]domain.OutputEvent, error) {
	ev, err := domain.ParseProductEvent(raw)
	if err != nil {
		return nil, err
	}

	outDir := t.outputDir
	if t.isolateRuns {
		outDir = filepath.Join(outDir, t.newRunID())
	}

	report, err := t.processor.ProcessNamed(ctx, ev.Path, ev.Name(), outDir)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", ev.Name(), err)
	}

	out := make([]domain.OutputEvent, 0, len(report.Outputs))
	for _, r := range report.Outputs {
		o, err := domain.SerializeRasterEvent(domain.NewRasterEvent(r))
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}

	t.logger.Info("product rectified",
		"source", report.Source,
		"family", report.Family,
		"out_dir", outDir,
		"written", len(report.Outputs),
		"skipped", len(report.Skipped),
	)
	return out, nil
}
