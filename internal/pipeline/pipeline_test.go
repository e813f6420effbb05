package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/swath-rectifier/internal/domain"
	"github.com/couchcryptid/swath-rectifier/internal/observability"
	"github.com/couchcryptid/swath-rectifier/internal/pipeline"
)

// --- mocks ---

// mockExtractor hands out its events in one batch, then blocks until the
// context is cancelled.
type mockExtractor struct {
	events []domain.RawEvent
	calls  atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	if m.calls.Add(1) == 1 && len(m.events) > 0 {
		return m.events, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	outputs int
	err     error
	// onTransform runs before the result is returned.
	onTransform func()
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) ([]domain.OutputEvent, error) {
	if m.onTransform != nil {
		m.onTransform()
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.OutputEvent, m.outputs)
	for i := range out {
		out[i] = domain.OutputEvent{Key: raw.Key, Value: raw.Value}
	}
	return out, nil
}

type mockLoader struct {
	loaded []domain.OutputEvent
	calls  int
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func makeRawEvent(key string, committed *bool) domain.RawEvent {
	return domain.RawEvent{
		Key:   []byte(key),
		Value: []byte(`{"path":"/data/in/` + key + `.h5"}`),
		Topic: "satellite-products",
		Commit: func(_ context.Context) error {
			*committed = true
			return nil
		},
	}
}

func run(t *testing.T, p *pipeline.Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var committed bool
	ext := &mockExtractor{events: []domain.RawEvent{makeRawEvent("a", &committed)}}
	tfm := &mockTransformer{outputs: 2}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, tfm, ldr, slog.Default(), metrics, 10)
	run(t, p)

	assert.Len(t, ldr.loaded, 2)
	assert.True(t, committed)
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProductsConsumed), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.RastersProduced), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Error(t, p.CheckReadiness(ctx))
}

func TestPipeline_Run_TransformError(t *testing.T) {
	var committed bool
	ext := &mockExtractor{events: []domain.RawEvent{makeRawEvent("bad", &committed)}}
	tfm := &mockTransformer{err: errors.New("unknown product")}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, tfm, ldr, slog.Default(), metrics, 10)
	run(t, p)

	assert.Zero(t, ldr.calls)
	assert.True(t, committed, "failed products are committed so they are not redelivered")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProductErrors), 0)

	err := p.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not processed any products")
}

func TestPipeline_Run_ProductWithoutRasters(t *testing.T) {
	var committed bool
	ext := &mockExtractor{events: []domain.RawEvent{makeRawEvent("empty", &committed)}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)
	run(t, p)

	assert.Empty(t, ldr.loaded)
	assert.True(t, committed)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_MixedBatch(t *testing.T) {
	var okCommitted, badCommitted bool
	good := makeRawEvent("good", &okCommitted)
	bad := makeRawEvent("bad", &badCommitted)

	ext := &mockExtractor{events: []domain.RawEvent{good, bad}}
	calls := 0
	tfm := &mockTransformer{outputs: 1}
	tfm.onTransform = func() {
		calls++
		if calls == 2 {
			tfm.err = errors.New("boom")
		}
	}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, tfm, ldr, slog.Default(), metrics, 10)
	run(t, p)

	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, []byte("good"), ldr.loaded[0].Key)
	assert.True(t, okCommitted)
	assert.True(t, badCommitted)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProductErrors), 0)
}

func TestPipeline_Run_InterruptedProductNotCommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var committed bool
	ext := &mockExtractor{events: []domain.RawEvent{makeRawEvent("slow", &committed)}}
	tfm := &mockTransformer{err: context.Canceled, onTransform: cancel}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, tfm, ldr, slog.Default(), metrics, 10)
	require.NoError(t, p.Run(ctx))

	assert.False(t, committed, "interrupted products must be redelivered")
	assert.Zero(t, ldr.calls)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.ProductErrors), 0)
}

func TestPipeline_Run_LoadErrorSkipsCommit(t *testing.T) {
	var committed bool
	ext := &mockExtractor{events: []domain.RawEvent{makeRawEvent("a", &committed)}}
	ldr := &mockLoader{err: errors.New("broker unavailable")}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{outputs: 1}, ldr, slog.Default(), metrics, 10)
	run(t, p)

	assert.Equal(t, 1, ldr.calls)
	assert.False(t, committed)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.RastersProduced), 0)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadErrorHoldsBackFailedCommits(t *testing.T) {
	var goodCommitted, badCommitted bool
	good := makeRawEvent("good", &goodCommitted)
	good.Offset = 10
	bad := makeRawEvent("bad", &badCommitted)
	bad.Offset = 11

	ext := &mockExtractor{events: []domain.RawEvent{good, bad}}
	calls := 0
	tfm := &mockTransformer{outputs: 1}
	tfm.onTransform = func() {
		calls++
		if calls == 2 {
			tfm.err = errors.New("boom")
		}
	}
	ldr := &mockLoader{err: errors.New("broker unavailable")}

	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10)
	run(t, p)

	assert.Equal(t, 1, ldr.calls)
	assert.False(t, goodCommitted)
	assert.False(t, badCommitted, "a later offset must not be committed before the earlier success is loaded")
}

func TestPipeline_Run_CommitsInBatchOrder(t *testing.T) {
	var order []string
	event := func(key string, offset int64) domain.RawEvent {
		return domain.RawEvent{
			Key:    []byte(key),
			Offset: offset,
			Commit: func(_ context.Context) error {
				order = append(order, key)
				return nil
			},
		}
	}

	ext := &mockExtractor{events: []domain.RawEvent{event("a", 1), event("b", 2), event("c", 3)}}
	calls := 0
	tfm := &mockTransformer{outputs: 1}
	tfm.onTransform = func() {
		calls++
		tfm.err = nil
		if calls == 2 {
			tfm.err = errors.New("boom")
		}
	}
	ldr := &mockLoader{}

	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10)
	run(t, p)

	assert.Len(t, ldr.loaded, 2)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
