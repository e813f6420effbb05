package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/swath-rectifier/internal/adapter/http"
	"github.com/couchcryptid/swath-rectifier/internal/domain"
	"github.com/couchcryptid/swath-rectifier/internal/observability"
	"github.com/couchcryptid/swath-rectifier/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, slog.Default())
}

func get(t *testing.T, srv http.Handler, path string) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthzReturns200(t *testing.T) {
	code, body := get(t, newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		readyErr error
		code     int
		status   string
	}{
		{"ready", nil, http.StatusOK, "ready"},
		{"not ready", errors.New("not ready yet"), http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, newTestServer(tt.readyErr), "/readyz")

			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, body["status"])
			if tt.readyErr != nil {
				assert.Equal(t, tt.readyErr.Error(), body["error"])
			}
		})
	}
}

type emptyExtractor struct{}

func (emptyExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReadyzFollowsPipeline(t *testing.T) {
	p := pipeline.New(emptyExtractor{}, nil, nil, slog.Default(), observability.NewMetricsForTesting(), 1)
	srv := httpadapter.NewServer(":0", p, slog.Default())

	code, body := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body["error"], "not processed any products")
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.UnitsWritten.WithLabelValues(string(domain.FamilyL1B)).Inc()

	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), `swath_rectifier_units_written_total{family="L1B"} 1`)
}

func TestShutdownBeforeStart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, newTestServer(nil).Shutdown(ctx))
}
