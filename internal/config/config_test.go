package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/swath-rectifier/internal/geotiff"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "satellite-products", cfg.KafkaSourceTopic)
	assert.Equal(t, "rectified-rasters", cfg.KafkaSinkTopic)
	assert.Equal(t, "swath-rectifier", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)

	e := cfg.Engine
	assert.Equal(t, "/tmp/rectified", e.OutputDir)
	assert.True(t, e.IsolateRuns)
	assert.InDelta(t, 82.0, e.SubSatelliteLon, 0)
	assert.InDelta(t, 6371.0, e.EarthRadiusKm, 0)
	assert.Equal(t, 1000, e.HistogramBins)
	assert.InDelta(t, 1e-10, e.BackgroundTolerance, 0)
	assert.Zero(t, e.ResampleMaxDistance)
	assert.Equal(t, 512, e.TileSize)
	assert.Equal(t, geotiff.CompressionDeflate, e.Compression)
	assert.Equal(t, []int{2, 4, 8, 16}, e.Overviews)
	assert.Equal(t, 1, e.UnitWorkers)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("OUTPUT_DIR", "/data/out")
	t.Setenv("OUTPUT_ISOLATE_RUNS", "false")
	t.Setenv("SUB_SATELLITE_LON", "74")
	t.Setenv("EARTH_RADIUS_KM", "6378.137")
	t.Setenv("HISTOGRAM_BINS", "256")
	t.Setenv("BACKGROUND_TOLERANCE", "0.5")
	t.Setenv("RESAMPLE_MAX_DISTANCE", "0.1")
	t.Setenv("TILE_SIZE", "256")
	t.Setenv("COMPRESSION", "zstd")
	t.Setenv("OVERVIEW_LEVELS", "2, 4")
	t.Setenv("UNIT_WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)

	assert.Equal(t, Engine{
		OutputDir:           "/data/out",
		IsolateRuns:         false,
		SubSatelliteLon:     74,
		EarthRadiusKm:       6378.137,
		HistogramBins:       256,
		BackgroundTolerance: 0.5,
		ResampleMaxDistance: 0.1,
		TileSize:            256,
		Compression:         geotiff.CompressionZstd,
		Overviews:           []int{2, 4},
		UnitWorkers:         4,
	}, cfg.Engine)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoadEngine_Invalid(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"OUTPUT_ISOLATE_RUNS", "maybe"},
		{"SUB_SATELLITE_LON", "east"},
		{"SUB_SATELLITE_LON", "200"},
		{"EARTH_RADIUS_KM", "0"},
		{"HISTOGRAM_BINS", "0"},
		{"HISTOGRAM_BINS", "1.5"},
		{"BACKGROUND_TOLERANCE", "-1"},
		{"RESAMPLE_MAX_DISTANCE", "-0.1"},
		{"TILE_SIZE", "100"},
		{"TILE_SIZE", "0"},
		{"COMPRESSION", "lzw"},
		{"OVERVIEW_LEVELS", "2,x"},
		{"OVERVIEW_LEVELS", "1,2"},
		{"UNIT_WORKERS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := LoadEngine()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)

			_, err = Load()
			require.Error(t, err, "Load must surface engine errors")
		})
	}
}

func TestEngine_DispatcherOptions(t *testing.T) {
	t.Setenv("SUB_SATELLITE_LON", "74")
	t.Setenv("HISTOGRAM_BINS", "64")
	t.Setenv("RESAMPLE_MAX_DISTANCE", "0.25")
	t.Setenv("TILE_SIZE", "32")
	t.Setenv("COMPRESSION", "none")
	t.Setenv("OVERVIEW_LEVELS", "none")
	t.Setenv("UNIT_WORKERS", "3")

	e, err := LoadEngine()
	require.NoError(t, err)

	opts := e.DispatcherOptions()
	assert.Equal(t, rectify.Disk{SubSatelliteLon: 74, EarthRadius: rectify.DefaultEarthRadiusKm}, opts.Disk)
	assert.Equal(t, rectify.Background{Bins: 64, Tolerance: rectify.DefaultBackgroundTolerance}, opts.Background)
	assert.InDelta(t, 0.25, opts.Resampler.MaxDistance, 0)
	assert.Equal(t, 32, opts.Raster.TileSize)
	assert.Equal(t, geotiff.CompressionNone, opts.Raster.Compression)
	assert.NotNil(t, opts.Raster.Overviews)
	assert.Empty(t, opts.Raster.Overviews)
	assert.Equal(t, 3, opts.Workers)
	assert.Positive(t, opts.CoordCacheSize)
}
