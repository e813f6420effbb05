package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/swath-rectifier/internal/geotiff"
	"github.com/couchcryptid/swath-rectifier/internal/product"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	Engine Engine
}

// Engine holds the rectification settings shared by the service and the CLI.
type Engine struct {
	OutputDir string
	// IsolateRuns gives every processed product its own output directory.
	IsolateRuns bool

	SubSatelliteLon     float64
	EarthRadiusKm       float64
	HistogramBins       int
	BackgroundTolerance float64
	ResampleMaxDistance float64

	TileSize    int
	Compression geotiff.Compression
	// Overviews are the overview reduction factors; empty writes none.
	Overviews   []int
	UnitWorkers int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	engine, err := LoadEngine()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "satellite-products"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "rectified-rasters"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "swath-rectifier"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		Engine:             *engine,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

// LoadEngine reads the rectification settings alone.
func LoadEngine() (*Engine, error) {
	e := &Engine{
		OutputDir: sharedcfg.EnvOrDefault("OUTPUT_DIR", "/tmp/rectified"),
	}
	var err error

	if e.IsolateRuns, err = parseBool("OUTPUT_ISOLATE_RUNS", true); err != nil {
		return nil, err
	}
	if e.SubSatelliteLon, err = parseFloat("SUB_SATELLITE_LON", rectify.DefaultSubSatelliteLon); err != nil {
		return nil, err
	}
	if e.SubSatelliteLon < -180 || e.SubSatelliteLon > 180 {
		return nil, fmt.Errorf("invalid SUB_SATELLITE_LON %g: must be within [-180, 180]", e.SubSatelliteLon)
	}
	if e.EarthRadiusKm, err = parseFloat("EARTH_RADIUS_KM", rectify.DefaultEarthRadiusKm); err != nil {
		return nil, err
	}
	if e.EarthRadiusKm <= 0 {
		return nil, errors.New("invalid EARTH_RADIUS_KM: must be positive")
	}
	if e.HistogramBins, err = parseInt("HISTOGRAM_BINS", rectify.DefaultHistogramBins); err != nil {
		return nil, err
	}
	if e.HistogramBins < 1 {
		return nil, errors.New("invalid HISTOGRAM_BINS: must be at least 1")
	}
	if e.BackgroundTolerance, err = parseFloat("BACKGROUND_TOLERANCE", rectify.DefaultBackgroundTolerance); err != nil {
		return nil, err
	}
	if e.BackgroundTolerance < 0 {
		return nil, errors.New("invalid BACKGROUND_TOLERANCE: must not be negative")
	}
	if e.ResampleMaxDistance, err = parseFloat("RESAMPLE_MAX_DISTANCE", 0); err != nil {
		return nil, err
	}
	if e.ResampleMaxDistance < 0 {
		return nil, errors.New("invalid RESAMPLE_MAX_DISTANCE: must not be negative")
	}
	if e.TileSize, err = parseInt("TILE_SIZE", geotiff.DefaultTileSize); err != nil {
		return nil, err
	}
	if e.TileSize < 16 || e.TileSize%16 != 0 {
		return nil, fmt.Errorf("invalid TILE_SIZE %d: must be a positive multiple of 16", e.TileSize)
	}
	if e.Compression, err = geotiff.ParseCompression(sharedcfg.EnvOrDefault("COMPRESSION", string(geotiff.CompressionDeflate))); err != nil {
		return nil, fmt.Errorf("invalid COMPRESSION: %w", err)
	}
	if e.Overviews, err = parseOverviews(sharedcfg.EnvOrDefault("OVERVIEW_LEVELS", "2,4,8,16")); err != nil {
		return nil, err
	}
	if e.UnitWorkers, err = parseInt("UNIT_WORKERS", 1); err != nil {
		return nil, err
	}
	if e.UnitWorkers < 1 {
		return nil, errors.New("invalid UNIT_WORKERS: must be at least 1")
	}

	return e, nil
}

// DispatcherOptions maps the engine settings onto product.Options.
func (e Engine) DispatcherOptions() product.Options {
	opts := product.DefaultOptions()
	opts.Disk = rectify.Disk{SubSatelliteLon: e.SubSatelliteLon, EarthRadius: e.EarthRadiusKm}
	opts.Background = rectify.Background{Bins: e.HistogramBins, Tolerance: e.BackgroundTolerance}
	opts.Resampler = rectify.Resampler{MaxDistance: e.ResampleMaxDistance}
	opts.Raster = geotiff.Options{TileSize: e.TileSize, Compression: e.Compression, Overviews: e.Overviews}
	opts.Workers = e.UnitWorkers
	return opts
}

func parseFloat(key string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseInt(key string, def int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// parseOverviews reads a comma-separated list of reduction factors. "none"
// disables overviews.
func parseOverviews(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid OVERVIEW_LEVELS: %w", err)
		}
		if v < 2 {
			return nil, fmt.Errorf("invalid OVERVIEW_LEVELS %d: factors must be at least 2", v)
		}
		out = append(out, v)
	}
	return out, nil
}
