package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swath_rectifier"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// rectification service.
type Metrics struct {
	ProductsConsumed prometheus.Counter
	RastersProduced  prometheus.Counter
	ProductErrors    prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Per-unit metrics.
	UnitsWritten *prometheus.CounterVec   // labels: family
	UnitsSkipped *prometheus.CounterVec   // labels: family, reason
	UnitDuration *prometheus.HistogramVec // labels: family
	CoordCache   *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ProductsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_consumed_total",
			Help:      "Total product events read from the source topic.",
		}),
		RastersProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rasters_produced_total",
			Help:      "Total raster events written to the sink topic.",
		}),
		ProductErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "product_errors_total",
			Help:      "Total products aborted without output.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of product events per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-rectify-load cycle.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		UnitsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_written_total",
			Help:      "Rasters written by product family.",
		}, []string{"family"}),
		UnitsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_skipped_total",
			Help:      "Units skipped by product family and reason.",
		}, []string{"family", "reason"}),
		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Time to rectify and write one unit.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"family"}),
		CoordCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinate_cache_total",
			Help:      "Descaled coordinate cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.ProductsConsumed,
		m.RastersProduced,
		m.ProductErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.UnitsWritten,
		m.UnitsSkipped,
		m.UnitDuration,
		m.CoordCache,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ProductsConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "products_consumed_total"}),
		RastersProduced:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rasters_produced_total"}),
		ProductErrors:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "product_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_processing_duration_seconds"}),
		UnitsWritten:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "units_written_total"}, []string{"family"}),
		UnitsSkipped:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "units_skipped_total"}, []string{"family", "reason"}),
		UnitDuration:            prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "unit_duration_seconds"}, []string{"family"}),
		CoordCache:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "coordinate_cache_total"}, []string{"result"}),
	}
}
