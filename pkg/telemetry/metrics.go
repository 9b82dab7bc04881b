package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for engine runs.
type Metrics struct {
	config MetricsConfig

	// Epoch metrics
	epochsStarted   *prometheus.CounterVec
	epochsCompleted *prometheus.CounterVec
	epochDuration   *prometheus.HistogramVec

	// Batch metrics
	batchesProcessed *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec

	// Error metrics
	errorsByStage *prometheus.CounterVec

	// Quality metrics
	sequenceError *prometheus.GaugeVec

	// System metrics
	activeEpochs prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance; every recorder checks for nil collectors.
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		epochsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "epochs_started_total",
				Help:      "Total number of epochs started",
			},
			[]string{"engine"},
		),
		epochsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "epochs_completed_total",
				Help:      "Total number of epochs finished, by status",
			},
			[]string{"engine", "status"},
		),
		epochDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "epoch_duration_seconds",
				Help:      "Duration of epochs in seconds",
				Buckets:   buckets,
			},
			[]string{"engine"},
		),

		batchesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_processed_total",
				Help:      "Total number of batches passed through the model",
			},
			[]string{"engine"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time from batch start to batch end in seconds",
				Buckets:   buckets,
			},
			[]string{"engine"},
		),

		errorsByStage: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of aborted epochs by error code",
			},
			[]string{"engine", "code"},
		),

		sequenceError: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sequence_error_ratio",
				Help:      "Last measured sequence error rate (CER or WER)",
			},
			[]string{"engine", "unit"},
		),

		activeEpochs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_epochs",
				Help:      "Current number of running epochs",
			},
		),
	}

	registry.MustRegister(
		m.epochsStarted,
		m.epochsCompleted,
		m.epochDuration,
		m.batchesProcessed,
		m.batchDuration,
		m.errorsByStage,
		m.sequenceError,
		m.activeEpochs,
	)

	return m, nil
}

// Epoch Metrics

// RecordEpochStarted increments the counter for started epochs.
func (m *Metrics) RecordEpochStarted(engine string) {
	if m.epochsStarted == nil {
		return
	}
	m.epochsStarted.WithLabelValues(engine).Inc()
	m.activeEpochs.Inc()
}

// RecordEpochCompleted records a finished epoch with its status and duration.
func (m *Metrics) RecordEpochCompleted(engine, status string, duration time.Duration) {
	if m.epochsCompleted == nil {
		return
	}
	m.epochsCompleted.WithLabelValues(engine, status).Inc()
	m.epochDuration.WithLabelValues(engine).Observe(duration.Seconds())
	m.activeEpochs.Dec()
}

// Batch Metrics

// RecordBatch records one processed batch and its latency.
func (m *Metrics) RecordBatch(engine string, duration time.Duration) {
	if m.batchesProcessed == nil {
		return
	}
	m.batchesProcessed.WithLabelValues(engine).Inc()
	m.batchDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an aborted epoch by error code.
func (m *Metrics) RecordError(engine, code string) {
	if m.errorsByStage == nil {
		return
	}
	if code == "" {
		code = "UNKNOWN"
	}
	m.errorsByStage.WithLabelValues(engine, code).Inc()
}

// Quality Metrics

// SetSequenceError publishes the latest error rate; unit is "char" or "word".
func (m *Metrics) SetSequenceError(engine, unit string, value float64) {
	if m.sequenceError == nil {
		return
	}
	m.sequenceError.WithLabelValues(engine, unit).Set(value)
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewMetricsServer returns an HTTP server exposing the metrics endpoint on
// addr, or nil when metrics are disabled. An empty addr uses the configured
// listen address.
func (m *Metrics) NewMetricsServer(addr string) *http.Server {
	if !m.config.Enabled {
		return nil
	}
	if addr == "" {
		addr = m.config.ListenAddress
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
