package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the clone engine.
type Metrics struct {
	config MetricsConfig

	// Clone metrics
	clonesTotal     *prometheus.CounterVec
	cloneDuration   *prometheus.HistogramVec
	objectsCopied   prometheus.Counter
	objectsPerClone prometheus.Histogram
	activeClones    prometheus.Gauge

	// CopyInto metrics
	copyIntoTotal *prometheus.CounterVec

	// Strategy cache metrics
	strategiesCompiled *prometheus.CounterVec
	strategyCacheSize  prometheus.Gauge

	// Policy metrics
	policyEvaluations *prometheus.CounterVec
	policyDuration    *prometheus.HistogramVec

	// Configuration metrics
	configReloads *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		clonesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clones_total",
				Help:      "Total number of root copies by root category",
			},
			[]string{"category"},
		),
		cloneDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "clone_duration_seconds",
				Help:      "Duration of a root copy in seconds",
				Buckets:   buckets,
			},
			[]string{"category"},
		),
		objectsCopied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_copied_total",
				Help:      "Total number of reference objects allocated by copies",
			},
		),
		objectsPerClone: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "objects_per_clone",
				Help:      "Number of reference objects allocated per root copy",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		activeClones: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_clones",
				Help:      "Current number of copies in progress",
			},
		),

		copyIntoTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "copy_into_total",
				Help:      "Total number of copy-into calls",
			},
			[]string{"mode", "status"},
		),

		strategiesCompiled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategies_compiled_total",
				Help:      "Total number of per-type copy strategies compiled",
			},
			[]string{"category"},
		),
		strategyCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "strategy_cache_size",
				Help:      "Current number of cached copy strategies",
			},
		),

		policyEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_evaluations_total",
				Help:      "Total number of classification policy evaluations",
			},
			[]string{"policy", "result"},
		),
		policyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "policy_evaluation_duration_seconds",
				Help:      "Duration of classification policy evaluations in seconds",
				Buckets:   buckets,
			},
			[]string{"policy"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"status"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.clonesTotal,
		m.cloneDuration,
		m.objectsCopied,
		m.objectsPerClone,
		m.activeClones,
		m.copyIntoTotal,
		m.strategiesCompiled,
		m.strategyCacheSize,
		m.policyEvaluations,
		m.policyDuration,
		m.configReloads,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// Clone Metrics

// CloneStarted marks a copy as in progress.
func (m *Metrics) CloneStarted() {
	if m == nil || m.activeClones == nil {
		return
	}
	m.activeClones.Inc()
}

// RecordClone records a finished root copy.
func (m *Metrics) RecordClone(category string, objects int, duration time.Duration) {
	if m == nil || m.clonesTotal == nil {
		return
	}
	m.clonesTotal.WithLabelValues(category).Inc()
	m.cloneDuration.WithLabelValues(category).Observe(duration.Seconds())
	m.objectsCopied.Add(float64(objects))
	m.objectsPerClone.Observe(float64(objects))
	m.activeClones.Dec()
}

// RecordCopyInto records a copy-into call. status is "ok" or the error code.
func (m *Metrics) RecordCopyInto(mode, status string) {
	if m == nil || m.copyIntoTotal == nil {
		return
	}
	m.copyIntoTotal.WithLabelValues(mode, status).Inc()
}

// Strategy Metrics

// RecordStrategyCompiled records a strategy compilation and the new cache size.
func (m *Metrics) RecordStrategyCompiled(category string, cacheSize int) {
	if m == nil || m.strategiesCompiled == nil {
		return
	}
	m.strategiesCompiled.WithLabelValues(category).Inc()
	m.strategyCacheSize.Set(float64(cacheSize))
}

// SetStrategyCacheSize sets the current strategy cache size.
func (m *Metrics) SetStrategyCacheSize(size int) {
	if m == nil || m.strategyCacheSize == nil {
		return
	}
	m.strategyCacheSize.Set(float64(size))
}

// Policy Metrics

// RecordPolicyEvaluation records one policy evaluation and its answer.
func (m *Metrics) RecordPolicyEvaluation(policy, result string, duration time.Duration) {
	if m == nil || m.policyEvaluations == nil {
		return
	}
	if result == "" {
		result = "none"
	}
	m.policyEvaluations.WithLabelValues(policy, result).Inc()
	m.policyDuration.WithLabelValues(policy).Observe(duration.Seconds())
}

// RecordConfigReload records a configuration reload attempt.
func (m *Metrics) RecordConfigReload(status string) {
	if m == nil || m.configReloads == nil {
		return
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
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

// Gatherer exposes the private registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
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

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
