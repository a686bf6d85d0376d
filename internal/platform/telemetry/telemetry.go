// Package telemetry exposes normalization and HTTP metrics in Prometheus
// format. Each Provider owns its registry, so independent services and
// tests never collide on metric registration.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	Namespace      string `json:"namespace"`
	MetricsEnabled *bool  `json:"metrics_enabled"` // nil = use default (true)
	RuntimeMetrics bool   `json:"runtime_metrics"`
}

// metricsOn returns whether metrics are enabled (defaults to true).
func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "psnormalizer"
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

// Document outcomes recorded on documents_processed_total.
const (
	OutcomeSuccess = "success"
	OutcomeFatal   = "fatal"
)

// defaultDurationBuckets are the histogram bucket boundaries (in seconds)
// used for HTTP request and document processing duration.
var defaultDurationBuckets = []float64{
	0.001, 0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider manages the metric collectors. A nil or disabled Provider
// accepts every call and records nothing.
type Provider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	documents        *prometheus.CounterVec
	recordsExtracted *prometheus.CounterVec
	recordsPartial   *prometheus.CounterVec
	processing       *prometheus.HistogramVec

	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge
}

// NewProvider creates the provider and registers its collectors.
func NewProvider(cfg TelemetryConfig) *Provider {
	cfg.applyDefaults()
	tp := &Provider{cfg: cfg, registry: prometheus.NewRegistry()}
	if !cfg.metricsOn() {
		return tp
	}

	ns := cfg.Namespace
	tp.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "documents_processed_total",
		Help:      "Total number of documents normalized, by source format and outcome.",
	}, []string{"format", "outcome"})
	tp.recordsExtracted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "records_extracted_total",
		Help:      "Total number of clinical records extracted, by section.",
	}, []string{"section"})
	tp.recordsPartial = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "records_partial_total",
		Help:      "Total number of records extracted with partial completeness, by section.",
	}, []string{"section"})
	tp.processing = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "document_processing_seconds",
		Help:      "Time spent normalizing one document.",
		Buckets:   defaultDurationBuckets,
	}, []string{"format"})
	tp.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "http_server_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   defaultDurationBuckets,
	}, []string{"method", "route", "status_code"})
	tp.httpActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "http_server_active_requests",
		Help:      "Number of active HTTP requests.",
	})

	tp.registry.MustRegister(
		tp.documents, tp.recordsExtracted, tp.recordsPartial, tp.processing,
		tp.httpDuration, tp.httpActive,
	)
	if cfg.RuntimeMetrics {
		tp.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return tp
}

func (tp *Provider) enabled() bool {
	return tp != nil && tp.documents != nil
}

// Registry exposes the underlying registry for tests and custom exporters.
func (tp *Provider) Registry() *prometheus.Registry {
	return tp.registry
}

// ObserveDocument records one processed document.
func (tp *Provider) ObserveDocument(format, outcome string, elapsed time.Duration) {
	if !tp.enabled() {
		return
	}
	tp.documents.WithLabelValues(format, outcome).Inc()
	tp.processing.WithLabelValues(format).Observe(elapsed.Seconds())
}

// ObserveRecords adds the extracted and partial record counts of one
// section.
func (tp *Provider) ObserveRecords(section string, extracted, partial int) {
	if !tp.enabled() {
		return
	}
	if extracted > 0 {
		tp.recordsExtracted.WithLabelValues(section).Add(float64(extracted))
	}
	if partial > 0 {
		tp.recordsPartial.WithLabelValues(section).Add(float64(partial))
	}
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (tp *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.enabled() {
				return next(c)
			}

			tp.httpActive.Inc()
			start := time.Now()

			err := next(c)

			tp.httpActive.Dec()

			// Use route pattern, not actual path.
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			tp.httpDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler serves the registry in Prometheus text exposition format.
func (tp *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{})
}

// PrometheusHandler adapts Handler for Echo routes.
func (tp *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(tp.Handler())
}
