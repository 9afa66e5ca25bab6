package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Toggle outcomes recorded by RecordToggle.
const (
	ToggleApplied    = "applied"
	ToggleReverted   = "reverted"
	ToggleSuperseded = "superseded"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requests  prometheus.Counter
	errors    prometheus.Counter
	latency   *prometheus.HistogramVec
	toggles   *prometheus.CounterVec
	notified  *prometheus.CounterVec
	startTime prometheus.Gauge
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapfeed",
			Name:      "requests_total",
			Help:      "Total number of handled requests",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapfeed",
			Name:      "errors_total",
			Help:      "Total number of requests that ended in an error",
		}),
		// Labels: operation
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "snapfeed",
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		// Labels: action (like, save, follow), outcome (applied, reverted, superseded)
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapfeed",
			Subsystem: "optimistic",
			Name:      "toggles_total",
			Help:      "Optimistic toggles by settled outcome",
		}, []string{"action", "outcome"}),
		// Labels: type, result (sent, failed, skipped)
		notified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapfeed",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications dispatched by type and result",
		}, []string{"type", "result"}),
		startTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snapfeed",
			Name:      "start_time_seconds",
			Help:      "Unix time the process started",
		}),
	}

	mc.registry.MustRegister(
		mc.requests, mc.errors, mc.latency, mc.toggles, mc.notified, mc.startTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc.startTime.Set(float64(time.Now().Unix()))
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requests.Inc()
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.errors.Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.latency.WithLabelValues(operationName).Observe(duration.Seconds())
}

// RecordToggle counts one settled optimistic toggle.
func (mc *MetricsCollector) RecordToggle(action, outcome string) {
	mc.toggles.WithLabelValues(action, outcome).Inc()
}

// RecordNotification counts one dispatch attempt.
func (mc *MetricsCollector) RecordNotification(notificationType, result string) {
	mc.notified.WithLabelValues(notificationType, result).Inc()
}

// Registry exposes the private registry, mainly for tests.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the collector in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}
