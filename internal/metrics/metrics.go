// Package metrics provides Prometheus instrumentation for the device
// manager and the periodic metrics reporter.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgekit/device-manager/internal/api"
)

// Metrics bundles all collectors on a private registry so tests can create
// isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal     *prometheus.CounterVec
	commandsInFlight  prometheus.Gauge
	commandDuration   *prometheus.HistogramVec
	containersByState *prometheus.GaugeVec
	refreshFailures   prometheus.Counter
	reportsTotal      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a metrics bundle with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "device_manager_commands_total",
			Help: "Commands executed, by type and outcome.",
		}, []string{"type", "state"}),

		commandsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "device_manager_commands_in_flight",
			Help: "Commands currently executing.",
		}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "device_manager_command_duration_seconds",
			Help:    "Command execution time, by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		containersByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "device_manager_containers",
			Help: "Managed containers, by status.",
		}, []string{"status"}),

		refreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "device_manager_refresh_failures_total",
			Help: "Failed container discovery refreshes.",
		}),

		reportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "device_manager_reports_total",
			Help: "Metrics reports sent upstream, by outcome.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "device_manager_http_requests_total",
			Help: "HTTP requests served, by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "device_manager_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CommandStarted implements command.Observer.
func (m *Metrics) CommandStarted(rec api.CommandRecord) {
	m.commandsInFlight.Inc()
}

// CommandFinished implements command.Observer.
func (m *Metrics) CommandFinished(rec api.CommandRecord, duration time.Duration) {
	m.commandsInFlight.Dec()
	m.commandsTotal.WithLabelValues(string(rec.Type), string(rec.State)).Inc()
	m.commandDuration.WithLabelValues(string(rec.Type)).Observe(duration.Seconds())
}

// SetContainerCounts updates the containers-by-status gauges. Statuses not
// present in counts are reset to zero so stale values don't linger after a
// container changes state.
func (m *Metrics) SetContainerCounts(counts map[api.ContainerStatus]int) {
	for _, status := range []api.ContainerStatus{
		api.StatusRunning, api.StatusCreated, api.StatusExited,
		api.StatusRestarting, api.StatusUnknown,
	} {
		m.containersByState.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// RefreshFailed records a failed discovery refresh.
func (m *Metrics) RefreshFailed() {
	m.refreshFailures.Inc()
}

// ReportSent records the outcome of an upstream metrics report.
func (m *Metrics) ReportSent(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.reportsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records a served HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Gather exposes the registry for tests.
func (m *Metrics) Gather() prometheus.Gatherer {
	return m.registry
}
