// Package metrics wraps a Prometheus registry for the bootstrap core,
// adapted from the teacher's PrometheusMetrics wrapper: one struct
// owning every collector, a namespaced registry, and an exported
// Handler for the CLI's optional serve command to mount. The library
// itself never opens a listening socket — only cmd/aeronctl does that.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns every Prometheus collector this client publishes.
type Metrics struct {
	registry *prometheus.Registry

	connectDuration prometheus.Histogram
	conductorWork   prometheus.Counter
	keepalives      prometheus.Counter
	registrations   *prometheus.CounterVec
	ringBackpressure prometheus.Counter
	broadcastMessages *prometheus.CounterVec
	driverTimeouts    prometheus.Counter
	interServiceTimeouts prometheus.Counter
}

// New builds a Metrics registering every collector under the aeronc_
// namespace.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		connectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aeronc_connect_duration_seconds",
			Help:    "Time from CncConnector start to successful handshake.",
			Buckets: prometheus.DefBuckets,
		}),
		conductorWork: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronc_conductor_work_total",
			Help: "Sum of doWork() return values across the conductor's lifetime.",
		}),
		keepalives: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronc_keepalives_total",
			Help: "Keepalive commands sent to the driver.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeronc_registrations_total",
			Help: "Registration attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ringBackpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronc_ring_backpressure_total",
			Help: "Command-ring claim attempts that failed due to insufficient capacity.",
		}),
		broadcastMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeronc_broadcast_messages_total",
			Help: "Broadcast responses processed by kind.",
		}, []string{"kind"}),
		driverTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronc_driver_timeouts_total",
			Help: "DriverTimeoutError occurrences across handshake and registration calls.",
		}),
		interServiceTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronc_inter_service_timeouts_total",
			Help: "Times the conductor detected it had gone unfed past interServiceTimeout.",
		}),
	}

	registry.MustRegister(
		m.connectDuration,
		m.conductorWork,
		m.keepalives,
		m.registrations,
		m.ringBackpressure,
		m.broadcastMessages,
		m.driverTimeouts,
		m.interServiceTimeouts,
	)
	return m
}

// Handler returns the HTTP handler the CLI's serve command mounts.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConnectDuration records a completed handshake's wall time.
func (m *Metrics) ObserveConnectDuration(seconds float64) {
	m.connectDuration.Observe(seconds)
}

// AddConductorWork accumulates one doWork() call's work count.
func (m *Metrics) AddConductorWork(n int) {
	m.conductorWork.Add(float64(n))
}

// IncKeepalive counts one keepalive sent to the driver.
func (m *Metrics) IncKeepalive() {
	m.keepalives.Inc()
}

// IncRegistration counts a registration attempt by kind
// (add-publication, add-subscription, …) and outcome (success or
// error; a driver timeout counts as error).
func (m *Metrics) IncRegistration(kind, outcome string) {
	m.registrations.WithLabelValues(kind, outcome).Inc()
}

// IncRingBackpressure counts one TryClaim failure due to capacity.
func (m *Metrics) IncRingBackpressure() {
	m.ringBackpressure.Inc()
}

// IncBroadcastMessage counts one dispatched broadcast response by kind.
func (m *Metrics) IncBroadcastMessage(kind string) {
	m.broadcastMessages.WithLabelValues(kind).Inc()
}

// IncDriverTimeout counts one DriverTimeoutError.
func (m *Metrics) IncDriverTimeout() {
	m.driverTimeouts.Inc()
}

// IncInterServiceTimeout counts one InterServiceTimeoutError.
func (m *Metrics) IncInterServiceTimeout() {
	m.interServiceTimeouts.Inc()
}
