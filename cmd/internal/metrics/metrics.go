// Package metrics owns the Prometheus collectors exported on /metrics.
//
// All methods are nil-safe so components can be constructed without metrics
// in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "versaid"

// OTP outcomes recorded by OTPVerified.
const (
	OTPOutcomeValid   = "valid"
	OTPOutcomeInvalid = "invalid"
)

// Metrics groups every collector the server exports.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	wsConnections prometheus.Gauge
	ssoDelivered  prometheus.Counter
	ssoDropped    prometheus.Counter

	otpIssued   prometheus.Counter
	otpVerified *prometheus.CounterVec

	authEvents *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open notification channel connections.",
		}),
		ssoDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sso",
			Name:      "requests_delivered_total",
			Help:      "sso_request messages enqueued to subscribers.",
		}),
		ssoDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sso",
			Name:      "requests_dropped_total",
			Help:      "sso_request messages dropped because a send queue was full.",
		}),
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "issued_total",
			Help:      "One-time passwords issued.",
		}),
		otpVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "verifications_total",
			Help:      "OTP verification attempts by outcome.",
		}, []string{"outcome"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication events by name and result.",
		}, []string{"event", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.wsConnections,
		m.ssoDelivered,
		m.ssoDropped,
		m.otpIssued,
		m.otpVerified,
		m.authEvents,
	)
	return m
}

// Registry exposes the underlying registry (tests, custom exporters).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request. route should be the mux pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// WSConnected increments the open connection gauge.
func (m *Metrics) WSConnected() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

// WSDisconnected decrements the open connection gauge.
func (m *Metrics) WSDisconnected() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// SSOPublished records the fan-out result of one publish.
func (m *Metrics) SSOPublished(delivered, dropped int) {
	if m == nil {
		return
	}
	m.ssoDelivered.Add(float64(delivered))
	m.ssoDropped.Add(float64(dropped))
}

// OTPIssued counts one issued code.
func (m *Metrics) OTPIssued() {
	if m == nil {
		return
	}
	m.otpIssued.Inc()
}

// OTPVerified counts one verification attempt.
func (m *Metrics) OTPVerified(ok bool) {
	if m == nil {
		return
	}
	outcome := OTPOutcomeInvalid
	if ok {
		outcome = OTPOutcomeValid
	}
	m.otpVerified.WithLabelValues(outcome).Inc()
}

// AuthEvent counts an authentication event, e.g. ("login", "fail").
func (m *Metrics) AuthEvent(event, result string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(event, result).Inc()
}
