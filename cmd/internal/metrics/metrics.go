// Package metrics holds the Prometheus collectors for the service and adapts
// them to the recorder hooks of the auth and logs packages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logvault"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth
	RegisterTotal      *prometheus.CounterVec
	LoginTotal         *prometheus.CounterVec
	TokenRejectedTotal *prometheus.CounterVec

	// Logs
	LogAppendTotal *prometheus.CounterVec
	LogListTotal   *prometheus.CounterVec

	// Tail stream
	StreamSubscribers  prometheus.Gauge
	StreamClosedTotal  *prometheus.CounterVec
	StreamDroppedTotal prometheus.Counter
}

// New creates and registers all metrics on a fresh registry, including the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates the service metrics and registers them on registry.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		RegisterTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_register_total",
				Help:      "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		LoginTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_login_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_token_rejected_total",
				Help:      "Requests refused by the bearer-token middleware, by reason",
			},
			[]string{"reason"},
		),

		LogAppendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_append_total",
				Help:      "Log entry creations by outcome",
			},
			[]string{"outcome"},
		),
		LogListTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_list_total",
				Help:      "Log listings by outcome",
			},
			[]string{"outcome"},
		),

		StreamSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_subscribers",
				Help:      "Open tail stream connections",
			},
		),
		StreamClosedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_closed_total",
				Help:      "Closed tail stream connections by reason",
			},
			[]string{"reason"},
		),
		StreamDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_dropped_total",
				Help:      "Tail subscribers dropped for falling behind",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RegisterTotal,
		m.LoginTotal,
		m.TokenRejectedTotal,
		m.LogAppendTotal,
		m.LogListTotal,
		m.StreamSubscribers,
		m.StreamClosedTotal,
		m.StreamDroppedTotal,
	)
	return m
}

// RegisterPool exposes pgxpool connection gauges.
func (m *Metrics) RegisterPool(pool *pgxpool.Pool) {
	if m == nil || pool == nil {
		return
	}
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return fn(pool.Stat()) },
		)
	}
	m.registry.MustRegister(
		gauge("db_connections_total", "Connections currently in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("db_connections_acquired", "Connections currently checked out",
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("db_connections_idle", "Idle connections",
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("db_connections_max", "Configured pool size",
			func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request. route must be low-cardinality.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveRegister(outcome string) { m.RegisterTotal.WithLabelValues(outcome).Inc() }
func (m *Metrics) ObserveLogin(outcome string)    { m.LoginTotal.WithLabelValues(outcome).Inc() }

// ObserveTokenRejected matches the auth middleware reject hook.
func (m *Metrics) ObserveTokenRejected(reason string) {
	m.TokenRejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveAppend(outcome string) { m.LogAppendTotal.WithLabelValues(outcome).Inc() }
func (m *Metrics) ObserveList(outcome string)   { m.LogListTotal.WithLabelValues(outcome).Inc() }

func (m *Metrics) StreamOpened() { m.StreamSubscribers.Inc() }

func (m *Metrics) StreamClosed(reason string) {
	m.StreamSubscribers.Dec()
	m.StreamClosedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveStreamDropped() { m.StreamDroppedTotal.Inc() }
