// Package metrics exposes Prometheus collectors for the API and the worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. Each instance owns its registry so tests can
// create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	ExpenseOps      *prometheus.CounterVec
	Reconciliations prometheus.Counter
	StaleLoads      prometheus.Counter
	Emails          *prometheus.CounterVec
	ActiveStores    prometheus.GaugeFunc
	SSEClients      prometheus.Gauge
	RateLimited     prometheus.Counter
	Suspicious      prometheus.Counter
}

// New registers every collector on a fresh registry. activeStores reports the
// number of cached user stores and may be nil.
func New(activeStores func() float64) *Metrics {
	if activeStores == nil {
		activeStores = func() float64 { return 0 }
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gastos",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		ExpenseOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gastos",
			Name:      "expense_operations_total",
			Help:      "Expense mutations by operation and outcome.",
		}, []string{"op", "result"}),
		Reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gastos",
			Name:      "delete_reconciliations_total",
			Help:      "Reloads triggered by a failed remote delete.",
		}),
		StaleLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gastos",
			Name:      "stale_loads_total",
			Help:      "Loads that failed and left the previous state in place.",
		}),
		Emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gastos",
			Name:      "emails_total",
			Help:      "Outbox emails by delivery result.",
		}, []string{"result"}),
		ActiveStores: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gastos",
			Name:      "active_stores",
			Help:      "User stores currently cached.",
		}, activeStores),
		SSEClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gastos",
			Name:      "sse_clients",
			Help:      "Connected server-sent event clients.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gastos",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		Suspicious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gastos",
			Name:      "suspicious_requests_total",
			Help:      "Requests blocked as probes.",
		}),
	}
	m.registry.MustRegister(
		m.RequestDuration,
		m.ExpenseOps,
		m.Reconciliations,
		m.StaleLoads,
		m.Emails,
		m.ActiveStores,
		m.SSEClients,
		m.RateLimited,
		m.Suspicious,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ExpenseOp counts one expense mutation.
func (m *Metrics) ExpenseOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ExpenseOps.WithLabelValues(op, result).Inc()
}
