package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	purchaseOutcome *prometheus.CounterVec
	chargeDuration  *prometheus.HistogramVec
	reconciliation  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		purchaseOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchase_outcomes_total",
				Help: "Purchase attempts by terminal outcome.",
			},
			[]string{"outcome"},
		),
		chargeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_charge_duration_seconds",
				Help:    "Latency of payment gateway charges in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		reconciliation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciliation_events_total",
				Help: "Reconciliation events by delivery result.",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.purchaseOutcome, m.chargeDuration, m.reconciliation)
	return m
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObservePurchase(outcome string) {
	if m == nil {
		return
	}
	m.purchaseOutcome.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCharge(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.chargeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveReconciliation(result string) {
	if m == nil {
		return
	}
	m.reconciliation.WithLabelValues(result).Inc()
}
