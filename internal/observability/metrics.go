package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainride"

var (
	LedgerReady = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ledger_ready", Help: "1 when the ledger connection is established"})

	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "registrations_total", Help: "Registration outcomes by role"},
		[]string{"role", "outcome"},
	)
	AggregationSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "aggregation_skipped_total", Help: "Sub-items skipped while aggregating ride state"},
		[]string{"kind"},
	)
	Payments = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payments_total", Help: "Payment attempts by settlement path"},
		[]string{"path"},
	)
	FallbackOutstanding = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "fallback_payments_outstanding", Help: "Local fallback payment records not settled on the ledger"})
	WSWatchers          = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_watchers", Help: "Open ride watch websockets"})
	EventsPublished     = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Ride events published by outcome"},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
