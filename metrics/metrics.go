package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AlertsCreated counts alert records persisted by the store.
	AlertsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_alerts_created_total",
			Help: "Total number of alert records persisted",
		},
	)

	// AlertsResponded counts successful responded transitions.
	AlertsResponded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_alerts_responded_total",
			Help: "Total number of alerts transitioned to responded",
		},
	)

	// RespondConflicts counts respond attempts that lost the transition race.
	RespondConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifeline_respond_conflicts_total",
			Help: "Total number of respond attempts rejected because the alert was already handled",
		},
	)

	// DispatchAttempts counts per-channel delivery attempts by outcome.
	DispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_dispatch_attempts_total",
			Help: "Total number of per-channel dispatch attempts",
		},
		[]string{"channel", "outcome"},
	)

	// HTTPRequestsTotal counts API requests by handler, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	// HTTPRequestDuration observes API request latency by handler and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		AlertsCreated,
		AlertsResponded,
		RespondConflicts,
		DispatchAttempts,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
