package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection outcomes
const (
	OutcomeAdmitted    = "admitted"
	OutcomeServerFull  = "server_full"
	OutcomeRateLimited = "rate_limited"
	OutcomeBlocked     = "blocked"
	OutcomeFeedError   = "feed_error"
)

// Exchange request statuses
const (
	StatusOK              = "ok"
	StatusUnknownCurrency = "unknown_currency"
	StatusComputeError    = "compute_error"
)

var (
	// Gauge: Sessions between admission and close
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxrate_active_sessions",
			Help: "Number of client sessions holding a connection slot",
		},
	)

	// Counter: Accepted connections by outcome
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxrate_connections_total",
			Help: "Total accepted connections by admission outcome",
		},
		[]string{"outcome"},
	)

	// Counter: Exchange requests served
	ExchangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxrate_exchange_requests_total",
			Help: "Total exchange requests by status",
		},
		[]string{"status"},
	)

	// Histogram: Upstream feed fetch duration
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxrate_feed_fetch_duration_seconds",
			Help:    "Time spent fetching and parsing the rate feed",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	// Histogram: Session lifetime
	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxrate_session_duration_seconds",
			Help:    "Client session lifetime",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// Histogram: Time spent waiting for a connection slot
	AdmissionWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxrate_admission_wait_seconds",
			Help:    "Time the dispatcher waited for a free connection slot",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	// Counter: Recovered session panics
	PanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxrate_panics_total",
			Help: "Total panics recovered in client sessions",
		},
	)
)

// FetchStatus maps a feed error to a label value
func FetchStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
