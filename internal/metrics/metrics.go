// Package metrics provides Prometheus instrumentation for the SuddenConnect
// server: connection and queue gauges, match counters and the wait/score
// distributions of the pairing engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "suddenconnect_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// QueueSize tracks the number of participants in the wait pool.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "suddenconnect_queue_size",
		Help: "Current number of participants waiting to be paired",
	})

	// ActivePairs tracks the number of live one-on-one sessions.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "suddenconnect_active_pairs",
		Help: "Current number of paired sessions",
	})

	// MatchesTotal counts pairings, labeled by how the pair was chosen.
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suddenconnect_matches_total",
		Help: "Total number of pairings made",
	}, []string{"strategy"}) // strategy = "scored", "fallback"

	// MatchWait records how long each participant waited in the pool before
	// being paired.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "suddenconnect_match_wait_seconds",
		Help:    "Time from entering the pool to being paired",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	// MatchScore records the preference score of every pairing.
	MatchScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "suddenconnect_match_score",
		Help:    "Preference score of paired participants",
		Buckets: []float64{0, 5, 20, 50, 80, 100, 130, 160},
	})

	// QueueTimeouts counts participants evicted after waiting too long.
	QueueTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "suddenconnect_queue_timeouts_total",
		Help: "Total number of wait pool timeouts",
	})

	// PartnerLeftTotal counts ended pairings by the reason given to the
	// remaining partner.
	PartnerLeftTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suddenconnect_partner_left_total",
		Help: "Total number of pairings ended, by reason",
	}, []string{"reason"})

	// EventsDropped counts lifecycle events discarded because the fan-out
	// backlog was full.
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "suddenconnect_lifecycle_events_dropped_total",
		Help: "Lifecycle events dropped due to a full backlog",
	})

	// RateLimited counts participant actions rejected by rate limiting.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suddenconnect_rate_limited_total",
		Help: "Actions rejected by rate limiting",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		QueueSize,
		ActivePairs,
		MatchesTotal,
		MatchWait,
		MatchScore,
		QueueTimeouts,
		PartnerLeftTotal,
		EventsDropped,
		RateLimited,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
