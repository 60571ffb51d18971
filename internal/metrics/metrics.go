package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "howitz"
)

// Refresh outcomes.
const (
	OutcomeDelta = "delta"
	OutcomeFull  = "full"
	OutcomeLost  = "lost"
	OutcomeError = "error"
)

var (
	// Reconciliation Metrics
	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Time taken to reconcile a session's events with the event source.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Count of incremental refreshes by outcome.",
	}, []string{"outcome"})

	ChangedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "changed_events_total",
		Help:      "Number of events classified during refreshes.",
	}, []string{"kind"})

	FullFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "full_fetches_total",
		Help:      "Count of full event fetches.",
	})

	// Event Source Metrics
	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_source_reconnects_total",
		Help:      "Count of session reconnect attempts to the event source.",
	}, []string{"status"})

	StateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_state_changes_total",
		Help:      "Count of admin state changes submitted to the event source.",
	}, []string{"status"})

	// Session Metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Number of sessions holding an event source connection.",
	})

	EvictedSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evicted_sessions_total",
		Help:      "Number of idle sessions closed by the janitor.",
	})
)
