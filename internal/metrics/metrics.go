// Package metrics provides Prometheus metrics for the scanner.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ScannerMetrics collects and exposes scanner-related Prometheus metrics.
type ScannerMetrics struct {
	registry *prometheus.Registry

	// Ingest metrics
	TicksTotal     *prometheus.CounterVec
	TickDuration   *prometheus.HistogramVec
	QuotesConsumed *prometheus.CounterVec
	QuotesDropped  *prometheus.CounterVec

	// Movement metrics
	SnapshotsTotal   *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	ActiveSlots      prometheus.Gauge
	WatchedEvents    *prometheus.GaugeVec

	// Signal metrics
	SignalsTotal *prometheus.CounterVec
	SignalEdge   *prometheus.HistogramVec
	StakeSize    *prometheus.HistogramVec

	// Budget metrics
	APIBudgetRemaining prometheus.Gauge
	AlertsSuppressed   *prometheus.CounterVec
}

// NewScannerMetrics creates a new scanner metrics collector.
func NewScannerMetrics() *ScannerMetrics {
	registry := prometheus.NewRegistry()

	sm := &ScannerMetrics{
		registry: registry,

		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linescout_ticks_total",
				Help: "Total scan ticks executed",
			},
			[]string{"tier", "status"},
		),
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linescout_tick_duration_seconds",
				Help:    "Wall time per scan tick",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"tier"},
		),
		QuotesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linescout_quotes_consumed_total",
				Help: "Bookmaker quotes drained from the ingest streams",
			},
			[]string{"sport"},
		),
		QuotesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linescout_quotes_dropped_total",
				Help: "Quotes discarded before indexing",
			},
			[]string{"sport", "reason"},
		),

		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linescout_snapshots_total",
				Help: "Consensus probability snapshots recorded",
			},
			[]string{"sport"},
		),
		EscalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linescout_escalations_total",
				Help: "Watch-state transitions by destination state",
			},
			[]string{"to_state"},
		),
		ActiveSlots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "linescout_active_slots",
				Help: "Events currently holding a high-frequency slot",
			},
		),
		WatchedEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "linescout_watched_events",
				Help: "Events tracked per sport",
			},
			[]string{"sport"},
		),

		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linescout_signals_total",
				Help: "Published signal opportunities",
			},
			[]string{"sport", "tier"},
		),
		SignalEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linescout_signal_edge_pct",
				Help:    "Edge of published signals in percentage points",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
			},
			[]string{"tier"},
		),
		StakeSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linescout_stake_usd",
				Help:    "Recommended stake sizes in USD",
				Buckets: []float64{5, 10, 25, 50, 75, 100, 150, 250, 500},
			},
			[]string{"kind"},
		),

		APIBudgetRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "linescout_api_budget_remaining",
				Help: "Upstream odds API calls left in the current minute window",
			},
		),
		AlertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linescout_alerts_suppressed_total",
				Help: "Signals withheld by dedup or rate limiting",
			},
			[]string{"reason"},
		),
	}

	sm.registerAll()
	return sm
}

func (sm *ScannerMetrics) registerAll() {
	sm.registry.MustRegister(
		sm.TicksTotal,
		sm.TickDuration,
		sm.QuotesConsumed,
		sm.QuotesDropped,
		sm.SnapshotsTotal,
		sm.EscalationsTotal,
		sm.ActiveSlots,
		sm.WatchedEvents,
		sm.SignalsTotal,
		sm.SignalEdge,
		sm.StakeSize,
		sm.APIBudgetRemaining,
		sm.AlertsSuppressed,
	)
}

// Registry returns the underlying registry for the /metrics handler.
func (sm *ScannerMetrics) Registry() *prometheus.Registry {
	return sm.registry
}

// RecordTick records one completed scan tick.
func (sm *ScannerMetrics) RecordTick(tier, status string, durationSec float64) {
	sm.TicksTotal.WithLabelValues(tier, status).Inc()
	sm.TickDuration.WithLabelValues(tier).Observe(durationSec)
}

// RecordEscalation counts a watch-state transition.
func (sm *ScannerMetrics) RecordEscalation(toState string) {
	sm.EscalationsTotal.WithLabelValues(toState).Inc()
}

// RecordSignal records a published signal with its edge.
func (sm *ScannerMetrics) RecordSignal(sport, tier string, edgePct, stakeUSD float64) {
	sm.SignalsTotal.WithLabelValues(sport, tier).Inc()
	sm.SignalEdge.WithLabelValues(tier).Observe(edgePct)
	if stakeUSD > 0 {
		sm.StakeSize.WithLabelValues("single").Observe(stakeUSD)
	}
}
