package models

import "time"

// WatchState is the monitoring tier of an event.
type WatchState string

const (
	WatchStateWatching  WatchState = "watching"  // Low-frequency tier
	WatchStateActive    WatchState = "active"    // High-frequency tier (bounded slots)
	WatchStateConfirmed WatchState = "confirmed" // Movement held, awaiting market match
	WatchStateSignal    WatchState = "signal"    // Matched and scored
	WatchStateDropped   WatchState = "dropped"   // Timed out or reverted
)

// Tier classifies the size of a detected edge.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierGood     Tier = "good"
	TierMarginal Tier = "marginal"
)

// Urgency drives downstream alerting priority.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyNormal   Urgency = "normal"
	UrgencyLow      Urgency = "low"
)

// Side identifies which outcome of a two-way market a signal is on.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// MarketType classifies a leg's market for correlation lookup.
type MarketType string

const (
	MarketTypeH2H     MarketType = "h2h"
	MarketTypeSpread  MarketType = "spread"
	MarketTypeTotal   MarketType = "total"
	MarketTypeFutures MarketType = "futures"
)

// BookmakerQuote is one source's price for one outcome at one instant.
// Quotes are immutable once captured; newer quotes supersede, never mutate.
type BookmakerQuote struct {
	SourceID           string    `json:"source_id"`
	SharpnessWeight    float64   `json:"sharpness_weight"`
	SportKey           string    `json:"sport_key"`
	HomeName           string    `json:"home_name"`
	AwayName           string    `json:"away_name"`
	OutcomeID          string    `json:"outcome_id"`
	DecimalOdds        float64   `json:"decimal_odds"`
	ImpliedProbability float64   `json:"implied_probability"`
	CommenceAt         time.Time `json:"commence_at"`
	CapturedAt         time.Time `json:"captured_at"`
}

// ProbabilitySnapshot is one fair-probability observation for an
// (event, outcome) pair. Append-only; the input to movement detection.
type ProbabilitySnapshot struct {
	EventKey        string    `json:"event_key"`
	OutcomeID       string    `json:"outcome_id"`
	FairProbability float64   `json:"fair_probability"`
	CapturedAt      time.Time `json:"captured_at"`
}

// EventWatchState is the mutable control state for one event.
// Exactly one row exists per event key (idempotent upsert key).
type EventWatchState struct {
	EventKey           string     `json:"event_key"`
	SportKey           string     `json:"sport_key"`
	State              WatchState `json:"watch_state"`
	OutcomeID          string     `json:"outcome_id"`
	InitialProbability float64    `json:"initial_probability"`
	PeakProbability    float64    `json:"peak_probability"`
	CurrentProbability float64    `json:"current_probability"`
	MovementPct        float64    `json:"movement_pct"`
	MovementVelocity   float64    `json:"movement_velocity"` // probability points per minute
	EscalatedAt        *time.Time `json:"escalated_at,omitempty"`
	ActiveUntil        *time.Time `json:"active_until,omitempty"`
	HoldStartAt        *time.Time `json:"hold_start_at,omitempty"`
	SamplesSinceHold   int        `json:"samples_since_hold"`
	Reverted           bool       `json:"reverted"`
	MatchedMarketID    *string    `json:"matched_market_id,omitempty"`
	CommenceAt         time.Time  `json:"commence_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// MarketStatus annotates a candidate market listing.
type MarketStatus string

const (
	MarketStatusActive      MarketStatus = "active"
	MarketStatusInactive    MarketStatus = "inactive"
	MarketStatusMatched     MarketStatus = "matched"
	MarketStatusUntradeable MarketStatus = "untradeable"
)

// CandidateMarket is a tradeable listing in the target venue. Owned by the
// ingestion collaborator; the core only annotates status.
type CandidateMarket struct {
	MarketID      string       `json:"market_id"`
	SportKey      string       `json:"sport_key"`
	HomeName      string       `json:"home_name"`
	AwayName      string       `json:"away_name"`
	OutcomeIDHome string       `json:"outcome_id_home"`
	OutcomeIDAway string       `json:"outcome_id_away"`
	PriceYes      float64      `json:"price_yes"`
	PriceNo       float64      `json:"price_no"`
	Volume        float64      `json:"volume"`
	Liquidity     float64      `json:"liquidity"`
	Status        MarketStatus `json:"status"`
	CommenceAt    time.Time    `json:"commence_at"`
}

// SignalOpportunity is the scanner's primary output. At most one active
// signal exists per (event_key, side); re-detection updates it in place.
type SignalOpportunity struct {
	ID               string    `json:"id"`
	EventKey         string    `json:"event_key"`
	SportKey         string    `json:"sport_key"`
	Side             Side      `json:"side"`
	MarketID         string    `json:"market_id"`
	MarketPrice      float64   `json:"market_price"`
	FairProbability  float64   `json:"fair_probability"`
	EdgePct          float64   `json:"edge_pct"`
	ConfidenceScore  int       `json:"confidence_score"`
	Urgency          Urgency   `json:"urgency"`
	Tier             Tier      `json:"tier"`
	RecommendedStake float64   `json:"recommended_stake"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Leg is one bet on one market type for one underlying entity.
type Leg struct {
	EventKey        string     `json:"event_key"`
	MarketType      MarketType `json:"market_type"`
	FairProbability float64    `json:"fair_probability"`
	DecimalOdds     float64    `json:"decimal_odds"`
	EdgePct         float64    `json:"edge_pct"`
}

// ErrorResponse is the JSON error shape of the HTTP API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// CorrelatedOpportunity groups two or more legs on the same underlying
// entity with a correlation-adjusted combined probability, edge and
// Kelly fraction.
type CorrelatedOpportunity struct {
	ID                  string    `json:"id"`
	EntityKey           string    `json:"entity_key"`
	Legs                []Leg     `json:"legs"`
	Correlation         float64   `json:"correlation"`
	CombinedProbability float64   `json:"combined_probability"`
	CombinedEdgePct     float64   `json:"combined_edge_pct"`
	KellyFraction       float64   `json:"kelly_fraction"`
	RecommendedStake    float64   `json:"recommended_stake"`
	CreatedAt           time.Time `json:"created_at"`
}
