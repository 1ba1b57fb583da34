// Package scorer compares fair probabilities against candidate-market
// prices and turns qualifying gaps into SignalOpportunity records.
package scorer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/favron1/linescout/internal/aggregator"
	"github.com/favron1/linescout/pkg/models"
	"github.com/favron1/linescout/pkg/oddsmath"
)

// ErrAmbiguousMatch is returned when more than one candidate market matches
// an event. Ambiguous events are never scored; they are flagged for manual
// resolution instead.
var ErrAmbiguousMatch = errors.New("ambiguous match: multiple candidate markets for event")

// Config holds the scoring thresholds.
type Config struct {
	PremiumEdgePct  float64       // tier cut, default 8
	GoodEdgePct     float64       // tier cut, default 5
	MarginalEdgePct float64       // tier cut and reject floor, default 3
	SignalTTL       time.Duration // how long an unrefreshed signal stays valid
}

// DefaultConfig returns the documented tier thresholds.
func DefaultConfig() Config {
	return Config{
		PremiumEdgePct:  8.0,
		GoodEdgePct:     5.0,
		MarginalEdgePct: 3.0,
		SignalTTL:       30 * time.Minute,
	}
}

// MatchMarket picks the single active candidate market for an event.
// Zero matches means the event simply is not tradeable yet (nil, nil);
// more than one is ErrAmbiguousMatch.
func MatchMarket(markets []models.CandidateMarket) (*models.CandidateMarket, error) {
	var matched *models.CandidateMarket
	for i := range markets {
		m := &markets[i]
		if m.Status != models.MarketStatusActive && m.Status != models.MarketStatusMatched {
			continue
		}
		if matched != nil {
			return nil, fmt.Errorf("%w: %s and %s", ErrAmbiguousMatch, matched.MarketID, m.MarketID)
		}
		matched = m
	}
	return matched, nil
}

// Input carries everything Score needs for one (event, side).
type Input struct {
	EventKey   string
	SportKey   string
	Side       models.Side
	FairProb   float64
	Market     models.CandidateMarket
	Consensus  aggregator.Consensus
	CommenceAt time.Time
	Now        time.Time
}

// Score computes edge, tier, confidence and urgency for one side of a
// matched market. Returns nil when the edge is below the marginal floor:
// not an error, just nothing worth signalling.
func Score(in Input, cfg Config) (*models.SignalOpportunity, error) {
	if in.FairProb <= 0 || in.FairProb >= 1 {
		return nil, fmt.Errorf("fair probability %f out of range (0,1)", in.FairProb)
	}

	marketPrice := in.Market.PriceYes
	if in.Side == models.SideAway {
		marketPrice = in.Market.PriceNo
	}
	if marketPrice <= 0 || marketPrice >= 1 {
		return nil, fmt.Errorf("market price %f out of range (0,1)", marketPrice)
	}

	edgePct := (in.FairProb - marketPrice) * 100

	tier, ok := tierFor(edgePct, cfg)
	if !ok {
		return nil, nil
	}

	confidence := confidenceScore(edgePct, in.Consensus, in.CommenceAt.Sub(in.Now))

	return &models.SignalOpportunity{
		ID:              uuid.NewString(),
		EventKey:        in.EventKey,
		SportKey:        in.SportKey,
		Side:            in.Side,
		MarketID:        in.Market.MarketID,
		MarketPrice:     marketPrice,
		FairProbability: oddsmath.RoundToBasisPoint(in.FairProb),
		EdgePct:         edgePct,
		ConfidenceScore: confidence,
		Urgency:         urgencyFor(edgePct, in.CommenceAt.Sub(in.Now), cfg),
		Tier:            tier,
		CreatedAt:       in.Now,
		ExpiresAt:       in.Now.Add(cfg.SignalTTL),
	}, nil
}

func tierFor(edgePct float64, cfg Config) (models.Tier, bool) {
	switch {
	case edgePct >= cfg.PremiumEdgePct:
		return models.TierPremium, true
	case edgePct >= cfg.GoodEdgePct:
		return models.TierGood, true
	case edgePct >= cfg.MarginalEdgePct:
		return models.TierMarginal, true
	default:
		return "", false
	}
}

// confidenceScore builds the 0-100 score:
// base 30, up to +35 for edge magnitude, +15 for sharp confirmation,
// up to +15 for confirming source count, up to +5 for start proximity.
func confidenceScore(edgePct float64, cons aggregator.Consensus, toStart time.Duration) int {
	score := 30

	switch {
	case edgePct >= 20:
		score += 35
	case edgePct >= 10:
		score += 25
	case edgePct >= 5:
		score += 15
	case edgePct >= 2:
		score += 5
	}

	if cons.SharpCount > 0 {
		score += 15
	}

	switch {
	case cons.SourceCount >= 5:
		score += 15
	case cons.SourceCount >= 4:
		score += 12
	case cons.SourceCount >= 3:
		score += 8
	case cons.SourceCount >= 2:
		score += 4
	}

	switch {
	case toStart > 0 && toStart <= 1*time.Hour:
		score += 5
	case toStart > 0 && toStart <= 3*time.Hour:
		score += 3
	case toStart > 0 && toStart <= 12*time.Hour:
		score += 1
	}

	if score > 100 {
		score = 100
	}
	return score
}

// urgencyFor joins time-to-start and edge size: near-term high-edge
// signals demand immediate attention, far-out marginal ones can wait.
func urgencyFor(edgePct float64, toStart time.Duration, cfg Config) models.Urgency {
	switch {
	case toStart <= 2*time.Hour && edgePct >= cfg.PremiumEdgePct:
		return models.UrgencyCritical
	case toStart <= 6*time.Hour && edgePct >= cfg.GoodEdgePct:
		return models.UrgencyHigh
	case edgePct >= cfg.PremiumEdgePct:
		return models.UrgencyHigh
	case toStart > 24*time.Hour && edgePct < cfg.GoodEdgePct:
		return models.UrgencyLow
	default:
		return models.UrgencyNormal
	}
}
