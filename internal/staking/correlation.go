package staking

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/favron1/linescout/pkg/models"
)

// CombineConfig holds the multi-leg gates and penalties.
type CombineConfig struct {
	MinCombinedEdgePct    float64 // reject below this, default 5
	MinLegEdgePct         float64 // reject any weaker leg, default 2
	MaxLossCeiling        float64 // dollars, reject above, default 500
	MinKellyFraction      float64 // reject when sizing rounds below, default 0.01
	MaxKellyFraction      float64 // multi-leg cap, tighter than single-leg full Kelly, default 0.08
	CorrelationPenaltyPct float64 // points deducted per unit of correlation, default 0.9
	ComplexityPenaltyPct  float64 // points deducted per extra leg, default 0.02
	MaxCombinedProb       float64 // cap on adjusted joint probability, default 0.95
}

// DefaultCombineConfig returns the documented defaults.
func DefaultCombineConfig() CombineConfig {
	return CombineConfig{
		MinCombinedEdgePct:    5.0,
		MinLegEdgePct:         2.0,
		MaxLossCeiling:        500.0,
		MinKellyFraction:      0.01,
		MaxKellyFraction:      0.08,
		CorrelationPenaltyPct: 0.9,
		ComplexityPenaltyPct:  0.02,
		MaxCombinedProb:       0.95,
	}
}

// correlationMatrix holds static pairwise correlation between market types
// on the same underlying entity. Symmetric; diagonal is 1.
var correlationMatrix = map[models.MarketType]map[models.MarketType]float64{
	models.MarketTypeH2H: {
		models.MarketTypeH2H:     1.00,
		models.MarketTypeSpread:  0.85,
		models.MarketTypeTotal:   0.35,
		models.MarketTypeFutures: 0.50,
	},
	models.MarketTypeSpread: {
		models.MarketTypeH2H:     0.85,
		models.MarketTypeSpread:  1.00,
		models.MarketTypeTotal:   0.40,
		models.MarketTypeFutures: 0.45,
	},
	models.MarketTypeTotal: {
		models.MarketTypeH2H:     0.35,
		models.MarketTypeSpread:  0.40,
		models.MarketTypeTotal:   1.00,
		models.MarketTypeFutures: 0.25,
	},
	models.MarketTypeFutures: {
		models.MarketTypeH2H:     0.50,
		models.MarketTypeSpread:  0.45,
		models.MarketTypeTotal:   0.25,
		models.MarketTypeFutures: 1.00,
	},
}

// MarketTypeCorrelation returns the static correlation between two market
// types. Unknown types fall back to 0.5 (neither independent nor locked).
func MarketTypeCorrelation(a, b models.MarketType) float64 {
	if row, ok := correlationMatrix[a]; ok {
		if c, ok := row[b]; ok {
			return c
		}
	}
	return 0.5
}

// EventCorrelation averages the pairwise market-type correlation over all
// leg pairs.
func EventCorrelation(legs []models.Leg) float64 {
	if len(legs) < 2 {
		return 0
	}

	var sum float64
	var pairs int
	for i := 0; i < len(legs); i++ {
		for j := i + 1; j < len(legs); j++ {
			sum += MarketTypeCorrelation(legs[i].MarketType, legs[j].MarketType)
			pairs++
		}
	}
	return sum / float64(pairs)
}

// RejectionError explains why a multi-leg opportunity was declined.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "opportunity rejected: " + e.Reason
}

// Combine evaluates 2+ legs on the same underlying entity and produces a
// correlation-adjusted CorrelatedOpportunity, or a RejectionError when
// any gate fails.
//
// Combined probability: the naive product of leg probabilities understates
// correlated legs, so it is scaled by 1 + (c − 0.5)×0.3 and capped.
// Combined edge: sum of leg edges minus a correlation penalty (c × penalty)
// and a complexity penalty per extra leg, floored at 0.
// Kelly: (edge / (1 − p)) × (1 − 0.4c) × (1/√legs), capped. The penalty
// terms make the Kelly fraction monotonically non-increasing in c.
func Combine(entityKey string, legs []models.Leg, bankroll float64, cfg CombineConfig, now time.Time) (*models.CorrelatedOpportunity, error) {
	if len(legs) < 2 {
		return nil, fmt.Errorf("need at least 2 legs, got %d", len(legs))
	}

	for _, leg := range legs {
		if leg.FairProbability <= 0 || leg.FairProbability >= 1 {
			return nil, fmt.Errorf("leg %s: fair probability %f out of range", leg.EventKey, leg.FairProbability)
		}
		if leg.EdgePct < cfg.MinLegEdgePct {
			return nil, &RejectionError{Reason: fmt.Sprintf("leg edge %.2f%% below %.2f%% floor", leg.EdgePct, cfg.MinLegEdgePct)}
		}
	}

	c := EventCorrelation(legs)

	combinedProb := 1.0
	edgeSum := 0.0
	for _, leg := range legs {
		combinedProb *= leg.FairProbability
		edgeSum += leg.EdgePct
	}

	// Correlated legs are less independent than the raw product implies
	combinedProb *= 1 + (c-0.5)*0.3
	if combinedProb > cfg.MaxCombinedProb {
		combinedProb = cfg.MaxCombinedProb
	}

	combinedEdge := edgeSum - c*cfg.CorrelationPenaltyPct - cfg.ComplexityPenaltyPct*float64(len(legs)-1)
	if combinedEdge < 0 {
		combinedEdge = 0
	}

	if combinedEdge < cfg.MinCombinedEdgePct {
		return nil, &RejectionError{Reason: fmt.Sprintf("combined edge %.2f%% below %.2f%% floor", combinedEdge, cfg.MinCombinedEdgePct)}
	}

	kelly := (combinedEdge / 100.0) / (1.0 - combinedProb)
	kelly *= 1.0 - 0.4*c
	kelly *= 1.0 / math.Sqrt(float64(len(legs)))
	if kelly > cfg.MaxKellyFraction {
		kelly = cfg.MaxKellyFraction
	}

	if kelly < cfg.MinKellyFraction {
		return nil, &RejectionError{Reason: fmt.Sprintf("kelly fraction %.4f below %.2f minimum", kelly, cfg.MinKellyFraction)}
	}

	stake := round2(bankroll * kelly)
	if stake > cfg.MaxLossCeiling {
		return nil, &RejectionError{Reason: fmt.Sprintf("max loss %.2f exceeds ceiling %.2f", stake, cfg.MaxLossCeiling)}
	}

	return &models.CorrelatedOpportunity{
		ID:                  uuid.NewString(),
		EntityKey:           entityKey,
		Legs:                legs,
		Correlation:         c,
		CombinedProbability: combinedProb,
		CombinedEdgePct:     combinedEdge,
		KellyFraction:       kelly,
		RecommendedStake:    stake,
		CreatedAt:           now,
	}, nil
}
