package scorer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/favron1/linescout/internal/aggregator"
	"github.com/favron1/linescout/pkg/models"
)

func market(id string, priceYes float64, status models.MarketStatus) models.CandidateMarket {
	return models.CandidateMarket{
		MarketID: id,
		PriceYes: priceYes,
		PriceNo:  1 - priceYes,
		Status:   status,
	}
}

func input(fair, priceYes float64, toStart time.Duration, cons aggregator.Consensus) Input {
	now := time.Now()
	return Input{
		EventKey:   "basketball_nba|celtics__lakers",
		SportKey:   "basketball_nba",
		Side:       models.SideHome,
		FairProb:   fair,
		Market:     market("mkt-1", priceYes, models.MarketStatusActive),
		Consensus:  cons,
		CommenceAt: now.Add(toStart),
		Now:        now,
	}
}

func TestScoreEdgeAndTier(t *testing.T) {
	// Fair 0.538 vs market 0.47 → edge 6.8 → tier good
	cons := aggregator.Consensus{SourceCount: 2, SharpCount: 2}
	sig, err := Score(input(0.538, 0.47, 4*time.Hour, cons), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a signal")
	}

	if math.Abs(sig.EdgePct-6.8) > 0.001 {
		t.Errorf("edge = %f, want 6.8", sig.EdgePct)
	}
	if sig.Tier != models.TierGood {
		t.Errorf("tier = %s, want good", sig.Tier)
	}
}

func TestScoreRoundsFairProbability(t *testing.T) {
	cons := aggregator.Consensus{SourceCount: 2, SharpCount: 2}
	sig, err := Score(input(0.53846153846, 0.47, 4*time.Hour, cons), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.FairProbability != 0.5385 {
		t.Errorf("fair probability = %v, want 0.5385", sig.FairProbability)
	}
}

func TestScoreTiers(t *testing.T) {
	cons := aggregator.Consensus{SourceCount: 2}
	tests := []struct {
		name     string
		fair     float64
		price    float64
		wantTier models.Tier
		wantNil  bool
	}{
		{name: "Premium at 9 points", fair: 0.59, price: 0.50, wantTier: models.TierPremium},
		{name: "Good at 5 points", fair: 0.55, price: 0.50, wantTier: models.TierGood},
		{name: "Marginal at 3 points", fair: 0.53, price: 0.50, wantTier: models.TierMarginal},
		{name: "Rejected below 3 points", fair: 0.52, price: 0.50, wantNil: true},
		{name: "Rejected negative edge", fair: 0.45, price: 0.50, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Score(input(tt.fair, tt.price, 4*time.Hour, cons), DefaultConfig())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if sig != nil {
					t.Fatalf("expected no signal, got tier %s", sig.Tier)
				}
				return
			}
			if sig == nil {
				t.Fatal("expected a signal")
			}
			if sig.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", sig.Tier, tt.wantTier)
			}
		})
	}
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name    string
		edge    float64
		cons    aggregator.Consensus
		toStart time.Duration
		want    int
	}{
		{
			name:    "Base only",
			edge:    1.0,
			cons:    aggregator.Consensus{SourceCount: 1},
			toStart: 48 * time.Hour,
			want:    30,
		},
		{
			name:    "Mid edge with sharp confirmation",
			edge:    6.8,
			cons:    aggregator.Consensus{SourceCount: 2, SharpCount: 2},
			toStart: 4 * time.Hour,
			// 30 base + 15 edge + 15 sharp + 4 sources + 1 proximity = 65
			want: 65,
		},
		{
			name:    "Everything maxed clamps at 100",
			edge:    25,
			cons:    aggregator.Consensus{SourceCount: 6, SharpCount: 3},
			toStart: 30 * time.Minute,
			// 30 + 35 + 15 + 15 + 5 = 100
			want: 100,
		},
		{
			name:    "Five sources near start",
			edge:    12,
			cons:    aggregator.Consensus{SourceCount: 5, SharpCount: 1},
			toStart: 2 * time.Hour,
			// 30 + 25 + 15 + 15 + 3 = 88
			want: 88,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := confidenceScore(tt.edge, tt.cons, tt.toStart)
			if got != tt.want {
				t.Errorf("confidence = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUrgency(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name    string
		edge    float64
		toStart time.Duration
		want    models.Urgency
	}{
		{name: "Near-term premium is critical", edge: 9, toStart: 1 * time.Hour, want: models.UrgencyCritical},
		{name: "Mid-term good is high", edge: 6, toStart: 5 * time.Hour, want: models.UrgencyHigh},
		{name: "Far-out premium still high", edge: 10, toStart: 48 * time.Hour, want: models.UrgencyHigh},
		{name: "Far-out marginal is low", edge: 3.5, toStart: 48 * time.Hour, want: models.UrgencyLow},
		{name: "Mid-term marginal is normal", edge: 3.5, toStart: 5 * time.Hour, want: models.UrgencyNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := urgencyFor(tt.edge, tt.toStart, cfg); got != tt.want {
				t.Errorf("urgency = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMatchMarket(t *testing.T) {
	t.Run("Exactly one active market", func(t *testing.T) {
		markets := []models.CandidateMarket{
			market("mkt-1", 0.47, models.MarketStatusActive),
			market("mkt-2", 0.50, models.MarketStatusInactive),
		}
		m, err := MatchMarket(markets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m == nil || m.MarketID != "mkt-1" {
			t.Errorf("expected mkt-1, got %v", m)
		}
	})

	t.Run("No match is not an error", func(t *testing.T) {
		m, err := MatchMarket([]models.CandidateMarket{
			market("mkt-2", 0.50, models.MarketStatusInactive),
		})
		if err != nil || m != nil {
			t.Errorf("expected (nil, nil), got (%v, %v)", m, err)
		}
	})

	t.Run("Ambiguous match flagged", func(t *testing.T) {
		_, err := MatchMarket([]models.CandidateMarket{
			market("mkt-1", 0.47, models.MarketStatusActive),
			market("mkt-2", 0.48, models.MarketStatusActive),
		})
		if !errors.Is(err, ErrAmbiguousMatch) {
			t.Errorf("expected ErrAmbiguousMatch, got %v", err)
		}
	})
}

func TestScoreAwaySideUsesPriceNo(t *testing.T) {
	cons := aggregator.Consensus{SourceCount: 2}
	in := input(0.56, 0.47, 4*time.Hour, cons)
	in.Side = models.SideAway
	in.FairProb = 0.58
	// PriceNo = 1 - 0.47 = 0.53 → edge = (0.58-0.53)*100 = 5
	sig, err := Score(in, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if math.Abs(sig.EdgePct-5.0) > 1e-9 {
		t.Errorf("edge = %f, want 5.0", sig.EdgePct)
	}
	if math.Abs(sig.MarketPrice-0.53) > 1e-9 {
		t.Errorf("market price = %f, want 0.53", sig.MarketPrice)
	}
}
