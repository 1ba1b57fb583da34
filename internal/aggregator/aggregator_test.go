package aggregator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/favron1/linescout/pkg/models"
)

func q(source string, weight float64, outcome string, odds float64) models.BookmakerQuote {
	return models.BookmakerQuote{
		SourceID:           source,
		SharpnessWeight:    weight,
		OutcomeID:          outcome,
		DecimalOdds:        odds,
		ImpliedProbability: 1.0 / odds,
		CapturedAt:         time.Now(),
	}
}

func TestAggregateTwoSharpSources(t *testing.T) {
	// Quotes {A: 1.80, B: 2.10} from two sharp sources:
	// raw probs {0.556, 0.476}, overround 1.032, fair {0.538, 0.462}
	quotes := []models.BookmakerQuote{
		q("pinnacle", 3.0, "away", 2.10),
		q("pinnacle", 3.0, "home", 1.80),
		q("circa", 2.5, "home", 1.80),
		q("circa", 2.5, "away", 2.10),
	}

	res, err := Aggregate(quotes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(res.FairProbs["home"]-0.5385) > 0.001 {
		t.Errorf("home fair prob = %f, want ~0.5385", res.FairProbs["home"])
	}
	if math.Abs(res.FairProbs["away"]-0.4615) > 0.001 {
		t.Errorf("away fair prob = %f, want ~0.4615", res.FairProbs["away"])
	}

	sum := res.FairProbs["home"] + res.FairProbs["away"]
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("fair probabilities sum to %f, want 1.0", sum)
	}

	if math.Abs(res.OverroundPct-3.18) > 0.05 {
		t.Errorf("overround = %f%%, want ~3.18%%", res.OverroundPct)
	}

	if res.Consensus.SharpCount != 2 {
		t.Errorf("sharp count = %d, want 2", res.Consensus.SharpCount)
	}
}

func TestAggregateFairProbsAlwaysSumToOne(t *testing.T) {
	oddSets := [][2]float64{
		{1.50, 2.70},
		{1.91, 1.91},
		{1.10, 8.00},
		{2.50, 1.55},
	}

	for _, odds := range oddSets {
		quotes := []models.BookmakerQuote{
			q("pinnacle", 3.0, "home", odds[0]),
			q("pinnacle", 3.0, "away", odds[1]),
			q("betmgm", 1.0, "home", odds[0]*1.01),
			q("betmgm", 1.0, "away", odds[1]*0.99),
		}

		res, err := Aggregate(quotes)
		if err != nil {
			t.Fatalf("odds %v: unexpected error: %v", odds, err)
		}

		sum := 0.0
		for _, p := range res.FairProbs {
			sum += p
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("odds %v: fair probabilities sum to %f, want 1.0", odds, sum)
		}
	}
}

func TestAggregateAveragesDuplicateSourceQuotes(t *testing.T) {
	quotes := []models.BookmakerQuote{
		q("pinnacle", 3.0, "home", 1.80), // 0.5556
		q("pinnacle", 3.0, "home", 2.00), // 0.5000 -> avg 0.5278
		q("pinnacle", 3.0, "away", 2.10),
	}

	res, err := Aggregate(quotes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Average of 0.5556 and 0.5 is 0.5278; overround 0.5278 + 0.4762
	wantFairHome := 0.5278 / (0.5278 + 0.4762)
	if math.Abs(res.FairProbs["home"]-wantFairHome) > 0.001 {
		t.Errorf("home fair prob = %f, want ~%f", res.FairProbs["home"], wantFairHome)
	}

	if res.Consensus.SourceCount != 1 {
		t.Errorf("duplicate quotes should collapse to 1 source, got %d", res.Consensus.SourceCount)
	}
}

func TestAggregateFiltersOutlierSoftQuote(t *testing.T) {
	// Consensus is measured on the reference outcome, which is the first
	// outcome id in sort order ("away"). Five sources cluster around 0.49
	// implied; one prices at 0.125 and must be voted out.
	quotes := []models.BookmakerQuote{
		q("pinnacle", 3.0, "away", 2.04),
		q("circa", 2.5, "away", 2.05),
		q("betmgm", 1.0, "away", 2.06),
		q("caesars", 1.0, "away", 2.05),
		q("fanduel", 1.0, "away", 2.04),
		q("sketchbook", 1.0, "away", 8.00), // implied 0.125, far off the cluster
		q("pinnacle", 3.0, "home", 1.85),
		q("circa", 2.5, "home", 1.86),
		q("betmgm", 1.0, "home", 1.84),
	}

	res, err := Aggregate(quotes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Consensus.ReferenceOutcome != "away" {
		t.Fatalf("reference outcome = %q, want away", res.Consensus.ReferenceOutcome)
	}
	if _, kept := res.Consensus.SourceProbs["sketchbook"]; kept {
		t.Error("outlier source should have been filtered")
	}
	if res.Consensus.SourceCount != 5 {
		t.Errorf("source count = %d, want 5 after outlier filter", res.Consensus.SourceCount)
	}
}

func TestAggregateSharpWeightingPullsMean(t *testing.T) {
	// Sharp source says 0.50, soft source says 0.56. The weighted mean
	// must land closer to the sharp number.
	quotes := []models.BookmakerQuote{
		q("pinnacle", 3.0, "home", 2.00), // 0.500
		q("betmgm", 1.0, "home", 1.786),  // 0.560
		q("pinnacle", 3.0, "away", 1.95),
		q("betmgm", 1.0, "away", 2.20),
	}

	res, err := Aggregate(quotes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	simpleMeanFair := 0.53 / (0.53 + (0.5128+0.4545)/2)
	if res.FairProbs["home"] >= simpleMeanFair {
		t.Errorf("weighted fair prob %f should sit below unweighted %f", res.FairProbs["home"], simpleMeanFair)
	}
}

func TestAggregateDegenerateCases(t *testing.T) {
	t.Run("No quotes", func(t *testing.T) {
		if _, err := Aggregate(nil); !errors.Is(err, ErrDegenerateMarket) {
			t.Errorf("expected ErrDegenerateMarket, got %v", err)
		}
	})

	t.Run("Single outcome", func(t *testing.T) {
		quotes := []models.BookmakerQuote{
			q("pinnacle", 3.0, "home", 1.80),
			q("circa", 2.5, "home", 1.82),
		}
		if _, err := Aggregate(quotes); !errors.Is(err, ErrDegenerateMarket) {
			t.Errorf("expected ErrDegenerateMarket, got %v", err)
		}
	})

	t.Run("Overround below 1", func(t *testing.T) {
		quotes := []models.BookmakerQuote{
			q("pinnacle", 3.0, "home", 2.50),
			q("pinnacle", 3.0, "away", 2.50),
		}
		if _, err := Aggregate(quotes); !errors.Is(err, ErrDegenerateMarket) {
			t.Errorf("expected ErrDegenerateMarket, got %v", err)
		}
	})
}
