// Package aggregator turns raw bookmaker quotes for a two-way market into
// a vig-free, sharpness-weighted fair probability per outcome.
package aggregator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/favron1/linescout/pkg/models"
	"github.com/favron1/linescout/pkg/oddsmath"
)

// ErrDegenerateMarket is returned when a quote set cannot produce a fair
// probability: fewer than two distinct outcomes, or overround <= 1.0.
// Callers must not escalate or score an event on a degenerate estimate.
var ErrDegenerateMarket = errors.New("degenerate market: cannot derive fair probability")

// sharpWeightThreshold marks a source as sharp. Sharp sources carry at
// least twice the baseline weight of 1.0.
const sharpWeightThreshold = 2.0

// outlierSigma is how many standard deviations from the mean a quote may
// sit before it is dropped when soft sources are present.
const outlierSigma = 2.0

// Result is the aggregated fair-probability estimate for one event.
type Result struct {
	// FairProbs maps outcome_id to de-vigged probability. For a two-way
	// market the values sum to exactly 1.0.
	FairProbs map[string]float64

	// OverroundPct is the vig that was removed, in percent.
	OverroundPct float64

	Consensus Consensus
}

// Consensus describes how much independent agreement backs the estimate.
// The movement detector's consensus gate feeds on it.
type Consensus struct {
	// SourceProbs maps source_id to its raw implied probability for the
	// reference outcome (sorted first outcome id, usually "home").
	SourceProbs map[string]float64

	ReferenceOutcome string
	SourceCount      int
	SharpCount       int

	// SpreadPoints is the standard deviation of the per-source implied
	// probabilities for the reference outcome, in probability points.
	SpreadPoints float64
}

// Aggregate computes the fair probability per outcome for one event's
// quotes.
//
// Algorithm:
// 1. Group quotes by outcome, averaging duplicate quotes per source
// 2. Drop quotes more than 2 standard deviations from the outcome mean,
//    unless every contributing source is sharp
// 3. Take the sharpness-weighted mean per outcome
// 4. Sum the two outcome means to get the overround, divide each mean by
//    it to remove the vig
func Aggregate(quotes []models.BookmakerQuote) (*Result, error) {
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: no quotes", ErrDegenerateMarket)
	}

	// outcome_id -> source_id -> accumulated implied probs
	byOutcome := make(map[string]map[string]*sourceAccum)
	for _, q := range quotes {
		if q.DecimalOdds <= 1.0 {
			continue
		}
		prob := q.ImpliedProbability
		if prob <= 0 || prob >= 1 {
			p, err := oddsmath.DecimalToImpliedProbability(q.DecimalOdds)
			if err != nil {
				continue
			}
			prob = p
		}

		bySource, ok := byOutcome[q.OutcomeID]
		if !ok {
			bySource = make(map[string]*sourceAccum)
			byOutcome[q.OutcomeID] = bySource
		}
		acc, ok := bySource[q.SourceID]
		if !ok {
			acc = &sourceAccum{weight: q.SharpnessWeight}
			bySource[q.SourceID] = acc
		}
		acc.sum += prob
		acc.n++
	}

	if len(byOutcome) < 2 {
		return nil, fmt.Errorf("%w: %d distinct outcomes", ErrDegenerateMarket, len(byOutcome))
	}

	outcomes := make([]string, 0, len(byOutcome))
	for outcome := range byOutcome {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	if len(outcomes) != 2 {
		return nil, fmt.Errorf("%w: expected two-way market, got %d outcomes", ErrDegenerateMarket, len(outcomes))
	}

	means := make(map[string]float64, 2)
	var consensus Consensus

	for i, outcome := range outcomes {
		mean, sources, err := outcomeMean(byOutcome[outcome])
		if err != nil {
			return nil, err
		}
		means[outcome] = mean

		// Consensus is measured on the reference outcome only; the two
		// sides of a de-vigged market mirror each other
		if i == 0 {
			consensus = sources
			consensus.ReferenceOutcome = outcome
		}
	}

	total := means[outcomes[0]] + means[outcomes[1]]
	if total <= 1.0 {
		return nil, fmt.Errorf("%w: overround %.4f <= 1.0", ErrDegenerateMarket, total)
	}

	fair := map[string]float64{
		outcomes[0]: means[outcomes[0]] / total,
		outcomes[1]: means[outcomes[1]] / total,
	}

	return &Result{
		FairProbs:    fair,
		OverroundPct: (total - 1.0) * 100.0,
		Consensus:    consensus,
	}, nil
}

type sourceAccum struct {
	sum    float64
	n      int
	weight float64
}

// outcomeMean averages duplicate quotes per source, filters outliers when
// soft sources are present, then takes the sharpness-weighted mean.
func outcomeMean(bySource map[string]*sourceAccum) (float64, Consensus, error) {
	type sourceProb struct {
		id     string
		prob   float64
		weight float64
	}

	probs := make([]sourceProb, 0, len(bySource))
	allSharp := true
	for id, acc := range bySource {
		weight := acc.weight
		if weight <= 0 {
			weight = 1.0
		}
		if weight < sharpWeightThreshold {
			allSharp = false
		}
		probs = append(probs, sourceProb{id: id, prob: acc.sum / float64(acc.n), weight: weight})
	}

	values := make([]float64, len(probs))
	for i, sp := range probs {
		values[i] = sp.prob
	}

	kept := probs
	if !allSharp {
		filtered := oddsmath.FilterOutliers(values, outlierSigma)
		keep := make(map[float64]int)
		for _, v := range filtered {
			keep[v]++
		}
		kept = kept[:0]
		for _, sp := range probs {
			if keep[sp.prob] > 0 {
				keep[sp.prob]--
				kept = append(kept, sp)
			}
		}
	}

	keptValues := make([]float64, len(kept))
	keptWeights := make([]float64, len(kept))
	consensus := Consensus{SourceProbs: make(map[string]float64, len(kept))}
	for i, sp := range kept {
		keptValues[i] = sp.prob
		keptWeights[i] = sp.weight
		consensus.SourceProbs[sp.id] = sp.prob
		if sp.weight >= sharpWeightThreshold {
			consensus.SharpCount++
		}
	}
	consensus.SourceCount = len(kept)
	consensus.SpreadPoints = oddsmath.StdDev(keptValues) * 100.0

	mean, err := oddsmath.WeightedMean(keptValues, keptWeights)
	if err != nil {
		return 0, consensus, fmt.Errorf("%w: %v", ErrDegenerateMarket, err)
	}

	return mean, consensus, nil
}
