// Package staking sizes stakes with a conservative fractional Kelly model,
// with a correlation adjustment for multi-leg opportunities.
package staking

import (
	"fmt"
	"math"
)

// Config holds the staking clamps. Defaults are deliberately conservative;
// the single-leg cap is tighter than full Kelly by an order of magnitude.
type Config struct {
	KellyFraction    float64 // fraction of full Kelly, default 0.25
	MinStakePct      float64 // single-leg floor as fraction of bankroll, default 0.0025
	MaxStakePct      float64 // single-leg cap as fraction of bankroll, default 0.015
	MaxCombinedKelly float64 // multi-leg Kelly cap, default 0.08
}

// DefaultConfig returns the documented clamps.
func DefaultConfig() Config {
	return Config{
		KellyFraction:    0.25,
		MinStakePct:      0.0025,
		MaxStakePct:      0.015,
		MaxCombinedKelly: 0.08,
	}
}

// StakeRecommendation is the output of single-leg sizing.
type StakeRecommendation struct {
	KellyFraction   float64 // raw Kelly before fractioning
	AppliedFraction float64 // after quarter-Kelly and clamping
	Stake           float64 // dollars
	NoBet           bool
}

// SingleLegStake computes the fractional Kelly stake for one bet.
//
// Formula: f = kellyFraction × ((b·p − q) / b)
// where p = fair probability, q = 1 − p, b = decimal odds − 1.
// A non-positive Kelly means no edge and no bet; otherwise the applied
// fraction is clamped to [MinStakePct, MaxStakePct] of bankroll.
func SingleLegStake(fairProb, decimalOdds, bankroll float64, cfg Config) (*StakeRecommendation, error) {
	if fairProb <= 0 || fairProb >= 1 {
		return nil, fmt.Errorf("fair probability %f out of range (0,1)", fairProb)
	}
	if decimalOdds <= 1.0 {
		return nil, fmt.Errorf("decimal odds %f must be > 1.0", decimalOdds)
	}
	if bankroll <= 0 {
		return nil, fmt.Errorf("bankroll must be positive")
	}

	b := decimalOdds - 1.0
	p := fairProb
	q := 1.0 - p

	kelly := (b*p - q) / b
	if kelly <= 0 {
		return &StakeRecommendation{KellyFraction: kelly, NoBet: true}, nil
	}

	applied := kelly * cfg.KellyFraction
	if applied > cfg.MaxStakePct {
		applied = cfg.MaxStakePct
	}
	if applied < cfg.MinStakePct {
		applied = cfg.MinStakePct
	}

	return &StakeRecommendation{
		KellyFraction:   kelly,
		AppliedFraction: applied,
		Stake:           round2(bankroll * applied),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
