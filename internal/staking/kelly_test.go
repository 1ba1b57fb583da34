package staking

import (
	"math"
	"testing"
)

func TestSingleLegStake(t *testing.T) {
	cfg := DefaultConfig()
	bankroll := 10000.0

	tests := []struct {
		name      string
		fairProb  float64
		odds      float64
		wantNoBet bool
	}{
		{name: "Clear edge", fairProb: 0.55, odds: 2.00},
		{name: "Thin edge", fairProb: 0.505, odds: 2.00},
		{name: "Large edge", fairProb: 0.65, odds: 2.00},
		{name: "No edge", fairProb: 0.50, odds: 2.00, wantNoBet: true},
		{name: "Negative edge", fairProb: 0.45, odds: 2.00, wantNoBet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := SingleLegStake(tt.fairProb, tt.odds, bankroll, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantNoBet {
				if !rec.NoBet {
					t.Errorf("expected no bet, got stake %.2f", rec.Stake)
				}
				if rec.Stake != 0 {
					t.Errorf("no-bet stake must be 0, got %.2f", rec.Stake)
				}
				return
			}

			if rec.NoBet {
				t.Fatal("unexpected no-bet")
			}

			// Stake always inside clamp bounds
			minStake := bankroll * cfg.MinStakePct
			maxStake := bankroll * cfg.MaxStakePct
			if rec.Stake < minStake-0.01 || rec.Stake > maxStake+0.01 {
				t.Errorf("stake %.2f outside clamp [%.2f, %.2f]", rec.Stake, minStake, maxStake)
			}
		})
	}
}

func TestSingleLegStakeQuarterKelly(t *testing.T) {
	cfg := DefaultConfig()
	// p=0.55, odds=2.00: b=1, q=0.45, kelly=(0.55-0.45)/1=0.10
	// quarter kelly 0.025 clamps down to max 0.015 → $150 on $10k
	rec, err := SingleLegStake(0.55, 2.00, 10000, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(rec.KellyFraction-0.10) > 1e-9 {
		t.Errorf("raw kelly = %f, want 0.10", rec.KellyFraction)
	}
	if math.Abs(rec.AppliedFraction-cfg.MaxStakePct) > 1e-9 {
		t.Errorf("applied fraction = %f, want clamped to %f", rec.AppliedFraction, cfg.MaxStakePct)
	}
	if math.Abs(rec.Stake-150.0) > 0.01 {
		t.Errorf("stake = %.2f, want 150.00", rec.Stake)
	}
}

func TestSingleLegStakeFloorClamp(t *testing.T) {
	cfg := DefaultConfig()
	// Tiny positive edge: p=0.502, odds=2.00 → kelly=0.004, quarter=0.001,
	// below the 0.25% floor → clamped up
	rec, err := SingleLegStake(0.502, 2.00, 10000, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.NoBet {
		t.Fatal("positive kelly should bet")
	}
	if math.Abs(rec.AppliedFraction-cfg.MinStakePct) > 1e-9 {
		t.Errorf("applied fraction = %f, want floor %f", rec.AppliedFraction, cfg.MinStakePct)
	}
}

func TestSingleLegStakeExactlyZeroWhenBPLessEqQ(t *testing.T) {
	// b·p == q exactly: odds 3.0 (b=2), p = 1/3
	rec, err := SingleLegStake(1.0/3.0, 3.0, 10000, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.NoBet || rec.Stake != 0 {
		t.Errorf("b·p == q must produce stake 0, got NoBet=%v stake=%.2f", rec.NoBet, rec.Stake)
	}
}

func TestSingleLegStakeValidation(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := SingleLegStake(0, 2.0, 1000, cfg); err == nil {
		t.Error("expected error for probability 0")
	}
	if _, err := SingleLegStake(0.5, 1.0, 1000, cfg); err == nil {
		t.Error("expected error for odds 1.0")
	}
	if _, err := SingleLegStake(0.5, 2.0, 0, cfg); err == nil {
		t.Error("expected error for zero bankroll")
	}
}
