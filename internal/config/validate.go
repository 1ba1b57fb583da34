package config

import "fmt"

// Validate rejects configurations that would make the scanner misbehave
// in ways defaults cannot fix.
func (c *ScanConfig) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Scanner.SportsPerTick > len(c.Scanner.EnabledSports) {
		c.Scanner.SportsPerTick = len(c.Scanner.EnabledSports)
	}

	if c.Scanner.HighFreqInterval >= c.Scanner.LowFreqInterval {
		return fmt.Errorf("scanner.high_freq_interval (%s) must be shorter than low_freq_interval (%s)",
			c.Scanner.HighFreqInterval, c.Scanner.LowFreqInterval)
	}

	if c.Movement.ReversalThresholdPct >= c.Movement.MovementThresholdPct {
		return fmt.Errorf("movement.reversal_threshold_pct (%.1f) must be below movement_threshold_pct (%.1f)",
			c.Movement.ReversalThresholdPct, c.Movement.MovementThresholdPct)
	}

	if c.Scoring.MarginalEdgePct > c.Scoring.GoodEdgePct || c.Scoring.GoodEdgePct > c.Scoring.PremiumEdgePct {
		return fmt.Errorf("scoring tiers must be ordered: marginal (%.1f) <= good (%.1f) <= premium (%.1f)",
			c.Scoring.MarginalEdgePct, c.Scoring.GoodEdgePct, c.Scoring.PremiumEdgePct)
	}

	if c.Staking.MinStakePct > c.Staking.MaxStakePct {
		return fmt.Errorf("staking.min_stake_pct (%.4f) must not exceed max_stake_pct (%.4f)",
			c.Staking.MinStakePct, c.Staking.MaxStakePct)
	}

	if c.Staking.KellyFraction <= 0 || c.Staking.KellyFraction > 1.0 {
		return fmt.Errorf("staking.kelly_fraction (%.2f) must be in (0, 1]", c.Staking.KellyFraction)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port (%d) out of range", c.Server.Port)
	}

	return nil
}
