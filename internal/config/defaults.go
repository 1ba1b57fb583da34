package config

import "time"

// ApplyDefaults fills zero-valued fields with the documented defaults.
func (c *ScanConfig) ApplyDefaults() {
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.ConsumerID == "" {
		c.Redis.ConsumerID = "linescout-1"
	}
	if c.Redis.GroupName == "" {
		c.Redis.GroupName = "linescout"
	}

	if len(c.Scanner.EnabledSports) == 0 {
		c.Scanner.EnabledSports = []string{"basketball_nba", "americanfootball_nfl"}
	}
	if c.Scanner.SportsPerTick <= 0 {
		c.Scanner.SportsPerTick = 2
	}
	if c.Scanner.LowFreqInterval <= 0 {
		c.Scanner.LowFreqInterval = 5 * time.Minute
	}
	if c.Scanner.HighFreqInterval <= 0 {
		c.Scanner.HighFreqInterval = 30 * time.Second
	}
	if c.Scanner.FetchConcurrency <= 0 {
		c.Scanner.FetchConcurrency = 4
	}
	if c.Scanner.FetchTimeout <= 0 {
		c.Scanner.FetchTimeout = 10 * time.Second
	}
	if c.Scanner.APICallsPerMinute <= 0 {
		c.Scanner.APICallsPerMinute = 30
	}
	if c.Scanner.SnapshotRetention <= 0 {
		c.Scanner.SnapshotRetention = 24 * time.Hour
	}

	if c.Movement.LookbackWindow <= 0 {
		c.Movement.LookbackWindow = 15 * time.Minute
	}
	if c.Movement.MovementThresholdPct <= 0 {
		c.Movement.MovementThresholdPct = 6.0
	}
	if c.Movement.MinVelocity <= 0 {
		c.Movement.MinVelocity = 0.4
	}
	if c.Movement.MinConfirmingBooks <= 0 {
		c.Movement.MinConfirmingBooks = 2
	}
	if c.Movement.TightnessPoints <= 0 {
		c.Movement.TightnessPoints = 5.0
	}
	if c.Movement.MaxSimultaneousActive <= 0 {
		c.Movement.MaxSimultaneousActive = 5
	}
	if c.Movement.ActiveWindow <= 0 {
		c.Movement.ActiveWindow = 25 * time.Minute
	}
	if c.Movement.SamplesRequired <= 0 {
		c.Movement.SamplesRequired = 3
	}
	if c.Movement.ReversalThresholdPct <= 0 {
		c.Movement.ReversalThresholdPct = 2.5
	}

	if c.Scoring.PremiumEdgePct <= 0 {
		c.Scoring.PremiumEdgePct = 8.0
	}
	if c.Scoring.GoodEdgePct <= 0 {
		c.Scoring.GoodEdgePct = 5.0
	}
	if c.Scoring.MarginalEdgePct <= 0 {
		c.Scoring.MarginalEdgePct = 3.0
	}
	if c.Scoring.SignalTTL <= 0 {
		c.Scoring.SignalTTL = 30 * time.Minute
	}

	if c.Staking.Bankroll <= 0 {
		c.Staking.Bankroll = 10000.0
	}
	if c.Staking.KellyFraction <= 0 {
		c.Staking.KellyFraction = 0.25
	}
	if c.Staking.MinStakePct <= 0 {
		c.Staking.MinStakePct = 0.0025
	}
	if c.Staking.MaxStakePct <= 0 {
		c.Staking.MaxStakePct = 0.015
	}
	if c.Staking.MinCombinedEdgePct <= 0 {
		c.Staking.MinCombinedEdgePct = 5.0
	}
	if c.Staking.MinLegEdgePct <= 0 {
		c.Staking.MinLegEdgePct = 2.0
	}
	if c.Staking.MaxLossCeiling <= 0 {
		c.Staking.MaxLossCeiling = 500.0
	}
	if c.Staking.MinKellyFraction <= 0 {
		c.Staking.MinKellyFraction = 0.01
	}
	if c.Staking.MaxKellyFraction <= 0 {
		c.Staking.MaxKellyFraction = 0.08
	}
	if c.Staking.CorrelationPenaltyPct <= 0 {
		c.Staking.CorrelationPenaltyPct = 0.9
	}
	if c.Staking.ComplexityPenaltyPct <= 0 {
		c.Staking.ComplexityPenaltyPct = 0.02
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8090
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if c.Alerts.DedupTTLMinutes <= 0 {
		c.Alerts.DedupTTLMinutes = 15
	}
	if c.Alerts.RateLimitPerMin <= 0 {
		c.Alerts.RateLimitPerMin = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
}
