package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://linescout:pw@localhost/linescout?sslmode=disable
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want localhost:6379", cfg.Redis.Addr)
	}
	if cfg.Scanner.LowFreqInterval != 5*time.Minute {
		t.Errorf("low freq interval = %v, want 5m", cfg.Scanner.LowFreqInterval)
	}
	if cfg.Movement.MovementThresholdPct != 6.0 {
		t.Errorf("movement threshold = %v, want 6.0", cfg.Movement.MovementThresholdPct)
	}
	if cfg.Staking.KellyFraction != 0.25 {
		t.Errorf("kelly fraction = %v, want 0.25", cfg.Staking.KellyFraction)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("port = %d, want 8090", cfg.Server.Port)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("LS_TEST_DSN", "postgres://fromenv/db")

	path := writeConfig(t, `
database:
  dsn: ${LS_TEST_DSN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://fromenv/db" {
		t.Errorf("dsn = %q, want env-expanded value", cfg.Database.DSN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() *ScanConfig {
		c := &ScanConfig{}
		c.ApplyDefaults()
		c.Database.DSN = "postgres://localhost/linescout"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*ScanConfig)
	}{
		{"missing dsn", func(c *ScanConfig) { c.Database.DSN = "" }},
		{"high freq slower than low freq", func(c *ScanConfig) { c.Scanner.HighFreqInterval = 10 * time.Minute }},
		{"reversal above movement threshold", func(c *ScanConfig) { c.Movement.ReversalThresholdPct = 9.0 }},
		{"inverted edge tiers", func(c *ScanConfig) { c.Scoring.GoodEdgePct = 10.0 }},
		{"min stake above max stake", func(c *ScanConfig) { c.Staking.MinStakePct = 0.05 }},
		{"zero kelly fraction", func(c *ScanConfig) { c.Staking.KellyFraction = 0 }},
		{"port out of range", func(c *ScanConfig) { c.Server.Port = 99999 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateClampsSportsPerTick(t *testing.T) {
	cfg := &ScanConfig{}
	cfg.ApplyDefaults()
	cfg.Database.DSN = "postgres://localhost/linescout"
	cfg.Scanner.EnabledSports = []string{"basketball_nba"}
	cfg.Scanner.SportsPerTick = 4

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Scanner.SportsPerTick != 1 {
		t.Errorf("sports_per_tick = %d, want clamped to 1", cfg.Scanner.SportsPerTick)
	}
}
