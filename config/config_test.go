package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStrategyFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "strategy.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write strategy file: %v", err)
	}
	return path
}

func TestLoadStrategy_OverridesDefaults(t *testing.T) {
	path := writeStrategyFile(t, `
[strategy]
stoploss_pct = 15.0
min_premium_threshold = 80.0

[[strategy.partial_exits]]
time_minutes = 10
min_profit_pct = 5.0
exit_percentage = 50.0
`)

	s, err := LoadStrategy(path)
	if err != nil {
		t.Fatalf("LoadStrategy: %v", err)
	}
	if s.StoplossPct != 15.0 {
		t.Errorf("stoploss_pct = %v, want 15", s.StoplossPct)
	}
	if s.MinPremiumThreshold != 80.0 {
		t.Errorf("min_premium_threshold = %v, want 80", s.MinPremiumThreshold)
	}
	// Untouched keys keep their defaults.
	if s.RiskRewardRatio != 2 {
		t.Errorf("risk_reward_ratio = %v, want default 2", s.RiskRewardRatio)
	}
	if s.LotSize != 75 {
		t.Errorf("lot_size = %v, want default 75", s.LotSize)
	}
	if len(s.PartialExits) != 1 {
		t.Fatalf("partial_exits len = %d, want 1", len(s.PartialExits))
	}
	if s.PartialExits[0].ExitPercentage != 50 {
		t.Errorf("exit_percentage = %v, want 50", s.PartialExits[0].ExitPercentage)
	}
}

func TestLoadStrategy_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero stoploss", "[strategy]\nstoploss_pct = 0.0\n"},
		{"negative rr", "[strategy]\nrisk_reward_ratio = -1.0\n"},
		{"bad partial pct", "[strategy]\n[[strategy.partial_exits]]\nexit_percentage = 150.0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeStrategyFile(t, tc.body)
			if _, err := LoadStrategy(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadStrategy_MissingFile(t *testing.T) {
	if _, err := LoadStrategy(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHoldingWindow(t *testing.T) {
	s := DefaultStrategy()
	if got := s.HoldingWindow().Minutes(); got != 30 {
		t.Errorf("holding window = %v min, want 30", got)
	}
}
