package config

import (
	"testing"
	"time"
)

func clearSettingsEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ORCHESTRATOR_LISTEN_ADDR", "LLM_GATEWAY_URL", "LLM_API_KEY", "LLM_MODEL",
		"SESSION_TTL", "SESSION_MAX_STEPS", "MAX_ROUNDS", "CONSENSUS_MAJORITY",
		"SCHEDULER_INTERVAL_FALLBACK", "SCHEDULER_INTERVAL_HOURS", "MAX_LEVERAGE",
		"MAX_POSITION_PERCENT", "MIN_CONFIDENCE", "SYMBOL", "WEB_SEARCH_URL",
		"FINANCIAL_DATA_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearSettingsEnv(t)
	s := Load()

	if s.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", s.ListenAddr)
	}
	if s.LLMModel != "gpt-4o-mini" {
		t.Errorf("LLMModel = %q", s.LLMModel)
	}
	if s.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v", s.SessionTTL)
	}
	if s.MaxRounds != 8 {
		t.Errorf("MaxRounds = %d", s.MaxRounds)
	}
	if s.ConsensusMajority != 0.6 {
		t.Errorf("ConsensusMajority = %v", s.ConsensusMajority)
	}
	if s.SchedulerInterval != 4*time.Hour {
		t.Errorf("SchedulerInterval = %v", s.SchedulerInterval)
	}
	if s.MaxLeverage != 20 {
		t.Errorf("MaxLeverage = %d", s.MaxLeverage)
	}
	if s.MaxPositionPercent != 0.30 {
		t.Errorf("MaxPositionPercent = %v", s.MaxPositionPercent)
	}
	if s.MinConfidence != 60 {
		t.Errorf("MinConfidence = %d", s.MinConfidence)
	}
	if s.Symbol != "BTC-USDT-SWAP" {
		t.Errorf("Symbol = %q", s.Symbol)
	}
	if s.WebSearchURL != "" || s.FinancialDataURL != "" {
		t.Errorf("expected empty data-source URLs, got %q / %q", s.WebSearchURL, s.FinancialDataURL)
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv("SCHEDULER_INTERVAL_HOURS", "0.5")
	t.Setenv("MAX_LEVERAGE", "10")
	t.Setenv("MAX_POSITION_PERCENT", "0.15")
	t.Setenv("MIN_CONFIDENCE", "75")
	t.Setenv("SYMBOL", "ETH-USDT-SWAP")
	t.Setenv("WEB_SEARCH_URL", "http://search.internal")

	s := Load()

	if s.SchedulerInterval != 30*time.Minute {
		t.Errorf("SchedulerInterval = %v, want 30m", s.SchedulerInterval)
	}
	if s.MaxLeverage != 10 {
		t.Errorf("MaxLeverage = %d", s.MaxLeverage)
	}
	if s.MaxPositionPercent != 0.15 {
		t.Errorf("MaxPositionPercent = %v", s.MaxPositionPercent)
	}
	if s.MinConfidence != 75 {
		t.Errorf("MinConfidence = %d", s.MinConfidence)
	}
	if s.Symbol != "ETH-USDT-SWAP" {
		t.Errorf("Symbol = %q", s.Symbol)
	}
	if s.WebSearchURL != "http://search.internal" {
		t.Errorf("WebSearchURL = %q", s.WebSearchURL)
	}
}

func TestGetDurationHours_MalformedFallsBackToDefault(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv("SCHEDULER_INTERVAL_HOURS", "not-a-number")
	if got := getDurationHours("SCHEDULER_INTERVAL_HOURS", 4); got != 4*time.Hour {
		t.Errorf("getDurationHours() = %v, want 4h", got)
	}
}
