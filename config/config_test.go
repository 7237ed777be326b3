package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalYAML = `quantflow:
  name: "TestApp"
  version: "1.0"
`

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Quantflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Quantflow.Name)
	}
	if cfg.Feature.VolatilityWindow != 5 {
		t.Errorf("unexpected volatility window: %d", cfg.Feature.VolatilityWindow)
	}
	if cfg.Strategy.BuyThreshold != 0.6 {
		t.Errorf("unexpected buy threshold: %f", cfg.Strategy.BuyThreshold)
	}
	if cfg.Strategy.MaxHold.Duration != 5*time.Minute {
		t.Errorf("unexpected max hold: %v", cfg.Strategy.MaxHold)
	}
	if cfg.Strategy.FeeRate != 0.00025 {
		t.Errorf("unexpected fee rate: %f", cfg.Strategy.FeeRate)
	}
	if cfg.Live.Feed != "hyperliquid" {
		t.Errorf("unexpected live feed: %s", cfg.Live.Feed)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeTempConfig(t, minimalYAML+`strategy:
  buy_threshold: 0.7
  exit_threshold: 0.3
  take_profit: 0.02
  stop_loss: 0.01
  max_hold: 10m
  fee_rate: 0.0005
  cash_buffer: 0.95
  initial_cash: 5000
  test_split: 0.2
`)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Strategy.BuyThreshold != 0.7 {
		t.Errorf("unexpected buy threshold: %f", cfg.Strategy.BuyThreshold)
	}
	if cfg.Strategy.MaxHold.Duration != 10*time.Minute {
		t.Errorf("unexpected max hold: %v", cfg.Strategy.MaxHold)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	path := writeTempConfig(t, `quantflow:
  version: "1.0"
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}

func TestLoadConfigInvalidThresholds(t *testing.T) {
	// Exit threshold above the buy threshold would let a position enter and
	// exit on the same probability; the loader must reject it.
	path := writeTempConfig(t, minimalYAML+`strategy:
  buy_threshold: 0.4
  exit_threshold: 0.6
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for inverted thresholds")
	}
}

func TestLoadConfigInvalidBackend(t *testing.T) {
	path := writeTempConfig(t, minimalYAML+`signal:
  backend: "tensorflow"
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for unknown backend")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("does-not-exist.yml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
