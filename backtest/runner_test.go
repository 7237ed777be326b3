package backtest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantflow/config"
	"quantflow/models"
	"quantflow/signal"
	"quantflow/writer"
)

func runnerConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Quantflow.Version = "test"
	cfg.Data.FeaturesDir = t.TempDir()
	cfg.Data.ModelsDir = t.TempDir()
	cfg.Signal.Backend = "logistic"
	cfg.Strategy = testStrategyConfig()
	cfg.Strategy.TestSplit = 0.15
	return cfg
}

func writeRunnerBundle(t *testing.T, dir string, intercept float64) {
	t.Helper()
	n := len(models.FeatureSchema())
	scale := make([]float64, n)
	for i := range scale {
		scale[i] = 1
	}
	b := signal.Bundle{
		Version:       "test",
		FeatureSchema: models.FeatureSchema(),
		Scaler:        signal.ScalerParams{Mean: make([]float64, n), Scale: scale},
		Classifier:    signal.ClassifierParams{Coefficients: make([]float64, n), Intercept: intercept},
	}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model_20260801_000000.json"), data, 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
}

func writeRunnerFeatures(t *testing.T, cfg *config.Config, n int) {
	t.Helper()
	fw, err := writer.NewFeatureWriter(cfg)
	if err != nil {
		t.Fatalf("feature writer: %v", err)
	}

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]models.FeatureRow, 0, n)
	for i := 0; i < n; i++ {
		mid := 100.0
		rows = append(rows, models.FeatureRow{
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			Coin:      "SOL",
			BidPx:     mid - 0.05, AskPx: mid + 0.05,
			BidSz: 10, AskSz: 10,
			MidPrice: mid, Spread: 0.1, WMP: mid,
			Valid: true,
		})
	}
	if _, err := fw.WriteFeatures(context.Background(), "SOL", "20260801", rows); err != nil {
		t.Fatalf("write features: %v", err)
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	cfg := runnerConfig(t)
	writeRunnerBundle(t, cfg.Data.ModelsDir, 5) // sigmoid(5) ≈ 0.993, always bullish
	writeRunnerFeatures(t, cfg, 100)

	res, err := NewRunner(cfg).Run("SOL", "20260801")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Hold-out is the trailing 15% of 100 rows.
	if len(res.Equity) != 15 {
		t.Fatalf("expected 15 equity points, got %d", len(res.Equity))
	}
	// Permanently bullish signal: one entry on the first hold-out row, then
	// the forced liquidation at the end.
	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(res.Trades))
	}
	if res.Trades[0].Side != models.SideBuy || res.Trades[1].Reason != models.ExitEnd {
		t.Fatalf("unexpected ledger: %+v", res.Trades)
	}
	if res.Summary.RoundTrips != 1 {
		t.Fatalf("expected one round trip, got %d", res.Summary.RoundTrips)
	}
}

func TestRunnerMissingFeatureFile(t *testing.T) {
	cfg := runnerConfig(t)
	writeRunnerBundle(t, cfg.Data.ModelsDir, 0)

	if _, err := NewRunner(cfg).Run("SOL", "20260801"); err == nil {
		t.Fatal("expected error for missing feature file")
	}
}

func TestRunnerMissingModel(t *testing.T) {
	cfg := runnerConfig(t)
	writeRunnerFeatures(t, cfg, 20)

	if _, err := NewRunner(cfg).Run("SOL", "20260801"); err == nil {
		t.Fatal("expected error for missing model bundle")
	}
}
