package signal

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"quantflow/models"
)

func testBundle() *Bundle {
	n := len(models.FeatureSchema())
	scale := make([]float64, n)
	mean := make([]float64, n)
	coef := make([]float64, n)
	for i := range scale {
		scale[i] = 1
	}
	return &Bundle{
		Version:       "test",
		FeatureSchema: models.FeatureSchema(),
		Scaler:        ScalerParams{Mean: mean, Scale: scale},
		Classifier:    ClassifierParams{Coefficients: coef},
	}
}

func writeBundle(t *testing.T, dir, name string, b *Bundle) string {
	t.Helper()
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	return path
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "model_20240101_000000.json", testBundle())

	b, err := LoadBundle(path)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if b.Version != "test" {
		t.Errorf("unexpected version: %s", b.Version)
	}
}

func TestLoadBundleMissing(t *testing.T) {
	if _, err := LoadBundle(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing bundle")
	}
}

func TestLoadBundleSchemaMismatch(t *testing.T) {
	b := testBundle()
	b.FeatureSchema = append([]string{}, b.FeatureSchema...)
	b.FeatureSchema[0] = "entropy"

	dir := t.TempDir()
	path := writeBundle(t, dir, "model_bad.json", b)
	if _, err := LoadBundle(path); err == nil {
		t.Fatalf("expected schema mismatch rejection at load time")
	}
}

func TestLoadBundleScalerLengthMismatch(t *testing.T) {
	b := testBundle()
	b.Scaler.Mean = b.Scaler.Mean[:3]

	dir := t.TempDir()
	path := writeBundle(t, dir, "model_bad.json", b)
	if _, err := LoadBundle(path); err == nil {
		t.Fatalf("expected scaler length rejection at load time")
	}
}

func TestLatestBundle(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "model_20240101_000000.json", testBundle())
	want := writeBundle(t, dir, "model_20240301_120000.json", testBundle())
	writeBundle(t, dir, "model_20240201_000000.json", testBundle())

	got, err := LatestBundle(dir)
	if err != nil {
		t.Fatalf("LatestBundle: %v", err)
	}
	if got != want {
		t.Errorf("latest = %s, want %s", got, want)
	}
}

func TestLatestBundleEmpty(t *testing.T) {
	if _, err := LatestBundle(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty models dir")
	}
}

func TestLogisticProbability(t *testing.T) {
	b := testBundle()
	// All-zero coefficients and intercept: the sigmoid of 0 is exactly 0.5.
	src := NewLogistic(b)
	prob, err := src.Probability(models.FeatureRow{MidPrice: 100})
	if err != nil {
		t.Fatalf("probability: %v", err)
	}
	if prob != 0.5 {
		t.Errorf("prob = %f, want 0.5", prob)
	}
}

func TestLogisticProbabilityDirection(t *testing.T) {
	b := testBundle()
	// A positive weight on imbalance must push probability above 0.5 for
	// bid-heavy books and below for ask-heavy ones.
	for i, col := range b.FeatureSchema {
		if col == "imbalance_1" {
			b.Classifier.Coefficients[i] = 2.0
		}
	}
	src := NewLogistic(b)

	bidHeavy, err := src.Probability(models.FeatureRow{Imbalance: 0.8})
	if err != nil {
		t.Fatalf("probability: %v", err)
	}
	askHeavy, err := src.Probability(models.FeatureRow{Imbalance: -0.8})
	if err != nil {
		t.Fatalf("probability: %v", err)
	}
	if bidHeavy <= 0.5 || askHeavy >= 0.5 {
		t.Errorf("bidHeavy = %f, askHeavy = %f", bidHeavy, askHeavy)
	}
	if math.Abs(bidHeavy+askHeavy-1) > 1e-12 {
		t.Errorf("symmetric inputs should give complementary probabilities")
	}
}

func TestLogisticStandardization(t *testing.T) {
	b := testBundle()
	for i, col := range b.FeatureSchema {
		if col == "mid_price" {
			b.Scaler.Mean[i] = 100
			b.Scaler.Scale[i] = 10
			b.Classifier.Coefficients[i] = 1
		}
	}
	src := NewLogistic(b)

	// mid 110 standardizes to +1.0, so z = 1.
	prob, err := src.Probability(models.FeatureRow{MidPrice: 110})
	if err != nil {
		t.Fatalf("probability: %v", err)
	}
	want := 1 / (1 + math.Exp(-1))
	if math.Abs(prob-want) > 1e-12 {
		t.Errorf("prob = %f, want %f", prob, want)
	}
}
