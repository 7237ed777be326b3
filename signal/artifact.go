package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"quantflow/models"
)

// ScalerParams are the fitted standardization parameters, one mean and scale
// per feature column, fitted once at training time and reused verbatim.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ClassifierParams hold a fitted logistic regression.
type ClassifierParams struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Bundle is the versioned, immutable model artifact shared by the backtest
// runner and the live adapter. It is loaded once and never refit or mutated.
type Bundle struct {
	Version       string           `json:"version"`
	TrainedAt     string           `json:"trained_at"`
	FeatureSchema []string         `json:"feature_schema"`
	Scaler        ScalerParams     `json:"scaler"`
	Classifier    ClassifierParams `json:"classifier"`
}

// LoadBundle reads and validates an artifact file. A missing file or a schema
// that does not match the engine's declared feature schema is a fatal
// precondition failure for the caller.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model bundle: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse model bundle %s: %w", path, err)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("invalid model bundle %s: %w", path, err)
	}
	return &b, nil
}

func (b *Bundle) validate() error {
	declared := models.FeatureSchema()
	if len(b.FeatureSchema) != len(declared) {
		return fmt.Errorf("feature schema has %d columns, engine emits %d",
			len(b.FeatureSchema), len(declared))
	}
	for i, col := range declared {
		if b.FeatureSchema[i] != col {
			return fmt.Errorf("feature schema column %d is '%s', engine emits '%s'",
				i, b.FeatureSchema[i], col)
		}
	}

	n := len(b.FeatureSchema)
	if len(b.Scaler.Mean) != n || len(b.Scaler.Scale) != n {
		return fmt.Errorf("scaler has %d/%d parameters for %d columns",
			len(b.Scaler.Mean), len(b.Scaler.Scale), n)
	}
	for i, s := range b.Scaler.Scale {
		if s == 0 {
			return fmt.Errorf("scaler scale for column '%s' is zero", b.FeatureSchema[i])
		}
	}
	if len(b.Classifier.Coefficients) != n {
		return fmt.Errorf("classifier has %d coefficients for %d columns",
			len(b.Classifier.Coefficients), n)
	}
	return nil
}

// LatestBundle resolves the newest artifact in dir by filename ordering,
// matching the training side's timestamped model_*.json naming.
func LatestBundle(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "model_*.json"))
	if err != nil {
		return "", fmt.Errorf("failed to scan models dir: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no model bundle found in %s", dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
