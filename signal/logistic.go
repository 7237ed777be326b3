package signal

import (
	"fmt"
	"math"

	"quantflow/models"
)

// Source produces P(label=1) for a feature row. Implementations must be safe
// to share between the backtest runner and the live adapter.
type Source interface {
	Probability(row models.FeatureRow) (float64, error)
}

// Logistic evaluates a fitted logistic regression over the standardized
// feature vector. The bundle is treated as read-only.
type Logistic struct {
	bundle *Bundle
}

// NewLogistic wraps a loaded bundle.
func NewLogistic(bundle *Bundle) *Logistic {
	return &Logistic{bundle: bundle}
}

// Probability standardizes the row with the fitted scaler and applies the
// sigmoid of the linear score.
func (l *Logistic) Probability(row models.FeatureRow) (float64, error) {
	vec, err := standardize(row, l.bundle)
	if err != nil {
		return 0, err
	}

	z := l.bundle.Classifier.Intercept
	for i, x := range vec {
		z += l.bundle.Classifier.Coefficients[i] * x
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// standardize lays the row out in schema order and applies (x-mean)/scale.
func standardize(row models.FeatureRow, bundle *Bundle) ([]float64, error) {
	vec, err := row.Vector(bundle.FeatureSchema)
	if err != nil {
		return nil, fmt.Errorf("feature vector does not match bundle schema: %w", err)
	}
	for i := range vec {
		vec[i] = (vec[i] - bundle.Scaler.Mean[i]) / bundle.Scaler.Scale[i]
	}
	return vec, nil
}
