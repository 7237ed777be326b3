package feature

import (
	"math"

	"quantflow/config"
	"quantflow/logger"
	"quantflow/models"
)

// Mode selects labeling and missing-history semantics for derivation.
type Mode int

const (
	// Train computes the forward-looking label and drops rows lacking a full
	// volatility window or enough forward observations.
	Train Mode = iota
	// Infer computes volatility from whatever history exists, substituting 0
	// below two samples, and never produces a label. Early rows therefore
	// differ from their train-time counterparts; the decision policy is
	// expected to tolerate that.
	Infer
)

// Engine derives feature rows from ordered book snapshots. It holds no
// cross-call state, so one engine is safely reusable across runs.
type Engine struct {
	window    int
	horizon   int
	threshold float64
	log       *logger.Log
}

// NewEngine builds an engine from the feature configuration.
func NewEngine(cfg config.FeatureConfig, log *logger.Log) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		window:    cfg.VolatilityWindow,
		horizon:   cfg.LabelHorizon,
		threshold: cfg.LabelThreshold,
		log:       log,
	}
}

// Window returns the trailing volatility window size.
func (e *Engine) Window() int { return e.window }

// Derive converts an ordered snapshot sequence into feature rows. Input order
// is preserved; the engine neither re-sorts nor deduplicates. Snapshots with a
// missing side become invalid rows with NaN fields; Train mode drops them.
func (e *Engine) Derive(snaps []models.OrderBookSnapshot, mode Mode) []models.FeatureRow {
	rows := make([]models.FeatureRow, len(snaps))
	mids := make([]float64, len(snaps))

	for i, snap := range snaps {
		rows[i] = baseRow(snap)
		mids[i] = rows[i].MidPrice
	}

	// returns[i] compares row i against row i-1; undefined for the first row
	// and across invalid rows.
	returns := make([]float64, len(snaps))
	for i := range returns {
		if i == 0 || !isFinite(mids[i]) || !isFinite(mids[i-1]) {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = mids[i]/mids[i-1] - 1
	}

	for i := range rows {
		rows[i].Volatility = e.volatility(returns, i, mode)
	}

	if mode == Infer {
		for i := range rows {
			if math.IsNaN(rows[i].Volatility) {
				rows[i].Volatility = 0
			}
		}
		return rows
	}

	// Train: attach labels and drop rows without full trailing history or
	// enough forward observations.
	out := make([]models.FeatureRow, 0, len(rows))
	for i := range rows {
		if !rows[i].Valid || math.IsNaN(rows[i].Volatility) {
			continue
		}
		future := i + e.horizon
		if future >= len(mids) || !isFinite(mids[future]) {
			continue
		}
		futureReturn := mids[future]/mids[i] - 1
		if futureReturn > e.threshold {
			rows[i].Target = 1
		}
		rows[i].Labeled = true
		out = append(out, rows[i])
	}

	e.log.WithComponent("feature_engine").WithFields(logger.Fields{
		"input_rows":  len(snaps),
		"output_rows": len(out),
		"window":      e.window,
		"horizon":     e.horizon,
	}).Debug("derived train features")

	return out
}

// volatility computes the sample standard deviation of returns over the
// trailing window ending at index i. Train requires every sample present;
// Infer uses however many finite samples exist (NaN below two).
func (e *Engine) volatility(returns []float64, i int, mode Mode) float64 {
	start := i - e.window + 1
	if start < 0 {
		if mode == Train {
			return math.NaN()
		}
		start = 0
	}

	samples := make([]float64, 0, e.window)
	for j := start; j <= i; j++ {
		if math.IsNaN(returns[j]) {
			if mode == Train {
				return math.NaN()
			}
			continue
		}
		samples = append(samples, returns[j])
	}
	if mode == Train && len(samples) < e.window {
		return math.NaN()
	}
	return sampleStd(samples)
}

// sampleStd is the n-1 denominator standard deviation; NaN below two samples.
func sampleStd(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return math.NaN()
	}
	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)

	var ss float64
	for _, s := range samples {
		d := s - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// baseRow computes the instantaneous features for one snapshot. A missing
// side marks the row invalid with NaN feature fields rather than aborting the
// sequence.
func baseRow(snap models.OrderBookSnapshot) models.FeatureRow {
	row := models.FeatureRow{
		Timestamp: snap.Timestamp,
		Coin:      snap.Coin,
	}

	bid, okBid := snap.BestBid()
	ask, okAsk := snap.BestAsk()
	if !okBid || !okAsk {
		row.BidPx = math.NaN()
		row.AskPx = math.NaN()
		row.BidSz = math.NaN()
		row.AskSz = math.NaN()
		row.MidPrice = math.NaN()
		row.Spread = math.NaN()
		row.Imbalance = math.NaN()
		row.WMP = math.NaN()
		return row
	}

	row.Valid = true
	row.BidPx = bid.Price
	row.AskPx = ask.Price
	row.BidSz = bid.Size
	row.AskSz = ask.Size
	row.MidPrice = (bid.Price + ask.Price) / 2
	row.Spread = ask.Price - bid.Price

	total := bid.Size + ask.Size
	if total == 0 {
		// Degenerate book: no resting size on either side. NaN, not an error.
		row.Imbalance = math.NaN()
		row.WMP = math.NaN()
	} else {
		row.Imbalance = (bid.Size - ask.Size) / total
		row.WMP = (bid.Price*ask.Size + ask.Price*bid.Size) / total
	}
	return row
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
