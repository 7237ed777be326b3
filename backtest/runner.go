package backtest

import (
	"fmt"
	"time"

	"quantflow/config"
	"quantflow/logger"
	"quantflow/models"
	"quantflow/signal"
	"quantflow/writer"
)

// Result bundles one backtest run's outputs. The runner has no side effects
// beyond reading the feature file and model artifact.
type Result struct {
	Equity  []models.EquityPoint
	Trades  []models.Trade
	Summary Summary
}

// Runner resolves a precomputed feature file for (coin, date), scores the
// hold-out slice with the trained model and replays it through the simulator.
type Runner struct {
	cfg *config.Config
	sim *Simulator
	log *logger.Entry
}

func NewRunner(cfg *config.Config) *Runner {
	log := logger.GetLogger()
	return &Runner{
		cfg: cfg,
		sim: NewSimulator(cfg.Strategy, log),
		log: log.WithComponent("backtest"),
	}
}

// Run backtests one (coin, date) pair. dateStr uses yyyymmdd. The hold-out
// is the trailing test_split share of the file, matching the split the model
// was trained against so no training row is ever replayed.
func (r *Runner) Run(coin, dateStr string) (*Result, error) {
	path := writer.FeaturePath(r.cfg.Data.FeaturesDir, coin, dateStr)
	rows, err := writer.ReadFeatures(path)
	if err != nil {
		return nil, err
	}

	n := len(rows)
	testStart := int(float64(n) * (1 - r.cfg.Strategy.TestSplit))
	holdout := rows[testStart:]

	r.log.WithFields(logger.Fields{
		"coin":       coin,
		"date":       dateStr,
		"rows":       n,
		"test_rows":  len(holdout),
		"test_split": r.cfg.Strategy.TestSplit,
	}).Info("Loaded feature file")

	source, closeSource, err := r.newSource()
	if err != nil {
		return nil, err
	}
	defer closeSource()

	scoreStart := time.Now()
	scored := make([]models.ScoredRow, 0, len(holdout))
	for i, row := range holdout {
		prob, err := source.Probability(row)
		if err != nil {
			return nil, fmt.Errorf("failed to score row %d: %w", i, err)
		}
		scored = append(scored, models.ScoredRow{FeatureRow: row, Prob: prob})
	}
	logger.LogPerformanceEntry(r.log, "backtest", "score_rows", time.Since(scoreStart), logger.Fields{
		"rows":    len(scored),
		"backend": r.cfg.Signal.Backend,
	})

	equity, trades, err := r.sim.Run(scored, r.cfg.Strategy.InitialCash)
	if err != nil {
		return nil, err
	}

	summary := Summarize(r.cfg.Strategy.InitialCash, equity, trades)
	r.log.WithFields(logger.Fields{
		"final_equity": summary.FinalEquity,
		"return_pct":   summary.ReturnPct * 100,
		"trades":       summary.Trades,
		"round_trips":  summary.RoundTrips,
		"win_rate":     summary.WinRate,
		"max_drawdown": summary.MaxDrawdown * 100,
	}).Info("Backtest complete")

	return &Result{Equity: equity, Trades: trades, Summary: summary}, nil
}

// newSource builds the configured probability backend. Both backends share
// the same artifact bundle so the feature schema check applies regardless.
func (r *Runner) newSource() (signal.Source, func(), error) {
	bundlePath, err := signal.LatestBundle(r.cfg.Data.ModelsDir)
	if err != nil {
		return nil, nil, err
	}
	bundle, err := signal.LoadBundle(bundlePath)
	if err != nil {
		return nil, nil, err
	}

	switch r.cfg.Signal.Backend {
	case "onnx":
		src, err := signal.NewONNX(r.cfg.Signal.ONNXModel, r.cfg.Signal.ONNXLibrary, bundle)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return signal.NewLogistic(bundle), func() {}, nil
	}
}
