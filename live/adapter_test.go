package live

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"quantflow/config"
	"quantflow/feature"
	"quantflow/logger"
	"quantflow/models"
	"quantflow/strategy"
)

func testFeatureEngine() *feature.Engine {
	return feature.NewEngine(config.FeatureConfig{
		VolatilityWindow: 5,
		LabelHorizon:     5,
		LabelThreshold:   0.001,
	}, logger.GetLogger())
}

func testPolicy() *strategy.Policy {
	return strategy.NewPolicy(config.StrategyConfig{
		BuyThreshold:  0.6,
		ExitThreshold: 0.4,
		TakeProfit:    0.01,
		StopLoss:      0.005,
		MaxHold:       config.Duration{Duration: 5 * time.Minute},
	})
}

// fixedSource always reports the same probability and counts invocations.
type fixedSource struct {
	prob  float64
	calls int64
}

func (s *fixedSource) Probability(models.FeatureRow) (float64, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.prob, nil
}

func bookSnap(ts time.Time, bid, ask float64) models.OrderBookSnapshot {
	return models.OrderBookSnapshot{
		Coin:      "SOL",
		Timestamp: ts,
		Bids:      []models.BookLevel{{Price: bid, Size: 10}},
		Asks:      []models.BookLevel{{Price: ask, Size: 10}},
	}
}

func TestAdapterColdStart(t *testing.T) {
	a := NewAdapter(testFeatureEngine(), &fixedSource{prob: 0.5}, testPolicy(), 32)
	t0 := time.Now().UTC()

	// First snapshot, no history at all: volatility must degrade to 0
	// instead of stalling.
	update, err := a.OnSnapshot(bookSnap(t0, 99.9, 100.1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Row.Volatility != 0 {
		t.Fatalf("cold volatility should be 0, got %v", update.Row.Volatility)
	}
	if update.Signal != models.SignalHold {
		t.Fatalf("neutral probability should hold, got %s", update.Signal)
	}
}

func TestAdapterEntersAndExits(t *testing.T) {
	src := &fixedSource{prob: 0.8}
	a := NewAdapter(testFeatureEngine(), src, testPolicy(), 32)
	t0 := time.Now().UTC()

	update, err := a.OnSnapshot(bookSnap(t0, 99.9, 100.1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Signal != models.SignalBuy {
		t.Fatalf("expected BUY, got %s", update.Signal)
	}
	if a.Position().Status != models.PositionLong {
		t.Fatalf("expected LONG display position, got %s", a.Position().Status)
	}

	// Signal reversal while long.
	src.prob = 0.3
	update, err = a.OnSnapshot(bookSnap(t0.Add(time.Second), 99.95, 100.15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Signal != models.SignalSell || update.Reason != models.ExitSignal {
		t.Fatalf("expected SELL on reversal, got %s/%s", update.Signal, update.Reason)
	}
	if a.Position().Status != models.PositionFlat {
		t.Fatalf("expected FLAT after exit, got %s", a.Position().Status)
	}
}

func TestAdapterRetainsSignalOnMalformedTick(t *testing.T) {
	src := &fixedSource{prob: 0.8}
	a := NewAdapter(testFeatureEngine(), src, testPolicy(), 32)
	t0 := time.Now().UTC()

	update, err := a.OnSnapshot(bookSnap(t0, 99.9, 100.1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Signal != models.SignalBuy {
		t.Fatalf("expected BUY, got %s", update.Signal)
	}

	// Missing ask side: the tick is skipped, the BUY signal sticks and the
	// model is not consulted again.
	callsBefore := atomic.LoadInt64(&src.calls)
	malformed := models.OrderBookSnapshot{
		Coin:      "SOL",
		Timestamp: t0.Add(time.Second),
		Bids:      []models.BookLevel{{Price: 99.9, Size: 10}},
	}
	update, err = a.OnSnapshot(malformed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Signal != models.SignalBuy {
		t.Fatalf("previous signal should be retained, got %s", update.Signal)
	}
	if atomic.LoadInt64(&src.calls) != callsBefore {
		t.Fatal("model should not run on a skipped tick")
	}
}

// stubBook serves one fixed snapshot with a fixed sequence number.
type stubBook struct {
	snap models.OrderBookSnapshot
	seq  uint64
}

func (s *stubBook) Start(ctx context.Context) error { return nil }
func (s *stubBook) Stop()                           {}
func (s *stubBook) Latest() (models.OrderBookSnapshot, uint64, bool) {
	seq := atomic.LoadUint64(&s.seq)
	return s.snap, seq, seq > 0
}

func TestEngineEvaluatesEachSnapshotOnce(t *testing.T) {
	cfg := &config.Config{}
	cfg.Live.Coin = "SOL"
	cfg.Live.Feed = "hyperliquid"
	cfg.Live.Interval = config.Duration{Duration: 5 * time.Millisecond}

	src := &fixedSource{prob: 0.5}
	adapter := NewAdapter(testFeatureEngine(), src, testPolicy(), 32)
	book := &stubBook{snap: bookSnap(time.Now().UTC(), 99.9, 100.1), seq: 1}

	engine := NewEngine(cfg, book, adapter)
	ctx, cancel := context.WithCancel(context.Background())
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Many poll ticks pass but the sequence number never advances, so the
	// snapshot is evaluated exactly once.
	time.Sleep(60 * time.Millisecond)
	cancel()
	engine.Stop()

	if got := atomic.LoadInt64(&src.calls); got != 1 {
		t.Fatalf("expected exactly one evaluation, got %d", got)
	}
}
