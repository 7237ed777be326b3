package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quantflow/config"
	"quantflow/logger"
	"quantflow/models"
)

// BookSource is a continuously updated snapshot feed. Latest never blocks;
// the sequence number advances once per received snapshot so pollers can
// tell fresh data from already-seen data.
type BookSource interface {
	Start(ctx context.Context) error
	Stop()
	Latest() (models.OrderBookSnapshot, uint64, bool)
}

// Engine polls a BookSource on a fixed cadence and drives the adapter with
// the newest snapshot only. Snapshots that arrive between ticks are
// naturally skipped, so a slow model sheds load instead of building a queue.
type Engine struct {
	cfg     *config.Config
	source  BookSource
	adapter *Adapter
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewEngine(cfg *config.Config, source BookSource, adapter *Adapter) *Engine {
	return &Engine{
		cfg:     cfg,
		source:  source,
		adapter: adapter,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("live engine already running")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("live_engine").WithFields(logger.Fields{
		"coin":     e.cfg.Live.Coin,
		"feed":     e.cfg.Live.Feed,
		"interval": e.cfg.Live.Interval.Duration.String(),
	})
	log.Info("starting live engine")

	if err := e.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start book source: %w", err)
	}

	e.wg.Add(1)
	go e.pollLoop()

	log.Info("live engine started successfully")
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("live_engine").Info("stopping live engine")
	e.source.Stop()
	e.wg.Wait()
	e.log.WithComponent("live_engine").Info("live engine stopped")
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()

	log := e.log.WithComponent("live_engine").WithFields(logger.Fields{"worker": "poll"})
	ticker := time.NewTicker(e.cfg.Live.Interval.Duration)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-e.ctx.Done():
			log.Info("poll loop stopped due to context cancellation")
			return
		case <-ticker.C:
			snap, seq, ok := e.source.Latest()
			if !ok {
				log.Debug("waiting for data")
				continue
			}
			if seq == lastSeq {
				continue
			}
			lastSeq = seq

			start := time.Now()
			update, err := e.adapter.OnSnapshot(snap)
			if err != nil {
				log.WithError(err).Error("snapshot evaluation failed")
				continue
			}
			duration := time.Since(start)

			// A newer snapshot arrived while we were evaluating; this
			// result is stale and must not be emitted. The next tick
			// picks up the newer one.
			if _, newest, _ := e.source.Latest(); newest != seq {
				log.WithFields(logger.Fields{
					"seq":    seq,
					"newest": newest,
				}).Debug("abandoning stale evaluation")
				continue
			}

			e.emit(update, duration)
		}
	}
}

func (e *Engine) emit(update Update, duration time.Duration) {
	log := e.log.WithComponent("live_engine").WithFields(logger.Fields{
		"coin":     update.Row.Coin,
		"price":    update.Row.MidPrice,
		"prob":     update.Prob,
		"signal":   string(update.Signal),
		"position": e.adapter.Position().Status.String(),
		"eval_ms":  duration.Milliseconds(),
	})
	if update.Reason != models.ExitNone {
		log = log.WithFields(logger.Fields{"exit_reason": string(update.Reason)})
	}
	log.Info("live signal")
	logger.RecordFlowMessage("live_signals", 1)
}
