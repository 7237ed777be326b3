package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	appconfig "quantflow/config"
	"quantflow/logger"
	"quantflow/models"
)

// WSReader streams partial book depth for one symbol from Binance and keeps
// only the most recent snapshot, exposing the same polling surface as the
// hyperliquid reader so the live engine can run against either venue.
type WSReader struct {
	symbol  string
	levels  string
	coin    string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	latest  models.OrderBookSnapshot
	seq     uint64
	has     bool
	log     *logger.Log
}

func NewWSReader(cfg *appconfig.Config) *WSReader {
	levels := cfg.Live.Binance.Levels
	if levels == "" {
		levels = "5"
	}
	return &WSReader{
		symbol: cfg.Live.Binance.Symbol,
		levels: levels,
		coin:   cfg.Live.Coin,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (r *WSReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": r.symbol,
		"levels": r.levels,
	}).Info("starting binance reader")

	r.wg.Add(1)
	go r.connectLoop()

	return nil
}

func (r *WSReader) Stop() {
	r.mu.Lock()
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.log.WithComponent("binance_reader").Info("stopping binance reader")
	r.wg.Wait()
	r.log.WithComponent("binance_reader").Info("binance reader stopped")
}

// Latest returns the most recent snapshot, its sequence number, and whether
// any snapshot has been received yet.
func (r *WSReader) Latest() (models.OrderBookSnapshot, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.seq, r.has
}

func (r *WSReader) connectLoop() {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"worker": "connect"})
	backoff := time.Second

	for {
		select {
		case <-r.ctx.Done():
			log.Info("connect loop stopped due to context cancellation")
			return
		default:
		}

		errC := make(chan error, 1)
		doneC, stopC, err := gobinance.WsPartialDepthServe100Ms(r.symbol, r.levels,
			r.handleDepth,
			func(err error) {
				select {
				case errC <- err:
				default:
				}
			})
		if err != nil {
			log.WithError(err).Warn("failed to open depth stream")
		} else {
			select {
			case <-r.ctx.Done():
				close(stopC)
				<-doneC
				return
			case err := <-errC:
				log.WithError(err).Warn("depth stream error, reconnecting")
				close(stopC)
				<-doneC
			case <-doneC:
				log.Warn("depth stream closed, reconnecting")
			}
		}

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (r *WSReader) handleDepth(event *gobinance.WsPartialDepthEvent) {
	snap := models.OrderBookSnapshot{
		Coin:      r.coin,
		Timestamp: time.Now().UTC(),
		Bids:      convertLevels(event.Bids),
		Asks:      convertLevels(event.Asks),
	}

	r.mu.Lock()
	r.latest = snap
	r.seq++
	r.has = true
	r.mu.Unlock()

	logger.IncrementSnapshotRead(len(event.Bids) + len(event.Asks))
}

func convertLevels(raw []gobinance.Bid) []models.BookLevel {
	levels := make([]models.BookLevel, 0, len(raw))
	for _, lvl := range raw {
		px, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		sz, err := strconv.ParseFloat(lvl.Quantity, 64)
		if err != nil {
			continue
		}
		levels = append(levels, models.BookLevel{Price: px, Size: sz})
	}
	return levels
}
