package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appconfig "quantflow/config"
	"quantflow/logger"
	"quantflow/models"
	"quantflow/processor"
)

const pingInterval = 50 * time.Second

type subscribeRequest struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Type string `json:"type"`
	Coin string `json:"coin"`
}

// WSReader maintains an l2Book subscription for one coin and keeps only the
// most recent snapshot. Consumers poll Latest on their own cadence; the
// sequence number lets them detect whether anything new arrived since their
// previous read.
type WSReader struct {
	url     string
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
	return &WSReader{
		url:  cfg.Live.Hyper.URL,
		coin: cfg.Live.Coin,
		wg:   &sync.WaitGroup{},
		log:  logger.GetLogger(),
	}
}

func (r *WSReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("hyperliquid reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	log := r.log.WithComponent("hyperliquid_reader").WithFields(logger.Fields{
		"url":  r.url,
		"coin": r.coin,
	})
	log.Info("starting hyperliquid reader")

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
	r.log.WithComponent("hyperliquid_reader").Info("stopping hyperliquid reader")
	r.wg.Wait()
	r.log.WithComponent("hyperliquid_reader").Info("hyperliquid reader stopped")
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

	log := r.log.WithComponent("hyperliquid_reader").WithFields(logger.Fields{"worker": "connect"})
	backoff := time.Second

	for {
		select {
		case <-r.ctx.Done():
			log.Info("connect loop stopped due to context cancellation")
			return
		default:
		}

		if err := r.readSession(); err != nil {
			log.WithError(err).Warn("websocket session ended, reconnecting")
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

// readSession dials, subscribes, then pumps messages until the connection
// breaks or the context is cancelled.
func (r *WSReader) readSession() error {
	log := r.log.WithComponent("hyperliquid_reader")

	conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", r.url, err)
	}
	defer conn.Close()

	sub := subscribeRequest{
		Method:       "subscribe",
		Subscription: subscription{Type: "l2Book", Coin: r.coin},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	log.Info("subscribed to l2Book channel")

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-r.ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"method": "ping"}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		var msg models.WSMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.WithError(err).Debug("skipping unparseable message")
			continue
		}
		if msg.Channel != "l2Book" || msg.Data.Coin != r.coin {
			continue
		}

		snap := processor.Normalize(msg.Data)
		r.mu.Lock()
		r.latest = snap
		r.seq++
		r.has = true
		r.mu.Unlock()

		logger.IncrementSnapshotRead(len(payload))
	}
}
