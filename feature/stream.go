package feature

import (
	"math"

	"quantflow/models"
)

// Stream derives feature rows one snapshot at a time for live inference,
// approximating the batch Infer semantics with a bounded trailing buffer.
// Volatility is computed from however much history has accumulated and is 0
// until two returns exist, so a cold stream never stalls or raises.
//
// Stream is not safe for concurrent use; the live engine invokes it from a
// single goroutine.
type Stream struct {
	engine   *Engine
	capacity int
	lastMid  float64
	hasMid   bool
	returns  []float64
}

// NewStream builds a streaming derivation around an engine's window settings.
// capacity bounds the retained return history and is clamped to at least the
// volatility window so a full window is always available once warm.
func NewStream(engine *Engine, capacity int) *Stream {
	if capacity < engine.window {
		capacity = engine.window
	}
	return &Stream{
		engine:   engine,
		capacity: capacity,
		returns:  make([]float64, 0, capacity),
	}
}

// Push ingests one snapshot and returns its feature row. Malformed snapshots
// (missing bid or ask side) are skipped: ok is false and no state advances,
// so the previous signal can be retained upstream.
func (s *Stream) Push(snap models.OrderBookSnapshot) (models.FeatureRow, bool) {
	row := baseRow(snap)
	if !row.Valid {
		return models.FeatureRow{}, false
	}

	if s.hasMid && s.lastMid != 0 {
		ret := row.MidPrice/s.lastMid - 1
		s.returns = append(s.returns, ret)
		if len(s.returns) > s.capacity {
			s.returns = s.returns[len(s.returns)-s.capacity:]
		}
	}
	s.lastMid = row.MidPrice
	s.hasMid = true

	window := s.returns
	if len(window) > s.engine.window {
		window = window[len(window)-s.engine.window:]
	}
	row.Volatility = sampleStd(window)
	if math.IsNaN(row.Volatility) {
		row.Volatility = 0
	}
	return row, true
}

// Warm reports whether the buffer holds a full volatility window.
func (s *Stream) Warm() bool {
	return len(s.returns) >= s.engine.window
}

// Reset clears the trailing history, e.g. after a feed reconnect gap.
func (s *Stream) Reset() {
	s.lastMid = 0
	s.hasMid = false
	s.returns = s.returns[:0]
}
