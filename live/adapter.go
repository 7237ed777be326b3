package live

import (
	"quantflow/feature"
	"quantflow/logger"
	"quantflow/models"
	"quantflow/signal"
	"quantflow/strategy"
)

// Update is one live evaluation result: the emitted signal plus the
// diagnostics behind it.
type Update struct {
	Signal models.Signal
	Prob   float64
	Action models.Action
	Reason models.ExitReason
	Row    models.FeatureRow
}

// Adapter evaluates one snapshot at a time: streaming feature derivation,
// model probability, then the decision policy against a display-only
// position. The position tracks intent so exits can be surfaced; it never
// holds real capital.
type Adapter struct {
	stream *feature.Stream
	source signal.Source
	policy *strategy.Policy
	pos    models.PositionState
	last   Update
	log    *logger.Log
}

// NewAdapter wires the streaming pipeline. buffer bounds the trailing return
// history (live.buffer); NewStream clamps it to the volatility window.
func NewAdapter(engine *feature.Engine, source signal.Source, policy *strategy.Policy, buffer int) *Adapter {
	return &Adapter{
		stream: feature.NewStream(engine, buffer),
		source: source,
		policy: policy,
		pos:    models.PositionState{Status: models.PositionFlat},
		last:   Update{Signal: models.SignalHold},
		log:    logger.GetLogger(),
	}
}

// OnSnapshot evaluates one snapshot. A malformed tick (missing side) is
// skipped without advancing the rolling state and the previous signal is
// retained.
func (a *Adapter) OnSnapshot(snap models.OrderBookSnapshot) (Update, error) {
	row, ok := a.stream.Push(snap)
	if !ok {
		a.log.WithComponent("live_adapter").WithFields(logger.Fields{
			"coin": snap.Coin,
			"time": snap.Timestamp,
		}).Warn("malformed tick skipped, retaining previous signal")
		return a.last, nil
	}

	prob, err := a.source.Probability(row)
	if err != nil {
		return a.last, err
	}

	action, reason := a.policy.Decide(a.pos, prob, row.BidPx, row.AskPx, row.Timestamp)
	switch action {
	case models.ActionEnterLong:
		a.pos = models.PositionState{
			Status:     models.PositionLong,
			EntryPrice: row.AskPx,
			EntryTime:  row.Timestamp,
		}
	case models.ActionExit:
		a.pos = models.PositionState{Status: models.PositionFlat}
	}

	update := Update{
		Signal: signalFor(action),
		Prob:   prob,
		Action: action,
		Reason: reason,
		Row:    row,
	}
	a.last = update
	return update, nil
}

// Position returns the display-only position state.
func (a *Adapter) Position() models.PositionState {
	return a.pos
}

func signalFor(action models.Action) models.Signal {
	switch action {
	case models.ActionEnterLong:
		return models.SignalBuy
	case models.ActionExit:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}
