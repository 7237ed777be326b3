package strategy

import (
	"time"

	"quantflow/config"
	"quantflow/models"
)

// Policy maps position state and the latest probability to an action. It is
// a pure function of its inputs: no clocks, no randomness, no side effects,
// so batch and live callers behave identically.
type Policy struct {
	buyThreshold  float64
	exitThreshold float64
	takeProfit    float64
	stopLoss      float64
	maxHold       time.Duration
}

// NewPolicy builds a policy from the strategy configuration.
func NewPolicy(cfg config.StrategyConfig) *Policy {
	return &Policy{
		buyThreshold:  cfg.BuyThreshold,
		exitThreshold: cfg.ExitThreshold,
		takeProfit:    cfg.TakeProfit,
		stopLoss:      cfg.StopLoss,
		maxHold:       cfg.MaxHold.Duration,
	}
}

// Decide evaluates one row. While FLAT the only possible action is
// ENTER_LONG; while LONG the only possible action is EXIT. The exit rules are
// checked in fixed priority order and the first match wins:
// take-profit, stop-loss, max holding time, signal reversal.
func (p *Policy) Decide(pos models.PositionState, prob, bid, ask float64, now time.Time) (models.Action, models.ExitReason) {
	switch pos.Status {
	case models.PositionFlat:
		if prob > p.buyThreshold {
			return models.ActionEnterLong, models.ExitNone
		}
	case models.PositionLong:
		pctChange := (bid - pos.EntryPrice) / pos.EntryPrice
		held := now.Sub(pos.EntryTime)

		switch {
		case pctChange >= p.takeProfit:
			return models.ActionExit, models.ExitTakeProfit
		case pctChange <= -p.stopLoss:
			return models.ActionExit, models.ExitStopLoss
		case held >= p.maxHold:
			return models.ActionExit, models.ExitMaxHold
		case prob < p.exitThreshold:
			return models.ActionExit, models.ExitSignal
		}
	}
	return models.ActionHold, models.ExitNone
}
