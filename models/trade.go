package models

import "time"

// Action is the decision policy output for one row.
type Action int

const (
	ActionHold Action = iota
	ActionEnterLong
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionEnterLong:
		return "ENTER_LONG"
	case ActionExit:
		return "EXIT"
	default:
		return "HOLD"
	}
}

// Signal is the externally visible live intent derived from an Action.
type Signal string

const (
	SignalHold Signal = "HOLD"
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// Side marks the direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExitReason names the rule that closed a position. Retained for analysis.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TP"
	ExitStopLoss   ExitReason = "SL"
	ExitMaxHold    ExitReason = "Time"
	ExitSignal     ExitReason = "Signal"
	ExitEnd        ExitReason = "End"
	ExitNone       ExitReason = ""
)

// PositionStatus enumerates the two policy states.
type PositionStatus int

const (
	PositionFlat PositionStatus = iota
	PositionLong
)

func (s PositionStatus) String() string {
	if s == PositionLong {
		return "LONG"
	}
	return "FLAT"
}

// PositionState tracks one open position. The entry notional and fee are
// captured at fill time so exit PnL is computed from the stored entry fill
// rather than from holdings that the exit step has already mutated.
type PositionState struct {
	Status        PositionStatus
	EntryPrice    float64
	EntryTime     time.Time
	Size          float64
	EntryNotional float64
	EntryFee      float64
}

// Trade is one executed fill. Records are appended to the ledger and never
// mutated afterwards. RealizedPnL and Reason are only set on SELL fills.
type Trade struct {
	Side        Side
	Price       float64
	Size        float64
	Time        time.Time
	Fee         float64
	RealizedPnL float64
	Reason      ExitReason
}

// EquityPoint is one mark-to-market observation, appended once per row.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}
