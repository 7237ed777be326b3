package backtest

import (
	"fmt"
	"math"
	"time"

	"quantflow/config"
	"quantflow/logger"
	"quantflow/models"
	"quantflow/strategy"
)

// Simulator replays scored feature rows through the decision policy and
// applies synthetic fills against a cash/holdings portfolio. It holds no
// state between runs, so one instance can back multiple runs.
type Simulator struct {
	policy     *strategy.Policy
	feeRate    float64
	cashBuffer float64
	log        *logger.Entry
}

func NewSimulator(cfg config.StrategyConfig, log *logger.Log) *Simulator {
	return &Simulator{
		policy:     strategy.NewPolicy(cfg),
		feeRate:    cfg.FeeRate,
		cashBuffer: cfg.CashBuffer,
		log:        log.WithComponent("simulator"),
	}
}

// Run processes rows strictly in order, single pass. Each row appends exactly
// one mark-to-market equity point before its decision is applied. The run
// never fails for financial reasons; sizing against current cash is
// self-limiting. A data contract violation (unsorted timestamps, NaN prices)
// aborts with the failing row identified.
func (s *Simulator) Run(rows []models.ScoredRow, initialCash float64) ([]models.EquityPoint, []models.Trade, error) {
	if len(rows) == 0 {
		return []models.EquityPoint{}, []models.Trade{}, nil
	}

	for i, row := range rows {
		if math.IsNaN(row.BidPx) || math.IsNaN(row.AskPx) {
			return nil, nil, fmt.Errorf("row %d (%s): price fields are NaN", i, row.Timestamp.Format("15:04:05.000"))
		}
		if i > 0 && row.Timestamp.Before(rows[i-1].Timestamp) {
			return nil, nil, fmt.Errorf("row %d (%s): timestamp out of order", i, row.Timestamp.Format("15:04:05.000"))
		}
	}

	cash := initialCash
	pos := models.PositionState{Status: models.PositionFlat}
	equity := make([]models.EquityPoint, 0, len(rows))
	trades := []models.Trade{}

	for _, row := range rows {
		mark := cash
		if pos.Status == models.PositionLong {
			mark += pos.Size * row.BidPx
		}
		equity = append(equity, models.EquityPoint{Time: row.Timestamp, Equity: mark})

		action, reason := s.policy.Decide(pos, row.Prob, row.BidPx, row.AskPx, row.Timestamp)
		switch action {
		case models.ActionEnterLong:
			size := (cash * s.cashBuffer) / row.AskPx
			notional := size * row.AskPx
			fee := notional * s.feeRate

			cash -= notional + fee
			pos = models.PositionState{
				Status:        models.PositionLong,
				EntryPrice:    row.AskPx,
				EntryTime:     row.Timestamp,
				Size:          size,
				EntryNotional: notional,
				EntryFee:      fee,
			}
			trades = append(trades, models.Trade{
				Side: models.SideBuy, Price: row.AskPx, Size: size,
				Time: row.Timestamp, Fee: fee,
			})
		case models.ActionExit:
			cash, trades = s.closePosition(cash, trades, &pos, row.BidPx, row.Timestamp, reason)
		}
	}

	// Forced liquidation at the last row's bid so the run always ends FLAT.
	if pos.Status == models.PositionLong {
		last := rows[len(rows)-1]
		cash, trades = s.closePosition(cash, trades, &pos, last.BidPx, last.Timestamp, models.ExitEnd)
	}

	s.log.WithFields(logger.Fields{
		"rows":         len(rows),
		"trades":       len(trades),
		"final_equity": cash,
	}).Info("Simulation complete")

	return equity, trades, nil
}

// closePosition sells the entire holding at bid. The trade record is built
// from the entry fill captured at open time, before the position is reset,
// so realized PnL never reads already-zeroed state.
func (s *Simulator) closePosition(cash float64, trades []models.Trade, pos *models.PositionState, bid float64, at time.Time, reason models.ExitReason) (float64, []models.Trade) {
	proceeds := pos.Size * bid
	fee := proceeds * s.feeRate
	pnl := (proceeds - fee) - (pos.EntryNotional + pos.EntryFee)

	trades = append(trades, models.Trade{
		Side: models.SideSell, Price: bid, Size: pos.Size,
		Time: at, Fee: fee, RealizedPnL: pnl, Reason: reason,
	})

	cash += proceeds - fee
	*pos = models.PositionState{Status: models.PositionFlat}
	return cash, trades
}
