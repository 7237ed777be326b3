package backtest

import "quantflow/models"

// Summary aggregates one simulation run.
type Summary struct {
	InitialCash  float64 `json:"initial_cash"`
	FinalEquity  float64 `json:"final_equity"`
	ReturnPct    float64 `json:"return_pct"`
	Trades       int     `json:"trades"`
	RoundTrips   int     `json:"round_trips"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
	TotalFees    float64 `json:"total_fees"`
	MaxDrawdown  float64 `json:"max_drawdown_pct"`
	NetPnL       float64 `json:"net_pnl"`
	ExitsByCause map[models.ExitReason]int
}

// Summarize computes run statistics from the equity curve and trade ledger.
// The final equity is taken from the cash after all fills, which equals the
// last mark plus any PnL the forced close realized after it.
func Summarize(initialCash float64, equity []models.EquityPoint, trades []models.Trade) Summary {
	s := Summary{
		InitialCash:  initialCash,
		FinalEquity:  initialCash,
		ExitsByCause: make(map[models.ExitReason]int),
	}
	if len(equity) == 0 {
		return s
	}

	peak := initialCash
	for _, pt := range equity {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			dd := (peak - pt.Equity) / peak
			if dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}

	for _, t := range trades {
		s.Trades++
		s.TotalFees += t.Fee
		if t.Side == models.SideSell {
			s.RoundTrips++
			s.NetPnL += t.RealizedPnL
			s.ExitsByCause[t.Reason]++
			if t.RealizedPnL > 0 {
				s.Wins++
			}
		}
	}
	if s.RoundTrips > 0 {
		s.WinRate = float64(s.Wins) / float64(s.RoundTrips)
	}

	final := initialCash + s.NetPnL
	s.FinalEquity = final
	if initialCash > 0 {
		s.ReturnPct = (final - initialCash) / initialCash
	}
	return s
}
