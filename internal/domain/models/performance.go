package models

import "time"

// ReliabilitySample is the rolling trust estimate for one source. Updated
// only on position closure, never during scoring.
type ReliabilitySample struct {
	Source    string    `json:"source"`
	Score     float64   `json:"score"` // EMA of win/loss indicator
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PerformanceRecord aggregates closed-trade outcomes per stage.
type PerformanceRecord struct {
	Stage       Stage     `json:"stage"`
	Trades      int       `json:"trades"`
	Wins        int       `json:"wins"`
	RealizedPnL float64   `json:"realized_pnl"`
	BestTrade   string    `json:"best_trade,omitempty"`  // position id
	WorstTrade  string    `json:"worst_trade,omitempty"` // position id
	BestPnL     float64   `json:"best_pnl,omitempty"`
	WorstPnL    float64   `json:"worst_pnl,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WinRate returns the realized win fraction, zero when no trades closed yet.
func (r *PerformanceRecord) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}
