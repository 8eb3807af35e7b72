package models

import "time"

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionClosing PositionStatus = "closing"
	PositionClosed  PositionStatus = "closed"
	PositionFailed  PositionStatus = "failed"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitMaxHold    ExitReason = "max_hold"
	ExitManual     ExitReason = "manual"
)

// ExitRules is the rule set attached to a position at open time. Immutable
// once the position is opened; ticks re-evaluate, never mutate.
type ExitRules struct {
	TakeProfit float64       `json:"take_profit"` // target multiple of entry, e.g. 2.0
	StopLoss   float64       `json:"stop_loss"`   // loss fraction of entry, e.g. 0.5
	MaxHold    time.Duration `json:"max_hold"`
}

// TakeProfitPrice returns the absolute price at which take-profit fires.
func (r ExitRules) TakeProfitPrice(entry float64) float64 {
	return entry * (1 + r.TakeProfit)
}

// StopLossPrice returns the absolute price at which stop-loss fires.
func (r ExitRules) StopLossPrice(entry float64) float64 {
	return entry * (1 - r.StopLoss)
}

// Position is an entered trade bound to the opportunity that produced it.
type Position struct {
	ID            string         `json:"id"`
	OpportunityID string         `json:"opportunity_id"`
	Key           OpportunityKey `json:"key"`
	EntryPrice    float64        `json:"entry_price"`
	Size          float64        `json:"size"` // quote currency
	OpenedAt      time.Time      `json:"opened_at"`
	Rules         ExitRules      `json:"rules"`
	Status        PositionStatus `json:"status"`

	// Populated on closure.
	ExitPrice   float64    `json:"exit_price,omitempty"`
	ExitedAt    time.Time  `json:"exited_at,omitempty"`
	Reason      ExitReason `json:"exit_reason,omitempty"`
	RealizedPnL float64    `json:"realized_pnl,omitempty"`

	// Sources that contributed to the originating opportunity, carried so
	// reliability attribution survives opportunity cleanup.
	Sources []string `json:"sources,omitempty"`
}

// PnLAt returns the unrealized profit/loss in quote currency at price.
func (p *Position) PnLAt(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return p.Size * (price - p.EntryPrice) / p.EntryPrice
}

// Won reports whether the closed position realized a profit.
func (p *Position) Won() bool { return p.RealizedPnL > 0 }
