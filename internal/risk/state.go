package risk

import "time"

// exposure is one position's contribution to portfolio risk.
type exposure struct {
	symbol string
	size   float64
}

// State is the process-wide risk state. It is owned by the Manager and only
// mutated under the Manager's lock; nothing else holds a reference to its
// internals.
type State struct {
	dayStart    time.Time
	realizedPnL float64 // today's realized PnL, negative when losing

	// open is keyed by position ID. pending holds approved entries whose
	// fill has not confirmed yet, keyed by opportunity ID; both count
	// against the concurrency and exposure gates so two in-flight entries
	// can never jointly exceed the ceiling.
	open    map[string]exposure
	pending map[string]exposure

	breakerTripped bool
	breakerSince   time.Time
}

// NewState creates a fresh risk state anchored at the current UTC day.
func NewState(now time.Time) *State {
	return &State{
		dayStart: dayStartUTC(now),
		open:     make(map[string]exposure),
		pending:  make(map[string]exposure),
	}
}

func dayStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *State) openCount() int { return len(s.open) + len(s.pending) }

func (s *State) totalExposure() float64 {
	var sum float64
	for _, e := range s.open {
		sum += e.size
	}
	for _, e := range s.pending {
		sum += e.size
	}
	return sum
}

// correlated reports whether an open or reserved position shares the symbol
// family.
func (s *State) correlated(symbol string) bool {
	fam := symbolFamily(symbol)
	for _, e := range s.open {
		if symbolFamily(e.symbol) == fam {
			return true
		}
	}
	for _, e := range s.pending {
		if symbolFamily(e.symbol) == fam {
			return true
		}
	}
	return false
}

// symbolFamily reduces a pair like "ABC/USDT" or "ABC-USDT" to its base
// asset, the unit correlation is judged on.
func symbolFamily(symbol string) string {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' || symbol[i] == '-' {
			return symbol[:i]
		}
	}
	return symbol
}

// Metrics is a read-only view of the risk state for the ops surface.
type Metrics struct {
	OpenPositions  int       `json:"open_positions"`
	TotalExposure  float64   `json:"total_exposure"`
	DailyPnL       float64   `json:"daily_pnl"`
	BreakerTripped bool      `json:"breaker_tripped"`
	BreakerSince   time.Time `json:"breaker_since,omitempty"`
	DayStart       time.Time `json:"day_start"`
}
