package allocator

// Status is a read-only report of the allocator book.
type Status struct {
	TotalPosition      int64            `json:"total_position"`
	TotalRealizedPnL   float64          `json:"total_realized_pnl"`
	TotalUnrealizedPnL float64          `json:"total_unrealized_pnl"`
	DailyPnL           float64          `json:"daily_pnl"`
	PositionReduced    bool             `json:"position_reduced"`
	TradeCount         int64            `json:"trade_count"`
	Strategies         []StrategyStatus `json:"strategies"`
}

// StrategyStatus is the per-strategy part of Status.
type StrategyStatus struct {
	Strategy      string  `json:"strategy"`
	Enabled       bool    `json:"enabled"`
	Position      int64   `json:"position"`
	Weight        float64 `json:"weight"`
	MaxPosition   int64   `json:"max_position"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	WinRate       float64 `json:"win_rate"`
	TradeCount    int64   `json:"trade_count"`
}

// Status has no side effects.
func (a *Allocator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Status{
		TotalPosition:      a.totalPosition,
		TotalRealizedPnL:   a.totalRealizedPnL,
		TotalUnrealizedPnL: a.totalUnrealizedPnL,
		DailyPnL:           a.dailyPnL,
		PositionReduced:    a.positionReduced,
		TradeCount:         a.tradeCount,
		Strategies:         make([]StrategyStatus, 0, len(a.order)),
	}
	for _, st := range a.order {
		s := a.states[st]
		winRate := 0.0
		if s.TradeCount > 0 {
			winRate = float64(s.WinCount) / float64(s.TradeCount)
		}
		out.Strategies = append(out.Strategies, StrategyStatus{
			Strategy:      st.String(),
			Enabled:       s.Enabled,
			Position:      s.Position,
			Weight:        s.Weight,
			MaxPosition:   s.MaxPosition,
			RealizedPnL:   s.RealizedPnL,
			UnrealizedPnL: s.UnrealizedPnL,
			WinRate:       winRate,
			TradeCount:    s.TradeCount,
		})
	}
	return out
}
