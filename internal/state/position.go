package state

import (
	"sort"

	"metahft/internal/schema"
)

// PositionReducer keeps the net position per strategy from routed fills.
type PositionReducer struct {
	positions map[schema.StrategyType]int64
	fills     map[schema.StrategyType]int64
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{
		positions: make(map[schema.StrategyType]int64),
		fills:     make(map[schema.StrategyType]int64),
	}
}

// ApplyFill updates the position and returns the new quantity.
func (r *PositionReducer) ApplyFill(fill schema.Fill) int64 {
	current := r.positions[fill.Strategy]
	next := current + fill.Side.Sign()*fill.Qty
	r.positions[fill.Strategy] = next
	r.fills[fill.Strategy]++
	return next
}

// Position returns the current position of one strategy.
func (r *PositionReducer) Position(st schema.StrategyType) int64 {
	return r.positions[st]
}

// Count returns the number of tracked strategies.
func (r *PositionReducer) Count() int {
	return len(r.positions)
}

// Entries lists every tracked strategy in enum order.
func (r *PositionReducer) Entries() []PositionEntry {
	entries := make([]PositionEntry, 0, len(r.positions))
	for st, qty := range r.positions {
		entries = append(entries, PositionEntry{
			Strategy: st.String(),
			Qty:      qty,
			Fills:    r.fills[st],
			kind:     st,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].kind < entries[j].kind
	})
	return entries
}
