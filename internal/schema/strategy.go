package schema

import (
	"strings"

	"github.com/yanun0323/errors"
)

// StrategyType tags every order and fill with the strategy that originated it.
type StrategyType uint16

const (
	StrategyUnknown StrategyType = iota
	StrategyMarketMaking
	StrategyLiquidityTaker
	StrategyOrderFlow
	StrategyMicroGrid
	StrategyShortMomentum
	StrategyTapeReading
	StrategyDualEngine
)

var ensemble = [...]StrategyType{
	StrategyMarketMaking,
	StrategyLiquidityTaker,
	StrategyOrderFlow,
	StrategyMicroGrid,
	StrategyShortMomentum,
	StrategyTapeReading,
}

// Ensemble returns the six strategies arbitrated by the allocator, in a stable order.
func Ensemble() []StrategyType {
	out := make([]StrategyType, len(ensemble))
	copy(out, ensemble[:])
	return out
}

// IsEnsemble reports whether the type is one of the allocator-managed strategies.
func (t StrategyType) IsEnsemble() bool {
	return t >= StrategyMarketMaking && t <= StrategyTapeReading
}

func (t StrategyType) String() string {
	switch t {
	case StrategyMarketMaking:
		return "market_making"
	case StrategyLiquidityTaker:
		return "liquidity_taker"
	case StrategyOrderFlow:
		return "order_flow"
	case StrategyMicroGrid:
		return "micro_grid"
	case StrategyShortMomentum:
		return "short_momentum"
	case StrategyTapeReading:
		return "tape_reading"
	case StrategyDualEngine:
		return "dual_engine"
	default:
		return "unknown"
	}
}

// ParseStrategyType resolves the snake_case name produced by String.
func ParseStrategyType(s string) (StrategyType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t := StrategyMarketMaking; t <= StrategyDualEngine; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return StrategyUnknown, errors.Errorf("unknown strategy type %q", s)
}
