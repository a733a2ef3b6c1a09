package allocator

import "fmt"

// Reason classifies allocator decisions.
type Reason uint16

const (
	ReasonNone Reason = iota
	ReasonDisabled
	ReasonStrategyLoss
	ReasonDailyLoss
	ReasonStrategyMaxed
	ReasonStrategyLimit
	ReasonTotalLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonDisabled:
		return "disabled"
	case ReasonStrategyLoss:
		return "strategy_loss_limit"
	case ReasonDailyLoss:
		return "daily_loss_limit"
	case ReasonStrategyMaxed:
		return "strategy_at_limit"
	case ReasonStrategyLimit:
		return "strategy_limit"
	case ReasonTotalLimit:
		return "total_limit"
	default:
		return "unknown"
	}
}

// Decision is the allocator's answer to a signal. A rejection is a value, not an error.
type Decision struct {
	Allowed bool
	Code    Reason
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true, Code: ReasonNone, Reason: "OK"}
}

func reject(code Reason, format string, args ...any) Decision {
	return Decision{Code: code, Reason: fmt.Sprintf(format, args...)}
}
