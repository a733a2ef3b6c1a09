package strategy

import (
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"

	"metahft/internal/ticks"
)

const (
	ReasonProfitLock = "profit_lock"
	ReasonReversal   = "dynamic_exit_reversal"
	ReasonStopLoss   = "stop_loss"
	ReasonTrailing   = "trailing_stop"
	ReasonTakeProfit = "take_profit"
	ReasonTimeStop   = "time_stop"
)

// ProfitLock tracks the best price seen while a position is in profit and
// signals an exit once price turns back from it. Losses never trigger it.
type ProfitLock struct {
	Activation float64
	Reversal   float64

	best   float64
	active bool
}

// Reset forgets the tracked extremum. Call it on every open and close.
func (p *ProfitLock) Reset() {
	p.best, p.active = 0, false
}

// Best returns the tracked extremum, if tracking has started.
func (p *ProfitLock) Best() (float64, bool) {
	return p.best, p.active
}

// Update feeds one observation and reports whether to exit.
func (p *ProfitLock) Update(position int64, pnlTicks, price, tick float64) bool {
	if position == 0 || tick <= 0 {
		return false
	}
	if pnlTicks <= 0 || pnlTicks < p.Activation {
		return false
	}
	if !p.active {
		p.best, p.active = price, true
		return false
	}
	if (position > 0 && price > p.best) || (position < 0 && price < p.best) {
		p.best = price
		return false
	}
	reversal := (p.best - price) / tick
	if position < 0 {
		reversal = -reversal
	}
	return reversal >= p.Reversal
}

// LegacyExit is the fixed-threshold mode: stop loss, then an activatable
// trailing stop, then take profit. A zero threshold disables its rule.
type LegacyExit struct {
	StopLoss        float64
	TrailActivation float64
	TrailDistance   float64
	TakeProfit      float64

	trailing bool
	extreme  float64
}

// Reset clears the trailing state.
func (l *LegacyExit) Reset() {
	l.trailing, l.extreme = false, 0
}

// Update returns the exit reason, or "" to keep holding.
func (l *LegacyExit) Update(position int64, pnlTicks, price, tick float64) string {
	if position == 0 || tick <= 0 {
		return ""
	}
	if l.StopLoss > 0 && pnlTicks <= -l.StopLoss {
		return ReasonStopLoss
	}
	if l.TrailDistance > 0 {
		if !l.trailing && pnlTicks >= l.TrailActivation {
			l.trailing, l.extreme = true, price
		}
		if l.trailing {
			if (position > 0 && price > l.extreme) || (position < 0 && price < l.extreme) {
				l.extreme = price
			}
			pullback := (l.extreme - price) / tick
			if position < 0 {
				pullback = -pullback
			}
			if pullback >= l.TrailDistance {
				return ReasonTrailing
			}
			return ""
		}
	}
	if l.TakeProfit > 0 && pnlTicks >= l.TakeProfit {
		return ReasonTakeProfit
	}
	return ""
}

// ExitConfig selects and parameterizes the exit mode of a strategy.
type ExitConfig struct {
	Dynamic              bool          `yaml:"dynamic"`
	ActivationTicks      float64       `yaml:"activation_ticks"`
	ReversalTicks        float64       `yaml:"reversal_ticks"`
	StopLossTicks        float64       `yaml:"stop_loss_ticks"`
	TrailActivationTicks float64       `yaml:"trail_activation_ticks"`
	TrailDistanceTicks   float64       `yaml:"trail_distance_ticks"`
	TakeProfitTicks      float64       `yaml:"take_profit_ticks"`
	TimeStop             time.Duration `yaml:"time_stop"`
	LegacyTimeStop       time.Duration `yaml:"legacy_time_stop"`
	Reason               string        `yaml:"reason"`
}

// Validate rejects negative thresholds.
func (c ExitConfig) Validate() error {
	var err error
	for name, v := range map[string]float64{
		"activation_ticks":       c.ActivationTicks,
		"reversal_ticks":         c.ReversalTicks,
		"stop_loss_ticks":        c.StopLossTicks,
		"trail_activation_ticks": c.TrailActivationTicks,
		"trail_distance_ticks":   c.TrailDistanceTicks,
		"take_profit_ticks":      c.TakeProfitTicks,
	} {
		if v < 0 {
			err = multierr.Append(err, errors.Errorf("exit %s must be >= 0", name))
		}
	}
	if c.TimeStop < 0 || c.LegacyTimeStop < 0 {
		err = multierr.Append(err, errors.New("exit time stops must be >= 0"))
	}
	return err
}

// exitPolicy combines the dynamic or legacy mode with the time stop.
type exitPolicy struct {
	cfg    ExitConfig
	lock   ProfitLock
	legacy LegacyExit
}

func newExitPolicy(cfg ExitConfig) *exitPolicy {
	if cfg.Reason == "" {
		cfg.Reason = ReasonProfitLock
	}
	return &exitPolicy{
		cfg:  cfg,
		lock: ProfitLock{Activation: cfg.ActivationTicks, Reversal: cfg.ReversalTicks},
		legacy: LegacyExit{
			StopLoss:        cfg.StopLossTicks,
			TrailActivation: cfg.TrailActivationTicks,
			TrailDistance:   cfg.TrailDistanceTicks,
			TakeProfit:      cfg.TakeProfitTicks,
		},
	}
}

func (e *exitPolicy) Reset() {
	e.lock.Reset()
	e.legacy.Reset()
}

// Check returns the exit reason for pos at price, or "".
func (e *exitPolicy) Check(pos Position, price, tick float64, now time.Time) string {
	if pos.Qty == 0 {
		return ""
	}
	pnl := ticks.Signed(pos.Qty, pos.Avg, price, tick)

	reason := ""
	if e.cfg.Dynamic {
		if e.lock.Update(pos.Qty, pnl, price, tick) {
			reason = e.cfg.Reason
		}
	} else {
		reason = e.legacy.Update(pos.Qty, pnl, price, tick)
		if reason == "" && heldFor(pos, now, e.cfg.LegacyTimeStop) {
			reason = ReasonTimeStop
		}
	}
	if reason == "" && heldFor(pos, now, e.cfg.TimeStop) {
		reason = ReasonTimeStop
	}
	return reason
}

func heldFor(pos Position, now time.Time, d time.Duration) bool {
	return d > 0 && !pos.EntryTime.IsZero() && now.Sub(pos.EntryTime) >= d
}
