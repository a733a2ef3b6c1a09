// Package allocator is the meta-strategy risk ledger. Every order intent of the
// ensemble is checked here and every fill is booked here.
package allocator

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"metahft/internal/schema"
)

// Observer receives allocator events. Implementations must not call back into the allocator.
type Observer interface {
	ObserveDecision(sig Signal, d Decision)
	ObserveClose(st schema.StrategyType, pnl float64)
}

// Signal is a proposed order as seen by the allocator.
type Signal struct {
	Strategy schema.StrategyType
	Side     schema.OrderSide
	Price    float64
	Qty      int64
	Reason   string
}

// StrategyState is the allocator's book for one strategy.
type StrategyState struct {
	Type          schema.StrategyType
	Enabled       bool
	Position      int64
	AvgPrice      float64
	RealizedPnL   float64
	UnrealizedPnL float64
	Weight        float64
	MaxPosition   int64
	TradeCount    int64
	WinCount      int64
	TotalProfit   float64
	TotalLoss     float64
	RecentPnLs    []float64
}

// Allocator serializes all reads and writes of the strategy table behind one mutex.
type Allocator struct {
	mu  sync.Mutex
	cfg Config

	states map[schema.StrategyType]*StrategyState
	order  []schema.StrategyType

	totalPosition      int64
	totalRealizedPnL   float64
	totalUnrealizedPnL float64
	tradeCount         int64
	dailyPnL           float64
	positionReduced    bool
	tradeDate          string

	observer Observer
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithObserver attaches an observer for decisions and realized trades.
func WithObserver(o Observer) Option {
	return func(a *Allocator) {
		a.observer = o
	}
}

// New builds the allocator. An invalid config is a startup error.
func New(cfg Config, opts ...Option) (*Allocator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	weights, err := cfg.resolveWeights()
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		cfg:    cfg,
		states: make(map[schema.StrategyType]*StrategyState, len(weights)),
		order:  schema.Ensemble(),
	}
	for _, st := range a.order {
		a.states[st] = &StrategyState{
			Type:        st,
			Enabled:     true,
			Weight:      weights[st],
			MaxPosition: cfg.MinPosition,
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	a.updatePositionLimits()
	return a, nil
}

// Config returns the resolved configuration.
func (a *Allocator) Config() Config {
	return a.cfg
}

func (a *Allocator) mustState(st schema.StrategyType) *StrategyState {
	s, ok := a.states[st]
	if !ok {
		panic(fmt.Sprintf("allocator: unknown strategy type %d (%s)", st, st))
	}
	return s
}

// CanExecuteSignal decides whether the strategy may send an order of qty on side.
// It never mutates state.
func (a *Allocator) CanExecuteSignal(st schema.StrategyType, side schema.OrderSide, qty int64) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canExecute(st, side, qty)
}

func (a *Allocator) canExecute(st schema.StrategyType, side schema.OrderSide, qty int64) Decision {
	s := a.mustState(st)

	if !s.Enabled {
		return reject(ReasonDisabled, "%s disabled", st)
	}
	if s.RealizedPnL <= -a.cfg.StrategyLossLimit {
		return reject(ReasonStrategyLoss, "%s realized pnl %.0f reached loss limit %.0f", st, s.RealizedPnL, a.cfg.StrategyLossLimit)
	}
	if a.dailyPnL <= -a.cfg.DailyLossLimit {
		return reject(ReasonDailyLoss, "daily pnl %.0f reached loss limit %.0f", a.dailyPnL, a.cfg.DailyLossLimit)
	}

	if absInt64(s.Position) >= s.MaxPosition && side != schema.Closing(s.Position) {
		return reject(ReasonStrategyMaxed, "%s position %d at limit %d, closing only", st, s.Position, s.MaxPosition)
	}

	delta := side.Sign() * qty
	next := s.Position + delta
	if absInt64(next) > s.MaxPosition && absInt64(next) >= absInt64(s.Position) {
		return reject(ReasonStrategyLimit, "%s new position %d exceeds limit %d", st, absInt64(next), s.MaxPosition)
	}

	nextTotal := a.totalPosition + delta
	if absInt64(nextTotal) > a.cfg.MaxTotalPosition && absInt64(nextTotal) >= absInt64(a.totalPosition) {
		return reject(ReasonTotalLimit, "total position %d exceeds limit %d", absInt64(nextTotal), a.cfg.MaxTotalPosition)
	}

	return allow()
}

// OnSignal runs CanExecuteSignal and logs the outcome.
func (a *Allocator) OnSignal(st schema.StrategyType, side schema.OrderSide, price float64, qty int64, reason string) Decision {
	a.mu.Lock()
	d := a.canExecute(st, side, qty)
	observer := a.observer
	a.mu.Unlock()

	if d.Allowed {
		logs.Infof("[META] allow %s %s %d@%.1f - %s", st, side, qty, price, reason)
	} else {
		logs.Warnf("[META] reject %s %s %d@%.1f - %s", st, side, qty, price, d.Reason)
	}
	if observer != nil {
		observer.ObserveDecision(Signal{Strategy: st, Side: side, Price: price, Qty: qty, Reason: reason}, d)
	}
	return d
}

// OnFill books an execution. It is the only mutator of positions and PnL.
func (a *Allocator) OnFill(st schema.StrategyType, side schema.OrderSide, price float64, qty int64) {
	if qty <= 0 {
		return
	}

	a.mu.Lock()
	s := a.mustState(st)
	prev := s.Position
	next := prev + side.Sign()*qty

	var (
		closed bool
		pnl    float64
	)
	switch {
	case prev == 0:
		s.AvgPrice = price
	case prev > 0 && next > prev, prev < 0 && next < prev:
		s.AvgPrice = (s.AvgPrice*float64(absInt64(prev)) + price*float64(qty)) / float64(absInt64(next))
	case next == 0 || prev*next < 0:
		closed = true
		pnl = (price - s.AvgPrice) * float64(absInt64(prev)) * float64(sign(prev))
		a.realize(s, pnl)
		s.AvgPrice = 0
		if next != 0 {
			s.AvgPrice = price
		}
	}
	if next == 0 {
		s.UnrealizedPnL = 0
	}
	s.Position = next

	a.totalPosition = 0
	for _, other := range a.states {
		a.totalPosition += other.Position
	}

	// Only closing fills count, so the first rebalance happens at tradeCount == interval, never at 0.
	if closed && a.cfg.RebalanceInterval > 0 && a.tradeCount%int64(a.cfg.RebalanceInterval) == 0 {
		a.rebalance()
	}
	observer := a.observer
	a.mu.Unlock()

	if closed && observer != nil {
		observer.ObserveClose(st, pnl)
	}
}

func (a *Allocator) realize(s *StrategyState, pnl float64) {
	s.RealizedPnL += pnl
	s.RecentPnLs = append(s.RecentPnLs, pnl)
	if over := len(s.RecentPnLs) - a.cfg.PerformanceWindow; a.cfg.PerformanceWindow > 0 && over > 0 {
		s.RecentPnLs = append(s.RecentPnLs[:0], s.RecentPnLs[over:]...)
	}

	s.TradeCount++
	if pnl > 0 {
		s.WinCount++
		s.TotalProfit += pnl
	} else {
		s.TotalLoss -= pnl
	}

	a.dailyPnL += pnl
	a.totalRealizedPnL += pnl
	a.tradeCount++

	logs.Infof("[META] %s closed pnl=%.0f realized=%.0f wins=%d/%d", s.Type, pnl, s.RealizedPnL, s.WinCount, s.TradeCount)

	if s.Enabled && s.RealizedPnL <= -a.cfg.StrategyLossLimit {
		s.Enabled = false
		logs.Warnf("[META] %s disabled, realized pnl %.0f breached loss limit %.0f", s.Type, s.RealizedPnL, a.cfg.StrategyLossLimit)
	}

	if a.dailyPnL >= a.cfg.ProfitTarget && !a.positionReduced {
		a.positionReduced = true
		a.updatePositionLimits()
		logs.Infof("[META] daily pnl %.0f reached profit target, position limits reduced by %.2f", a.dailyPnL, a.cfg.ReduceRatio)
	}
}

// UpdateUnrealizedPnL marks every open position to price.
func (a *Allocator) UpdateUnrealizedPnL(price float64) {
	if price <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0.0
	for _, s := range a.states {
		if s.Position == 0 || s.AvgPrice <= 0 {
			continue
		}
		s.UnrealizedPnL = (price - s.AvgPrice) * float64(absInt64(s.Position)) * float64(sign(s.Position))
		total += s.UnrealizedPnL
	}
	a.totalUnrealizedPnL = total
}

// ResetDailyStats rolls the trading day when now falls on a new calendar date.
// It reports whether a reset happened.
func (a *Allocator) ResetDailyStats(now time.Time) bool {
	date := now.In(a.cfg.Location).Format(time.DateOnly)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tradeDate == "" {
		a.tradeDate = date
		return false
	}
	if date == a.tradeDate {
		return false
	}

	a.dailyPnL = 0
	a.positionReduced = false
	a.tradeDate = date
	for _, s := range a.states {
		s.Enabled = true
	}
	a.updatePositionLimits()
	logs.Infof("[META] new trading day %s, daily stats reset", date)
	return true
}

// State returns a copy of one strategy's book.
func (a *Allocator) State(st schema.StrategyType) StrategyState {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := *a.mustState(st)
	s.RecentPnLs = append([]float64(nil), s.RecentPnLs...)
	return s
}

// TotalPosition is the sum of every strategy position.
func (a *Allocator) TotalPosition() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalPosition
}

// DailyPnL is the realized PnL of the current trading day.
func (a *Allocator) DailyPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dailyPnL
}

// PositionReduced reports whether the profit target reduction is active.
func (a *Allocator) PositionReduced() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positionReduced
}

func (a *Allocator) updatePositionLimits() {
	for _, st := range a.order {
		s := a.states[st]
		scale := s.Weight
		if a.positionReduced {
			scale *= a.cfg.ReduceRatio
		}
		maxPos := int64(float64(a.cfg.MaxTotalPosition) * scale)
		if maxPos < a.cfg.MinPosition {
			maxPos = a.cfg.MinPosition
		}
		if maxPos < 0 {
			panic(fmt.Sprintf("allocator: negative max position %d for %s", maxPos, st))
		}
		s.MaxPosition = maxPos
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

type observers []Observer

func (o observers) ObserveDecision(sig Signal, d Decision) {
	for _, ob := range o {
		ob.ObserveDecision(sig, d)
	}
}

func (o observers) ObserveClose(st schema.StrategyType, pnl float64) {
	for _, ob := range o {
		ob.ObserveClose(st, pnl)
	}
}

// MultiObserver fans allocator events out to every non-nil observer.
func MultiObserver(list ...Observer) Observer {
	out := make(observers, 0, len(list))
	for _, ob := range list {
		if ob != nil {
			out = append(out, ob)
		}
	}
	return out
}
