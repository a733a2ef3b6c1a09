// Package dualengine is a long-only strategy pairing a trend-held core position
// with a percentage grid, exiting only in profit.
package dualengine

import (
	"fmt"
	"math"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"metahft/internal/schema"
	"metahft/internal/strategy"
)

const prefix = "[DualEngine]"

// Signal is one order intent produced by Evaluate.
type Signal struct {
	Side   schema.OrderSide
	Price  float64
	Qty    int64
	Reason string
}

// Status is a point-in-time view for reporting.
type Status struct {
	DataPoints int     `json:"data_points"`
	EMAFast    float64 `json:"ema_fast"`
	EMASlow    float64 `json:"ema_slow"`
	ATR        float64 `json:"atr"`
	RSI        float64 `json:"rsi"`
	TrendUp    bool    `json:"trend_up"`
	Score      float64 `json:"score"`
	Position   int64   `json:"position"`
	AvgCost    float64 `json:"avg_cost"`
	GridCenter float64 `json:"grid_center"`
}

// Engine runs standalone: it sends straight to the gateway without allocator approval.
type Engine struct {
	cfg     Config
	gateway strategy.Gateway

	prices  []float64
	ind     Indicators
	trendUp bool
	score   float64
	center  float64

	position  int64
	avgCost   float64
	buyAmount float64
	buyVolume int64
	lastTrade time.Time

	lock   strategy.ProfitLock
	legacy strategy.LegacyExit

	// working is the single order in flight. It is released once its
	// shares are booked, or when the venue cancels or rejects it.
	working     string
	workingLeft int64
}

func New(cfg Config, gw strategy.Gateway) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate dual engine config")
	}
	return &Engine{
		cfg:     cfg,
		gateway: gw,
		prices:  make([]float64, 0, cfg.window()),
		lock:    strategy.ProfitLock{Activation: cfg.ActivationTicks, Reversal: cfg.ReversalTicks},
		legacy: strategy.LegacyExit{
			TrailActivation: cfg.TrailActivationTicks,
			TrailDistance:   cfg.TrailDistanceTicks,
		},
	}, nil
}

func (e *Engine) Type() schema.StrategyType {
	return schema.StrategyDualEngine
}

func (e *Engine) Status() Status {
	return Status{
		DataPoints: len(e.prices),
		EMAFast:    e.ind.EMAFast,
		EMASlow:    e.ind.EMASlow,
		ATR:        e.ind.ATR,
		RSI:        e.ind.RSI,
		TrendUp:    e.trendUp,
		Score:      e.score,
		Position:   e.position,
		AvgCost:    e.avgCost,
		GridCenter: e.center,
	}
}

// Update records the snapshot price and refreshes the indicators once enough data exists.
func (e *Engine) Update(s *schema.MarketSnapshot) {
	if s.LastPrice <= 0 {
		return
	}
	if len(e.prices) == e.cfg.window() {
		e.prices = append(e.prices[:0], e.prices[1:]...)
	}
	e.prices = append(e.prices, s.LastPrice)
	if len(e.prices) < e.cfg.minData() {
		return
	}
	e.ind = computeIndicators(e.prices, e.cfg)
	e.trendUp, e.score = trendScore(s.LastPrice, e.ind)
}

// Evaluate returns the next intent, checking exits first, then the core position, then the grid.
func (e *Engine) Evaluate(s *schema.MarketSnapshot) *Signal {
	if len(e.prices) < e.cfg.minData() || s.LastPrice <= 0 {
		return nil
	}
	if sig := e.exitSignal(s.LastPrice); sig != nil {
		return sig
	}
	if !e.trendUp {
		return nil
	}
	if sig := e.coreSignal(s.LastPrice, s.Timestamp); sig != nil {
		return sig
	}
	return e.gridSignal(s.LastPrice)
}

func (e *Engine) OnBoard(s *schema.MarketSnapshot) {
	if s == nil || s.Symbol != e.cfg.Symbol {
		return
	}
	e.Update(s)
	sig := e.Evaluate(s)
	if sig == nil || e.working != "" {
		return
	}
	logs.Infof("%s %s %d@%.2f (%s)", prefix, sig.Side, sig.Qty, sig.Price, sig.Reason)
	id, ok := e.gateway.SendOrder(schema.OrderRequest{
		Symbol:   e.cfg.Symbol,
		Side:     sig.Side,
		Type:     schema.OrderTypeLimit,
		Price:    sig.Price,
		Qty:      sig.Qty,
		Strategy: schema.StrategyDualEngine,
	})
	if !ok {
		logs.Warnf("%s order not placed (%s)", prefix, sig.Reason)
		return
	}
	e.working, e.workingLeft = id, sig.Qty
}

func (e *Engine) exitSignal(price float64) *Signal {
	if e.position <= 0 || e.avgCost <= 0 {
		return nil
	}
	pnl := (price - e.avgCost) / e.cfg.PriceTick

	reason := ""
	if e.cfg.DynamicExit {
		if e.lock.Update(e.position, pnl, price, e.cfg.PriceTick) {
			reason = strategy.ReasonReversal
		}
	} else {
		e.legacy.TakeProfit = e.cfg.ProfitTakePct / 100 * e.avgCost / e.cfg.PriceTick
		reason = e.legacy.Update(e.position, pnl, price, e.cfg.PriceTick)
	}
	if reason == "" {
		return nil
	}
	return &Signal{Side: schema.OrderSideSell, Price: price, Qty: e.position, Reason: reason}
}

func (e *Engine) coreSignal(price float64, now time.Time) *Signal {
	target := min(e.cfg.CorePosition, e.cfg.MaxPosition)
	if e.position >= target {
		return nil
	}
	if !e.lastTrade.IsZero() && now.Sub(e.lastTrade) < e.cfg.CoreInterval {
		return nil
	}
	return &Signal{Side: schema.OrderSideBuy, Price: price, Qty: target - e.position, Reason: "core_position"}
}

func (e *Engine) gridSignal(price float64) *Signal {
	if e.cfg.GridLevels <= 0 || e.cfg.GridVolume <= 0 {
		return nil
	}
	step := e.cfg.GridStepPct / 100

	if e.center <= 0 {
		e.center = price
		logs.Infof("%s grid center %.2f", prefix, price)
	}
	if math.Abs(price-e.center)/e.center >= 2*step {
		logs.Infof("%s grid recenter %.2f -> %.2f", prefix, e.center, price)
		e.center = price
	}
	c := e.center

	if price < c {
		if e.cfg.MaxPosition-e.position < e.cfg.GridVolume {
			return nil
		}
		idx := int((c-price)/(c*step)) + 1
		level := c * (1 - step*float64(idx))
		if math.Abs(price-level)/price > step/2 {
			return nil
		}
		return &Signal{Side: schema.OrderSideBuy, Price: price, Qty: e.cfg.GridVolume, Reason: fmt.Sprintf("grid_buy_L%d", idx)}
	}

	if e.position < e.cfg.GridVolume {
		return nil
	}
	if floor := e.cfg.minSellPrice(e.avgCost); floor > 0 && price < floor {
		return nil
	}
	idx := int((price-c)/(c*step)) + 1
	level := c * (1 + step*float64(idx))
	if math.Abs(price-level)/price > step/2 {
		return nil
	}
	return &Signal{Side: schema.OrderSideSell, Price: price, Qty: e.cfg.GridVolume, Reason: fmt.Sprintf("grid_sell_L%d", idx)}
}

func (e *Engine) OnFill(f schema.Fill) {
	if f.Strategy != schema.StrategyDualEngine || f.Symbol != e.cfg.Symbol || f.Qty <= 0 {
		return
	}
	if f.OrderID != "" && f.OrderID == e.working {
		e.workingLeft -= f.Qty
		if e.workingLeft <= 0 {
			e.working, e.workingLeft = "", 0
		}
	}
	switch f.Side {
	case schema.OrderSideBuy:
		e.buyAmount += f.Price * float64(f.Qty)
		e.buyVolume += f.Qty
		e.position += f.Qty
		e.avgCost = e.buyAmount / float64(e.buyVolume)
		e.resetExit()
	case schema.OrderSideSell:
		if e.buyVolume <= 0 || e.avgCost <= 0 {
			logs.Warnf("%s sell fill without cost basis, avg %.2f volume %d", prefix, e.avgCost, e.buyVolume)
			return
		}
		e.buyAmount = math.Max(0, e.buyAmount-e.avgCost*float64(f.Qty))
		e.buyVolume = max(0, e.buyVolume-f.Qty)
		e.position = max(0, e.position-f.Qty)
		if e.buyVolume > 0 {
			e.avgCost = e.buyAmount / float64(e.buyVolume)
		} else {
			e.avgCost, e.buyAmount = 0, 0
		}
		if e.position == 0 {
			e.resetExit()
		}
	}
	e.lastTrade = f.Timestamp
}

func (e *Engine) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != e.cfg.Symbol || u.OrderID != e.working {
		return
	}
	switch u.Status {
	case schema.OrderStatusCancelled, schema.OrderStatusRejected:
		e.working, e.workingLeft = "", 0
	case schema.OrderStatusFilled:
		logs.Debugf("%s order %s filled, waiting for %d shares to book", prefix, u.OrderID, e.workingLeft)
	}
}

func (e *Engine) resetExit() {
	e.lock.Reset()
	e.legacy.Reset()
}
