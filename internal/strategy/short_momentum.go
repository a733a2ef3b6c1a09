package strategy

import (
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"

	"metahft/internal/schema"
)

type ShortMomentumConfig struct {
	Common `yaml:",inline"`

	Exit ExitConfig `yaml:"exit"`

	BarPeriod      time.Duration `yaml:"bar_period"`
	MinBars        int           `yaml:"min_bars"`
	FastEMA        int           `yaml:"fast_ema"`
	SlowEMA        int           `yaml:"slow_ema"`
	EMACrossTicks  float64       `yaml:"ema_cross_ticks"`
	VWAPWindow     time.Duration `yaml:"vwap_window"`
	VWAPDeviation  float64       `yaml:"vwap_deviation"`
	MomentumTicks  float64       `yaml:"momentum_ticks"`
	MomentumWindow time.Duration `yaml:"momentum_window"`
	Cooldown       time.Duration `yaml:"cooldown"`
}

func DefaultShortMomentumConfig(symbol string) ShortMomentumConfig {
	c := ShortMomentumConfig{
		Common:         defaultCommon(symbol),
		BarPeriod:      3 * time.Second,
		MinBars:        10,
		FastEMA:        3,
		SlowEMA:        8,
		EMACrossTicks:  0.5,
		VWAPWindow:     10 * time.Second,
		VWAPDeviation:  0.0015,
		MomentumTicks:  2,
		MomentumWindow: 5 * time.Second,
		Cooldown:       2 * time.Second,
	}
	c.Exit = ExitConfig{
		Dynamic:         true,
		ActivationTicks: 1.0,
		ReversalTicks:   0,
		TakeProfitTicks: 5,
		StopLossTicks:   10,
		TimeStop:        30 * time.Second,
		Reason:          ReasonProfitLock,
	}
	return c
}

func (c ShortMomentumConfig) Validate() error {
	err := multierr.Append(c.validate(), c.Exit.Validate())
	if c.BarPeriod <= 0 || c.VWAPWindow <= 0 {
		err = multierr.Append(err, errors.New("bar_period and vwap_window must be > 0"))
	}
	if c.FastEMA <= 0 || c.SlowEMA < c.FastEMA {
		err = multierr.Append(err, errors.Errorf("invalid ema periods fast %d slow %d", c.FastEMA, c.SlowEMA))
	}
	if c.MinBars < c.SlowEMA {
		err = multierr.Append(err, errors.New("min_bars must be >= slow_ema"))
	}
	return err
}

// Bar is one fixed-period OHLC bar keyed by its start time.
type Bar struct {
	Start time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

type trade struct {
	price  float64
	volume int64
}

// ShortMomentum follows a short EMA cross confirmed by micro-VWAP deviation and bar momentum.
type ShortMomentum struct {
	base

	cfg     ShortMomentumConfig
	trades  *window[trade]
	bars    []Bar
	current *Bar
	fast    float64
	slow    float64
	cool    cooldown
}

func NewShortMomentum(cfg ShortMomentumConfig, gw Gateway, approver Approver) (*ShortMomentum, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate short momentum config")
	}
	return &ShortMomentum{
		base:   newBase(schema.StrategyShortMomentum, "[MOMENTUM]", cfg.Symbol, cfg.TickSize, cfg.Exit, gw, approver),
		cfg:    cfg,
		trades: newWindow[trade](cfg.VWAPWindow),
		cool:   cooldown{interval: cfg.Cooldown},
	}, nil
}

// EMAs returns the fast and slow EMA, zero until enough bars exist.
func (m *ShortMomentum) EMAs() (fast, slow float64) {
	return m.fast, m.slow
}

func (m *ShortMomentum) Bars() []Bar {
	out := make([]Bar, len(m.bars))
	copy(out, m.bars)
	return out
}

func (m *ShortMomentum) OnBoard(s *schema.MarketSnapshot) {
	if !m.accepts(s) || s.LastPrice <= 0 {
		return
	}

	m.trades.Push(s.Timestamp, trade{price: s.LastPrice, volume: s.TradingVolume})
	m.updateBar(s.Timestamp, s.LastPrice)
	m.updateEMAs()

	if m.pos.Flat() {
		m.checkEntry(s)
	}
	if s.HasQuotes() {
		m.checkExit(s, s.LastPrice, m.exitPrice(s, 0))
	}
}

func (m *ShortMomentum) updateBar(now time.Time, price float64) {
	if m.current == nil {
		m.current = &Bar{Start: now, Open: price, High: price, Low: price, Close: price}
		return
	}
	if now.Sub(m.current.Start) >= m.cfg.BarPeriod {
		m.bars = append(m.bars, *m.current)
		if len(m.bars) > 2*m.cfg.MinBars {
			m.bars = m.bars[1:]
		}
		m.current = &Bar{Start: now, Open: price, High: price, Low: price, Close: price}
		return
	}
	m.current.High = math.Max(m.current.High, price)
	m.current.Low = math.Min(m.current.Low, price)
	m.current.Close = price
}

func (m *ShortMomentum) updateEMAs() {
	if len(m.bars) < m.cfg.SlowEMA {
		return
	}
	closes := make([]float64, len(m.bars))
	for i, b := range m.bars {
		closes[i] = b.Close
	}
	m.fast = seededEMA(closes, m.cfg.FastEMA)
	m.slow = seededEMA(closes, m.cfg.SlowEMA)
}

// seededEMA runs an EMA over the last n values, seeded with the first of them.
func seededEMA(values []float64, n int) float64 {
	if len(values) < n {
		return mean(values)
	}
	recent := values[len(values)-n:]
	k := 2 / float64(n+1)
	ema := recent[0]
	for _, v := range recent[1:] {
		ema = (v-ema)*k + ema
	}
	return ema
}

// VWAP is the volume-weighted price over the trade window, 0 without volume.
func (m *ShortMomentum) VWAP() float64 {
	var pv float64
	var vol int64
	for _, t := range m.trades.Values() {
		pv += t.price * float64(t.volume)
		vol += t.volume
	}
	if vol == 0 {
		return 0
	}
	return pv / float64(vol)
}

// momentum is the close-to-close move, in ticks, across bars started within the
// momentum window. The bar in progress counts as the newest bar.
func (m *ShortMomentum) momentum(now time.Time, tick float64) float64 {
	cutoff := now.Add(-m.cfg.MomentumWindow)
	var recent []Bar
	for _, b := range m.bars {
		if !b.Start.Before(cutoff) {
			recent = append(recent, b)
		}
	}
	if m.current != nil && !m.current.Start.Before(cutoff) {
		recent = append(recent, *m.current)
	}
	if len(recent) < 2 {
		return 0
	}
	return (recent[len(recent)-1].Close - recent[0].Close) / tick
}

func (m *ShortMomentum) checkEntry(s *schema.MarketSnapshot) {
	if m.fast == 0 || m.slow == 0 || !s.HasQuotes() || !m.cool.Ready(s.Timestamp) {
		return
	}
	vwap := m.VWAP()
	if vwap == 0 {
		return
	}

	tick := m.tickAt(s.LastPrice)
	cross := (m.fast - m.slow) / tick
	dev := (s.LastPrice - vwap) / vwap
	mom := m.momentum(s.Timestamp, tick)

	switch {
	case cross >= m.cfg.EMACrossTicks && dev >= m.cfg.VWAPDeviation && mom >= m.cfg.MomentumTicks:
		m.enter(schema.OrderSideBuy, s.BestAsk, s.Timestamp, "momentum_long")
	case cross <= -m.cfg.EMACrossTicks && dev <= -m.cfg.VWAPDeviation && mom <= -m.cfg.MomentumTicks:
		m.enter(schema.OrderSideSell, s.BestBid, s.Timestamp, "momentum_short")
	}
}

func (m *ShortMomentum) enter(side schema.OrderSide, price float64, now time.Time, reason string) {
	if absInt64(m.pos.Qty) >= m.cfg.MaxPosition {
		return
	}
	if _, ok := m.submit(side, price, m.cfg.LotSize, reason); ok {
		m.cool.Mark(now)
	}
}

func (m *ShortMomentum) OnFill(f schema.Fill) {
	if !m.owns(f) {
		return
	}
	m.applyFill(f)
}

func (m *ShortMomentum) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != m.symbol {
		return
	}
	m.releaseExit(u)
}
