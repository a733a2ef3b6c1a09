package strategy

import (
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"metahft/internal/schema"
	"metahft/internal/ticks"
)

type MarketMakingConfig struct {
	Common `yaml:",inline"`

	Exit ExitConfig `yaml:"exit"`

	MaxShortPosition   int64         `yaml:"max_short_position"`
	InventorySoftLimit int64         `yaml:"inventory_soft_limit"`
	BaseSpreadTicks    int           `yaml:"base_spread_ticks"`
	MinSpreadTicks     int           `yaml:"min_spread_ticks"`
	MaxSpreadTicks     int           `yaml:"max_spread_ticks"`
	VolWindow          time.Duration `yaml:"vol_window"`
	VolToSpread        float64       `yaml:"vol_to_spread"`
	SkewTicks          float64       `yaml:"skew_ticks"`
	QuoteRefresh       time.Duration `yaml:"quote_refresh"`
	RequoteTicks       float64       `yaml:"requote_ticks"`
}

func DefaultMarketMakingConfig(symbol string) MarketMakingConfig {
	c := MarketMakingConfig{
		Common:             defaultCommon(symbol),
		MaxShortPosition:   0,
		InventorySoftLimit: 100,
		BaseSpreadTicks:    2,
		MinSpreadTicks:     1,
		MaxSpreadTicks:     6,
		VolWindow:          10 * time.Second,
		VolToSpread:        0.5,
		SkewTicks:          1.0,
		QuoteRefresh:       500 * time.Millisecond,
		RequoteTicks:       1,
	}
	c.Exit = ExitConfig{
		Dynamic:              true,
		StopLossTicks:        100,
		TrailActivationTicks: 3,
		TrailDistanceTicks:   2,
		TakeProfitTicks:      2,
		Reason:               ReasonProfitLock,
	}
	return c
}

func (c MarketMakingConfig) Validate() error {
	err := multierr.Append(c.validate(), c.Exit.Validate())
	if c.MaxShortPosition < 0 {
		err = multierr.Append(err, errors.New("max_short_position must be >= 0"))
	}
	if c.MinSpreadTicks <= 0 || c.MaxSpreadTicks < c.MinSpreadTicks {
		err = multierr.Append(err, errors.Errorf("invalid spread bounds [%d, %d]", c.MinSpreadTicks, c.MaxSpreadTicks))
	}
	if c.VolWindow <= 0 {
		err = multierr.Append(err, errors.New("vol_window must be > 0"))
	}
	return err
}

type quote struct {
	id    string
	price float64
}

// MarketMaking quotes both sides around an inventory-skewed mid and widens with volatility.
type MarketMaking struct {
	base

	cfg       MarketMakingConfig
	prices    *window[float64]
	bid       quote
	ask       quote
	lastQuote time.Time
}

func NewMarketMaking(cfg MarketMakingConfig, gw Gateway, approver Approver) (*MarketMaking, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate market making config")
	}
	return &MarketMaking{
		base:   newBase(schema.StrategyMarketMaking, "[MM]", cfg.Symbol, cfg.TickSize, cfg.Exit, gw, approver),
		cfg:    cfg,
		prices: newWindow[float64](cfg.VolWindow),
	}, nil
}

// Quotes returns the working bid and ask prices, 0 when a side is not quoted.
func (m *MarketMaking) Quotes() (bid, ask float64) {
	return m.bid.price, m.ask.price
}

func (m *MarketMaking) OnBoard(s *schema.MarketSnapshot) {
	if !m.accepts(s) {
		return
	}
	if s.LastPrice > 0 {
		m.prices.Push(s.Timestamp, s.LastPrice)
	}
	m.checkExit(s, s.LastPrice, m.exitPrice(s, 0))
	m.updateQuotes(s)
}

// volatility is the sample std of the recent prices in ticks.
func (m *MarketMaking) volatility(tick float64) float64 {
	if m.prices.Len() < 2 {
		return 0
	}
	return sampleStd(m.prices.Values()) / tick
}

func (m *MarketMaking) updateQuotes(s *schema.MarketSnapshot) {
	if !m.lastQuote.IsZero() && s.Timestamp.Sub(m.lastQuote) < m.cfg.QuoteRefresh {
		return
	}
	if !s.HasQuotes() || s.BestBid >= s.BestAsk {
		m.cancelAll("abnormal_spread")
		return
	}

	mid := s.Mid()
	tick := m.tickAt(mid)
	spread := clampInt(m.cfg.BaseSpreadTicks+int(m.cfg.VolToSpread*m.volatility(tick)), m.cfg.MinSpreadTicks, m.cfg.MaxSpreadTicks)

	inv := clamp(float64(m.pos.Qty)/float64(max(1, m.cfg.InventorySoftLimit)), -1, 1)
	skewed := mid - inv*m.cfg.SkewTicks*tick
	half := float64(spread) * tick / 2

	bid := ticks.Floor(math.Min(skewed-half, s.BestBid), tick)
	ask := ticks.Ceil(math.Max(skewed+half, s.BestAsk), tick)
	if bid >= ask {
		m.cancelAll("crossed_quote")
		return
	}

	m.quoteSide(schema.OrderSideBuy, &m.bid, bid, m.pos.Qty < m.cfg.MaxPosition, tick)
	m.quoteSide(schema.OrderSideSell, &m.ask, ask, m.pos.Qty > -m.cfg.MaxShortPosition, tick)
	m.lastQuote = s.Timestamp
}

func (m *MarketMaking) quoteSide(side schema.OrderSide, slot *quote, target float64, want bool, tick float64) {
	if !want {
		if slot.id != "" {
			m.gateway.CancelOrder(slot.id)
		}
		*slot = quote{}
		return
	}

	if slot.id != "" {
		if math.Abs(target-slot.price)/tick < m.cfg.RequoteTicks {
			return
		}
		m.gateway.CancelOrder(slot.id)
		*slot = quote{}
	}

	if id, ok := m.submit(side, target, m.cfg.LotSize, "quote"); ok {
		*slot = quote{id: id, price: target}
	}
}

func (m *MarketMaking) cancelAll(reason string) {
	if m.bid.id == "" && m.ask.id == "" {
		return
	}
	logs.Debugf("%s cancel quotes: %s", m.prefix, reason)
	for _, slot := range []*quote{&m.bid, &m.ask} {
		if slot.id != "" {
			m.gateway.CancelOrder(slot.id)
		}
		*slot = quote{}
	}
}

func (m *MarketMaking) OnFill(f schema.Fill) {
	if !m.owns(f) {
		return
	}
	m.applyFill(f)
}

func (m *MarketMaking) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != m.symbol {
		return
	}
	m.releaseExit(u)
	if !u.Status.IsTerminal() {
		return
	}
	switch u.OrderID {
	case m.bid.id:
		m.bid = quote{}
	case m.ask.id:
		m.ask = quote{}
	}
}
