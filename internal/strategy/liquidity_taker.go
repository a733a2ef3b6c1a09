package strategy

import (
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"

	"metahft/internal/schema"
)

type LiquidityTakerConfig struct {
	Common `yaml:",inline"`

	Exit ExitConfig `yaml:"exit"`

	MaxSlipTicks   float64       `yaml:"max_slip_ticks"`
	DepthLevels    int           `yaml:"depth_levels"`
	ImbalanceLong  float64       `yaml:"imbalance_long"`
	ImbalanceShort float64       `yaml:"imbalance_short"`
	MomentumTicks  int           `yaml:"momentum_ticks"`
	TradeWindow    time.Duration `yaml:"trade_window"`
	Cooldown       time.Duration `yaml:"cooldown"`
}

func DefaultLiquidityTakerConfig(symbol string) LiquidityTakerConfig {
	c := LiquidityTakerConfig{
		Common:         defaultCommon(symbol),
		MaxSlipTicks:   1,
		DepthLevels:    5,
		ImbalanceLong:  0.4,
		ImbalanceShort: -0.4,
		MomentumTicks:  1,
		TradeWindow:    2 * time.Second,
		Cooldown:       time.Second,
	}
	c.Exit = ExitConfig{
		Dynamic:         true,
		ActivationTicks: 3.0,
		ReversalTicks:   1.5,
		TakeProfitTicks: 5,
		StopLossTicks:   10,
		LegacyTimeStop:  5 * time.Second,
		Reason:          ReasonReversal,
	}
	return c
}

func (c LiquidityTakerConfig) Validate() error {
	err := multierr.Append(c.validate(), c.Exit.Validate())
	if c.DepthLevels <= 0 {
		err = multierr.Append(err, errors.New("depth_levels must be > 0"))
	}
	if c.TradeWindow <= 0 {
		err = multierr.Append(err, errors.New("trade_window must be > 0"))
	}
	if c.MomentumTicks <= 0 {
		err = multierr.Append(err, errors.New("momentum_ticks must be > 0"))
	}
	return err
}

// LiquidityTaker crosses the spread when short-term momentum and book imbalance agree.
type LiquidityTaker struct {
	base

	cfg    LiquidityTakerConfig
	prices *window[float64]
	cool   cooldown
}

func NewLiquidityTaker(cfg LiquidityTakerConfig, gw Gateway, approver Approver) (*LiquidityTaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate liquidity taker config")
	}
	return &LiquidityTaker{
		base:   newBase(schema.StrategyLiquidityTaker, "[LT]", cfg.Symbol, cfg.TickSize, cfg.Exit, gw, approver),
		cfg:    cfg,
		prices: newWindow[float64](cfg.TradeWindow),
		cool:   cooldown{interval: cfg.Cooldown},
	}, nil
}

func (l *LiquidityTaker) OnBoard(s *schema.MarketSnapshot) {
	if !l.accepts(s) {
		return
	}

	price := s.LastPrice
	if price <= 0 {
		price = s.Mid()
	}
	if price > 0 {
		l.prices.Push(s.Timestamp, price)
	}

	if s.HasQuotes() {
		slip := l.cfg.MaxSlipTicks * l.tickAt(s.Mid())
		l.checkExit(s, s.Mid(), l.exitPrice(s, slip))
	}

	if l.pos.Flat() {
		l.maybeOpen(s)
	}
}

func (l *LiquidityTaker) momentum(tick float64) int {
	if l.prices.Len() < 2 {
		return 0
	}
	return int(math.Round((l.prices.Last() - l.prices.First()) / tick))
}

func (l *LiquidityTaker) maybeOpen(s *schema.MarketSnapshot) {
	if !s.HasQuotes() || !l.cool.Ready(s.Timestamp) {
		return
	}

	tick := l.tickAt(s.Mid())
	mom := l.momentum(tick)
	imb := s.Imbalance(l.cfg.DepthLevels)
	slip := l.cfg.MaxSlipTicks * tick

	switch {
	case mom >= l.cfg.MomentumTicks && imb >= l.cfg.ImbalanceLong:
		l.open(schema.OrderSideBuy, s.BestAsk+slip, s.Timestamp, "momentum_long")
	case mom <= -l.cfg.MomentumTicks && imb <= l.cfg.ImbalanceShort:
		l.open(schema.OrderSideSell, s.BestBid-slip, s.Timestamp, "momentum_short")
	}
}

func (l *LiquidityTaker) open(side schema.OrderSide, price float64, now time.Time, reason string) {
	room := l.cfg.MaxPosition - absInt64(l.pos.Qty)
	if room <= 0 {
		return
	}
	if _, ok := l.submit(side, price, min(l.cfg.LotSize, room), reason); ok {
		l.cool.Mark(now)
	}
}

func (l *LiquidityTaker) OnFill(f schema.Fill) {
	if !l.owns(f) {
		return
	}
	l.applyFill(f)
}

func (l *LiquidityTaker) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != l.symbol {
		return
	}
	l.releaseExit(u)
}
