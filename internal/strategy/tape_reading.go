package strategy

import (
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"metahft/internal/schema"
)

type TapeReadingConfig struct {
	Common `yaml:",inline"`

	Exit ExitConfig `yaml:"exit"`

	DepthLevels      int           `yaml:"depth_levels"`
	TapeWindow       time.Duration `yaml:"tape_window"`
	Imbalance        float64       `yaml:"imbalance"`
	LargeOrder       int64         `yaml:"large_order"`
	LargeOrderWindow time.Duration `yaml:"large_order_window"`
	Penetration      float64       `yaml:"penetration"`
	MinVolume        int64         `yaml:"min_volume"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

func DefaultTapeReadingConfig(symbol string) TapeReadingConfig {
	c := TapeReadingConfig{
		Common:           defaultCommon(symbol),
		DepthLevels:      5,
		TapeWindow:       10 * time.Second,
		Imbalance:        0.6,
		LargeOrder:       500,
		LargeOrderWindow: 5 * time.Second,
		Penetration:      0.7,
		MinVolume:        1000,
		Cooldown:         1500 * time.Millisecond,
	}
	c.Exit = ExitConfig{
		Dynamic:         true,
		TakeProfitTicks: 5,
		StopLossTicks:   10,
		TimeStop:        20 * time.Second,
		Reason:          ReasonProfitLock,
	}
	return c
}

func (c TapeReadingConfig) Validate() error {
	err := multierr.Append(c.validate(), c.Exit.Validate())
	if c.DepthLevels <= 0 {
		err = multierr.Append(err, errors.New("depth_levels must be > 0"))
	}
	if c.TapeWindow <= 0 || c.LargeOrderWindow <= 0 {
		err = multierr.Append(err, errors.New("tape_window and large_order_window must be > 0"))
	}
	if c.LargeOrder <= 0 {
		err = multierr.Append(err, errors.New("large_order must be > 0"))
	}
	return err
}

type depthSample struct {
	bidQty int64
	askQty int64
	last   float64
}

type largeOrder struct {
	side schema.OrderSide
	qty  int64
}

// TapeMetrics is the tape summary used for entries.
type TapeMetrics struct {
	Imbalance float64
	BuyLarge  int
	SellLarge int
	Up        float64
	Down      float64
	Volume    int64
}

// TapeReading reads depth imbalance, large market orders and price penetration off the tape.
type TapeReading struct {
	base

	cfg   TapeReadingConfig
	depth *window[depthSample]
	large *window[largeOrder]
	cool  cooldown
}

func NewTapeReading(cfg TapeReadingConfig, gw Gateway, approver Approver) (*TapeReading, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate tape reading config")
	}
	return &TapeReading{
		base:  newBase(schema.StrategyTapeReading, "[TAPE]", cfg.Symbol, cfg.TickSize, cfg.Exit, gw, approver),
		cfg:   cfg,
		depth: newWindow[depthSample](cfg.TapeWindow),
		large: newWindow[largeOrder](cfg.LargeOrderWindow),
		cool:  cooldown{interval: cfg.Cooldown},
	}, nil
}

func (t *TapeReading) OnBoard(s *schema.MarketSnapshot) {
	if !t.accepts(s) {
		return
	}

	if len(s.Bids) > 0 && len(s.Asks) > 0 {
		bid, ask := s.DepthQty(t.cfg.DepthLevels)
		t.depth.Push(s.Timestamp, depthSample{bidQty: bid, askQty: ask, last: s.LastPrice})
	}
	t.detectLarge(s)

	if t.pos.Flat() {
		t.checkEntry(s)
	}
	if s.HasQuotes() {
		t.checkExit(s, s.LastPrice, t.exitPrice(s, 0))
	}
}

func (t *TapeReading) detectLarge(s *schema.MarketSnapshot) {
	if s.BuyMarketOrder >= t.cfg.LargeOrder {
		t.large.Push(s.Timestamp, largeOrder{side: schema.OrderSideBuy, qty: s.BuyMarketOrder})
	}
	if s.SellMarketOrder >= t.cfg.LargeOrder {
		t.large.Push(s.Timestamp, largeOrder{side: schema.OrderSideSell, qty: s.SellMarketOrder})
	}
	t.large.Evict(s.Timestamp)
}

// Metrics summarizes the current tape.
func (t *TapeReading) Metrics() TapeMetrics {
	var m TapeMetrics
	if t.depth.Len() == 0 {
		return m
	}

	latest := t.depth.Last()
	if total := latest.bidQty + latest.askQty; total > 0 {
		m.Imbalance = float64(latest.bidQty-latest.askQty) / float64(total)
	}

	for _, o := range t.large.Values() {
		switch o.side {
		case schema.OrderSideBuy:
			m.BuyLarge++
		case schema.OrderSideSell:
			m.SellLarge++
		}
		m.Volume += o.qty
	}

	samples := t.depth.Values()
	up, down := 0, 0
	for i := 1; i < len(samples); i++ {
		switch {
		case samples[i].last > samples[i-1].last:
			up++
		case samples[i].last < samples[i-1].last:
			down++
		}
	}
	if moves := up + down; moves > 0 {
		m.Up = float64(up) / float64(moves)
		m.Down = float64(down) / float64(moves)
	}
	return m
}

func (t *TapeReading) checkEntry(s *schema.MarketSnapshot) {
	if t.depth.Len() < 2 || !s.HasQuotes() || !t.cool.Ready(s.Timestamp) {
		return
	}
	m := t.Metrics()
	if m.Volume < t.cfg.MinVolume {
		return
	}

	switch {
	case m.Imbalance >= t.cfg.Imbalance && m.BuyLarge > m.SellLarge && m.Up >= t.cfg.Penetration:
		t.enter(schema.OrderSideBuy, s.BestAsk, s.Timestamp, m)
	case m.Imbalance <= -t.cfg.Imbalance && m.SellLarge > m.BuyLarge && m.Down >= t.cfg.Penetration:
		t.enter(schema.OrderSideSell, s.BestBid, s.Timestamp, m)
	}
}

func (t *TapeReading) enter(side schema.OrderSide, price float64, now time.Time, m TapeMetrics) {
	if absInt64(t.pos.Qty) >= t.cfg.MaxPosition {
		return
	}
	logs.Debugf("%s %s imbalance %.2f large %d/%d", t.prefix, side, m.Imbalance, m.BuyLarge, m.SellLarge)
	if _, ok := t.submit(side, price, t.cfg.LotSize, "tape_reading"); ok {
		t.cool.Mark(now)
	}
}

func (t *TapeReading) OnFill(f schema.Fill) {
	if !t.owns(f) {
		return
	}
	t.applyFill(f)
}

func (t *TapeReading) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != t.symbol {
		return
	}
	t.releaseExit(u)
}
