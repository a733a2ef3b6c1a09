package strategy

import (
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"metahft/internal/schema"
)

type OrderFlowConfig struct {
	Common `yaml:",inline"`

	Exit ExitConfig `yaml:"exit"`

	Window            time.Duration `yaml:"window"`
	MinSamples        int           `yaml:"min_samples"`
	BuyPressure       float64       `yaml:"buy_pressure"`
	SellPressure      float64       `yaml:"sell_pressure"`
	MomentumTicks     int           `yaml:"momentum_ticks"`
	MinVolumeIncrease int64         `yaml:"min_volume_increase"`
	DepthLevels       int           `yaml:"depth_levels"`
	ImbalanceLong     float64       `yaml:"imbalance_long"`
	ImbalanceShort    float64       `yaml:"imbalance_short"`
	ConfidenceFloor   float64       `yaml:"confidence_floor"`
	VolumeDivisor     float64       `yaml:"volume_divisor"`
	Cooldown          time.Duration `yaml:"cooldown"`
}

func DefaultOrderFlowConfig(symbol string) OrderFlowConfig {
	c := OrderFlowConfig{
		Common:            defaultCommon(symbol),
		Window:            3 * time.Second,
		MinSamples:        5,
		BuyPressure:       0.6,
		SellPressure:      -0.6,
		MomentumTicks:     2,
		MinVolumeIncrease: 1000,
		DepthLevels:       3,
		ImbalanceLong:     0.3,
		ImbalanceShort:    -0.3,
		ConfidenceFloor:   0.6,
		VolumeDivisor:     10000,
		Cooldown:          time.Second,
	}
	c.Exit = ExitConfig{
		Dynamic:         true,
		ActivationTicks: 1.0,
		ReversalTicks:   0,
		TakeProfitTicks: 5,
		StopLossTicks:   10,
		LegacyTimeStop:  5 * time.Second,
		Reason:          ReasonProfitLock,
	}
	return c
}

func (c OrderFlowConfig) Validate() error {
	err := multierr.Append(c.validate(), c.Exit.Validate())
	if c.Window <= 0 {
		err = multierr.Append(err, errors.New("window must be > 0"))
	}
	if c.MinSamples < 2 {
		err = multierr.Append(err, errors.New("min_samples must be >= 2"))
	}
	if c.DepthLevels <= 0 {
		err = multierr.Append(err, errors.New("depth_levels must be > 0"))
	}
	if c.VolumeDivisor <= 0 {
		err = multierr.Append(err, errors.New("volume_divisor must be > 0"))
	}
	return err
}

type boardSample struct {
	price  float64
	bidQty  int64
	askQty  int64
	volume  int64
	buyMO   int64
	sellMO  int64
}

// FlowMetrics summarizes order flow across the sample window.
type FlowMetrics struct {
	Pressure       float64
	Market         float64
	Queue          float64
	MomentumTicks  int
	VolumeIncrease int64
	Confidence     float64
}

// OrderFlow trades the combined pressure of market orders, queue changes and price drift.
type OrderFlow struct {
	base

	cfg     OrderFlowConfig
	samples *window[boardSample]
	cool    cooldown
}

func NewOrderFlow(cfg OrderFlowConfig, gw Gateway, approver Approver) (*OrderFlow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate order flow config")
	}
	return &OrderFlow{
		base:    newBase(schema.StrategyOrderFlow, "[OF]", cfg.Symbol, cfg.TickSize, cfg.Exit, gw, approver),
		cfg:     cfg,
		samples: newWindow[boardSample](cfg.Window),
		cool:    cooldown{interval: cfg.Cooldown},
	}, nil
}

func (o *OrderFlow) OnBoard(s *schema.MarketSnapshot) {
	if !o.accepts(s) {
		return
	}

	bid, ask := s.DepthQty(o.cfg.DepthLevels)
	o.samples.Push(s.Timestamp, boardSample{
		price:  s.LastPrice,
		bidQty: bid,
		askQty: ask,
		volume: s.TradingVolume,
		buyMO:  s.BuyMarketOrder,
		sellMO: s.SellMarketOrder,
	})

	if s.HasQuotes() {
		o.checkExit(s, s.LastPrice, o.exitPrice(s, o.tickAt(s.LastPrice)))
	}

	if o.pos.Flat() {
		o.maybeTrade(s)
	}
}

// Metrics computes the flow summary; it is zero until the window holds enough samples.
func (o *OrderFlow) Metrics(tick float64) FlowMetrics {
	if o.samples.Len() < o.cfg.MinSamples {
		return FlowMetrics{}
	}
	first, last := o.samples.First(), o.samples.Last()

	var m FlowMetrics
	buyDelta := last.buyMO - first.buyMO
	sellDelta := last.sellMO - first.sellMO
	if buyDelta+sellDelta > 0 {
		m.Market = float64(buyDelta-sellDelta) / float64(buyDelta+sellDelta)
	}

	bidDelta := last.bidQty - first.bidQty
	askDelta := last.askQty - first.askQty
	if d := absInt64(bidDelta) + absInt64(askDelta); d > 0 {
		m.Queue = float64(bidDelta-askDelta) / float64(d)
	}

	m.MomentumTicks = int(math.Round((last.price - first.price) / tick))
	m.VolumeIncrease = last.volume - first.volume

	dir := 0.0
	switch {
	case m.MomentumTicks > 0:
		dir = 1
	case m.MomentumTicks < 0:
		dir = -1
	}
	m.Pressure = 0.5*m.Market + 0.3*m.Queue + 0.2*dir
	m.Confidence = math.Min(1, float64(m.VolumeIncrease)/o.cfg.VolumeDivisor)
	return m
}

func (o *OrderFlow) maybeTrade(s *schema.MarketSnapshot) {
	if !s.HasQuotes() || !o.cool.Ready(s.Timestamp) {
		return
	}

	tick := o.tickAt(s.LastPrice)
	m := o.Metrics(tick)
	if m.VolumeIncrease < o.cfg.MinVolumeIncrease {
		return
	}
	imb := s.Imbalance(o.cfg.DepthLevels)

	switch {
	case m.Pressure >= o.cfg.BuyPressure && m.MomentumTicks >= o.cfg.MomentumTicks &&
		imb >= o.cfg.ImbalanceLong && m.Confidence >= o.cfg.ConfidenceFloor:
		o.enter(schema.OrderSideBuy, s.BestAsk+tick, s.Timestamp, m)
	case m.Pressure <= o.cfg.SellPressure && m.MomentumTicks <= -o.cfg.MomentumTicks &&
		imb <= o.cfg.ImbalanceShort && m.Confidence >= o.cfg.ConfidenceFloor:
		o.enter(schema.OrderSideSell, s.BestBid-tick, s.Timestamp, m)
	}
}

func (o *OrderFlow) enter(side schema.OrderSide, price float64, now time.Time, m FlowMetrics) {
	room := o.cfg.MaxPosition - absInt64(o.pos.Qty)
	if room <= 0 {
		return
	}
	logs.Debugf("%s %s pressure %.2f momentum %d conf %.2f", o.prefix, side, m.Pressure, m.MomentumTicks, m.Confidence)
	if _, ok := o.submit(side, price, min(o.cfg.LotSize, room), "order_flow"); ok {
		o.cool.Mark(now)
	}
}

func (o *OrderFlow) OnFill(f schema.Fill) {
	if !o.owns(f) {
		return
	}
	o.applyFill(f)
}

func (o *OrderFlow) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != o.symbol {
		return
	}
	o.releaseExit(u)
}
