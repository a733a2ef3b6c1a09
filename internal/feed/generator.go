package feed

import (
	"context"
	"math"
	"math/rand"
	"time"

	"metahft/internal/schema"
	"metahft/internal/ticks"
)

// Generator produces a mean-reverting random-walk book for one symbol.
type Generator struct {
	symbol string
	cfg    GeneratorConfig
	rng    *rand.Rand
	clock  Clock

	price  float64
	volume int64
	buyMO  int64
	sellMO int64
	at     time.Time
	count  int
}

// NewGenerator creates a generator. A zero seed draws one from the clock.
func NewGenerator(symbol string, cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	start := cfg.Start
	if start.IsZero() {
		start = time.Now()
	}
	return &Generator{
		symbol: symbol,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		clock:  realClock{},
		price:  ticks.Round(cfg.BasePrice, cfg.TickSize),
		at:     start,
	}, nil
}

// WithClock swaps the clock implementation.
func (g *Generator) WithClock(clock Clock) *Generator {
	if clock != nil {
		g.clock = clock
	}
	return g
}

// Next advances the walk by one step and builds the snapshot at now.
func (g *Generator) Next(now time.Time) *schema.MarketSnapshot {
	tick := g.cfg.TickSize
	steps := math.Round(g.rng.NormFloat64() * g.cfg.Volatility)
	pull := -g.cfg.MeanReversion * (g.price - g.cfg.BasePrice) / tick
	move := steps + math.Round(pull)
	g.price = ticks.Round(math.Max(tick, g.price+move*tick), tick)

	traded := g.cfg.BaseQty * int64(1+g.rng.Intn(5))
	g.volume += traded
	switch {
	case move > 0:
		g.buyMO += traded
	case move < 0:
		g.sellMO += traded
	}

	spread := 1.0
	if g.rng.Intn(10) == 0 {
		spread = 2
	}
	bid := g.price
	ask := ticks.Round(bid+spread*tick, tick)

	s := &schema.MarketSnapshot{
		Symbol:          g.symbol,
		Timestamp:       now,
		LastPrice:       g.price,
		BestBid:         bid,
		BestAsk:         ask,
		Bids:            make([]schema.Level, 0, g.cfg.Levels),
		Asks:            make([]schema.Level, 0, g.cfg.Levels),
		TradingVolume:   g.volume,
		BuyMarketOrder:  g.buyMO,
		SellMarketOrder: g.sellMO,
	}
	for i := range g.cfg.Levels {
		off := float64(i) * tick
		s.Bids = append(s.Bids, schema.Level{Price: ticks.Round(bid-off, tick), Qty: g.cfg.BaseQty * int64(1+g.rng.Intn(10))})
		s.Asks = append(s.Asks, schema.Level{Price: ticks.Round(ask+off, tick), Qty: g.cfg.BaseQty * int64(1+g.rng.Intn(10))})
	}
	g.count++
	return s
}

// Run emits snapshots until ctx is done or Count snapshots were produced.
// In realtime mode it sleeps Interval between snapshots and stamps wall time;
// otherwise the timestamps advance by Interval from Start without sleeping.
func (g *Generator) Run(ctx context.Context, handler Handler) error {
	for g.cfg.Count == 0 || g.count < g.cfg.Count {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := g.at
		if g.cfg.Realtime {
			if err := g.clock.Sleep(ctx, g.cfg.Interval); err != nil {
				return err
			}
			now = time.Now()
		}
		g.at = g.at.Add(g.cfg.Interval)
		if err := handler(g.Next(now)); err != nil {
			return err
		}
	}
	return nil
}
