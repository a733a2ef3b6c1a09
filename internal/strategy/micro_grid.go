package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"metahft/internal/schema"
	"metahft/internal/ticks"
)

const ReasonRangeBreak = "range_break"

type MicroGridConfig struct {
	Common `yaml:",inline"`

	SpacingTicks     int           `yaml:"spacing_ticks"`
	Levels           int           `yaml:"levels"`
	ProfitTicks      int           `yaml:"profit_ticks"`
	RangeWindow      time.Duration `yaml:"range_window"`
	RangeEvery       time.Duration `yaml:"range_every"`
	RangeVolatility  float64       `yaml:"range_volatility"`
	MinSamples       int           `yaml:"min_samples"`
	MaxLevelPosition int64         `yaml:"max_level_position"`
}

func DefaultMicroGridConfig(symbol string) MicroGridConfig {
	c := MicroGridConfig{
		Common:           defaultCommon(symbol),
		SpacingTicks:     2,
		Levels:           5,
		ProfitTicks:      2,
		RangeWindow:      60 * time.Second,
		RangeEvery:       10 * time.Second,
		RangeVolatility:  0.003,
		MinSamples:       30,
		MaxLevelPosition: 100,
	}
	c.MaxPosition = 300
	return c
}

func (c MicroGridConfig) Validate() error {
	err := c.validate()
	if c.SpacingTicks <= 0 || c.ProfitTicks <= 0 {
		err = multierr.Append(err, errors.New("spacing_ticks and profit_ticks must be > 0"))
	}
	if c.Levels <= 0 {
		err = multierr.Append(err, errors.New("levels must be > 0"))
	}
	if c.RangeWindow <= 0 {
		err = multierr.Append(err, errors.New("range_window must be > 0"))
	}
	if c.MinSamples < 2 {
		err = multierr.Append(err, errors.New("min_samples must be >= 2"))
	}
	return err
}

// GridLevel is one rung of the ladder. Index 0 sits at the center.
type GridLevel struct {
	Index    int
	Buy      float64
	Sell     float64
	Position int64
	Avg      float64
	OrderID  string

	// left is the working order's unfilled quantity. The slot stays held
	// until it is booked, even after the venue reports FILLED.
	left    int64
	closing bool
}

// Range is the detected trading range.
type Range struct {
	Center float64
	Top    float64
	Bottom float64
}

// MicroGrid runs a buy-low/sell-high ladder while the market ranges and flattens when it breaks out.
type MicroGrid struct {
	base

	cfg         MicroGridConfig
	prices      *window[float64]
	ranging     bool
	rng         Range
	lastRange   time.Time
	rangeUpdate bool
	levels      map[int]*GridLevel
}

func NewMicroGrid(cfg MicroGridConfig, gw Gateway, approver Approver) (*MicroGrid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate micro grid config")
	}
	return &MicroGrid{
		base:   newBase(schema.StrategyMicroGrid, "[GRID]", cfg.Symbol, cfg.TickSize, ExitConfig{}, gw, approver),
		cfg:    cfg,
		prices: newWindow[float64](cfg.RangeWindow),
		levels: make(map[int]*GridLevel),
	}, nil
}

// Ranging reports whether the last evaluation found a ranging market, and its bounds.
func (g *MicroGrid) Ranging() (Range, bool) {
	return g.rng, g.ranging
}

// Levels returns a copy of the ladder ordered by index.
func (g *MicroGrid) Levels() []GridLevel {
	out := make([]GridLevel, 0, len(g.levels))
	for _, lv := range g.levels {
		out = append(out, *lv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (g *MicroGrid) OnBoard(s *schema.MarketSnapshot) {
	if !g.accepts(s) {
		return
	}
	if s.LastPrice > 0 {
		g.prices.Push(s.Timestamp, s.LastPrice)
	}

	g.detectRange(s.Timestamp)
	if g.ranging {
		if g.rangeUpdate {
			g.rebuild()
			g.rangeUpdate = false
		}
		g.checkTrades(s)
	}

	if !g.ranging && g.pos.Qty != 0 {
		g.flatten(s, ReasonRangeBreak)
	}
}

func (g *MicroGrid) detectRange(now time.Time) {
	if g.prices.Len() < g.cfg.MinSamples {
		g.ranging = false
		return
	}
	if !g.lastRange.IsZero() && now.Sub(g.lastRange) < g.cfg.RangeEvery {
		return
	}
	g.lastRange = now

	prices := g.prices.Values()
	avg := mean(prices)
	ratio := 0.0
	if avg > 0 {
		ratio = popStd(prices) / avg
	}
	if ratio >= g.cfg.RangeVolatility {
		if g.ranging {
			logs.Infof("%s range broken, volatility %.4f", g.prefix, ratio)
		}
		g.ranging = false
		return
	}

	top, bottom := prices[0], prices[0]
	for _, p := range prices {
		top = math.Max(top, p)
		bottom = math.Min(bottom, p)
	}
	g.ranging = true
	g.rng = Range{Center: avg, Top: top, Bottom: bottom}
	g.rangeUpdate = true
	logs.Infof("%s ranging [%.1f - %.1f] volatility %.4f", g.prefix, bottom, top, ratio)
}

// rebuild lays out a fresh ladder for the current range. Levels that still hold
// a position or a working order keep their state.
func (g *MicroGrid) rebuild() {
	tick := g.tickAt(g.rng.Center)
	spacing := float64(g.cfg.SpacingTicks) * tick
	profit := float64(g.cfg.ProfitTicks) * tick

	next := make(map[int]*GridLevel, 2*g.cfg.Levels+1)
	for i := -g.cfg.Levels; i <= g.cfg.Levels; i++ {
		buy := g.rng.Center + float64(i)*spacing
		if buy < g.rng.Bottom || buy > g.rng.Top {
			continue
		}
		next[i] = &GridLevel{
			Index: i,
			Buy:   ticks.Round(buy, tick),
			Sell:  ticks.Round(buy+profit, tick),
		}
	}

	for i, old := range g.levels {
		if old.Position == 0 && old.OrderID == "" {
			continue
		}
		lv, ok := next[i]
		if !ok {
			next[i] = old
			continue
		}
		lv.Position, lv.Avg, lv.OrderID, lv.left, lv.closing = old.Position, old.Avg, old.OrderID, old.left, old.closing
	}
	g.levels = next
}

func (g *MicroGrid) checkTrades(s *schema.MarketSnapshot) {
	if !s.HasQuotes() {
		return
	}
	tick := g.tickAt(s.BestBid)
	for _, lv := range g.Levels() {
		level := g.levels[lv.Index]
		if level.OrderID != "" {
			continue
		}
		switch {
		case level.Position == 0 && math.Abs(s.BestBid-level.Buy) <= tick+1e-9 && g.pos.Qty < g.cfg.MaxPosition:
			qty := min(g.cfg.LotSize, g.cfg.MaxLevelPosition, g.cfg.MaxPosition-g.pos.Qty)
			if id, ok := g.submit(schema.OrderSideBuy, level.Buy, qty, fmt.Sprintf("grid_buy_L%d", level.Index)); ok {
				level.OrderID, level.left = id, qty
			}
		case level.Position > 0 && s.BestAsk >= level.Sell:
			if id, ok := g.submit(schema.OrderSideSell, level.Sell, level.Position, fmt.Sprintf("grid_take_profit_L%d", level.Index)); ok {
				level.OrderID, level.left = id, level.Position
			}
		}
	}
}

// flatten sells every open level at best bid. Working level orders are cancelled first.
func (g *MicroGrid) flatten(s *schema.MarketSnapshot, reason string) {
	if s.BestBid <= 0 {
		return
	}
	for _, lv := range g.Levels() {
		level := g.levels[lv.Index]
		if level.Position <= 0 || level.closing {
			continue
		}
		if level.OrderID != "" {
			g.gateway.CancelOrder(level.OrderID)
			level.OrderID, level.left = "", 0
		}
		logs.Warnf("%s flatten L%d: SELL %d@%.1f (%s)", g.prefix, level.Index, level.Position, s.BestBid, reason)
		if id, ok := g.submit(schema.OrderSideSell, s.BestBid, level.Position, reason); ok {
			level.OrderID, level.left, level.closing = id, level.Position, true
		}
	}
}

// levelFor finds the level a fill belongs to, by order id first and then by price.
func (g *MicroGrid) levelFor(f schema.Fill) *GridLevel {
	for _, lv := range g.levels {
		if f.OrderID != "" && lv.OrderID == f.OrderID {
			return lv
		}
	}
	half := g.tickAt(f.Price) * 0.5
	for _, lv := range g.Levels() {
		level := g.levels[lv.Index]
		if f.Side == schema.OrderSideBuy && math.Abs(f.Price-level.Buy) < half {
			return level
		}
		if f.Side == schema.OrderSideSell && level.Position > 0 && math.Abs(f.Price-level.Sell) < half {
			return level
		}
	}
	return nil
}

func (g *MicroGrid) OnFill(f schema.Fill) {
	if !g.owns(f) {
		return
	}
	g.applyFill(f)

	level := g.levelFor(f)
	if level == nil {
		logs.Warnf("%s fill %s %d@%.1f matches no level", g.prefix, f.Side, f.Qty, f.Price)
		return
	}
	if f.OrderID != "" && f.OrderID == level.OrderID {
		level.left -= f.Qty
		if level.left <= 0 {
			level.OrderID, level.left = "", 0
		}
	}
	switch f.Side {
	case schema.OrderSideBuy:
		level.Avg = (level.Avg*float64(level.Position) + f.Price*float64(f.Qty)) / float64(level.Position+f.Qty)
		level.Position += f.Qty
	case schema.OrderSideSell:
		qty := min(f.Qty, level.Position)
		logs.Infof("%s L%d closed %d, pnl %.0f", g.prefix, level.Index, qty, (f.Price-level.Avg)*float64(qty))
		level.Position -= qty
		if level.Position == 0 {
			level.Avg, level.closing = 0, false
		}
	}
}

func (g *MicroGrid) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != g.symbol || !u.Status.IsTerminal() {
		return
	}
	for _, lv := range g.levels {
		if lv.OrderID != u.OrderID {
			continue
		}
		// A FILLED order keeps its slot until OnFill books the shares.
		if u.Status == schema.OrderStatusFilled {
			logs.Debugf("%s L%d order %s filled, waiting for %d shares to book", g.prefix, lv.Index, u.OrderID, lv.left)
			return
		}
		lv.OrderID, lv.left, lv.closing = "", 0, false
		return
	}
}
