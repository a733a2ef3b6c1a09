package risk

import (
	"math"
	"sync/atomic"

	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/yanun0323/errors"
	"go.uber.org/multierr"
)

// Config defines order-level sanity limits. Zero disables a limit.
type Config struct {
	KillSwitch           bool    `yaml:"kill_switch"`
	MaxOrderQty          int64   `yaml:"max_order_qty"`
	MaxOrderNotional     float64 `yaml:"max_order_notional"`
	MaxPriceDeviationBps float64 `yaml:"max_price_deviation_bps"`
}

func DefaultConfig() Config {
	return Config{
		MaxOrderQty:          2000,
		MaxOrderNotional:     10_000_000,
		MaxPriceDeviationBps: 200,
	}
}

func (c Config) Validate() error {
	var err error
	if c.MaxOrderQty < 0 {
		err = multierr.Append(err, errors.Errorf("max_order_qty must be >= 0, got %d", c.MaxOrderQty))
	}
	if c.MaxOrderNotional < 0 {
		err = multierr.Append(err, errors.Errorf("max_order_notional must be >= 0, got %v", c.MaxOrderNotional))
	}
	if c.MaxPriceDeviationBps < 0 {
		err = multierr.Append(err, errors.Errorf("max_price_deviation_bps must be >= 0, got %v", c.MaxPriceDeviationBps))
	}
	return err
}

// Reason names the limit an order broke.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonMaxQty
	ReasonMaxNotional
	ReasonPriceBand
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonPriceBand:
		return "price_band"
	default:
		return "unknown"
	}
}

// Guard checks orders against static limits and a reference price the
// runtime marks once per snapshot. Check may run on any goroutine.
type Guard struct {
	cfg    Config
	killed atomic.Bool
	ref    atomic.Uint64
}

func NewGuard(cfg Config) *Guard {
	g := &Guard{cfg: cfg}
	g.killed.Store(cfg.KillSwitch)
	return g
}

// Mark sets the reference price for the price band.
func (g *Guard) Mark(price float64) {
	if price > 0 {
		g.ref.Store(math.Float64bits(price))
	}
}

// Reference returns the last marked price, 0 before the first mark.
func (g *Guard) Reference() float64 {
	return math.Float64frombits(g.ref.Load())
}

// Kill blocks every new order until Resume.
func (g *Guard) Kill()   { g.killed.Store(true) }
func (g *Guard) Resume() { g.killed.Store(false) }

// Evaluate returns the first limit req breaks.
func (g *Guard) Evaluate(req schema.OrderRequest) Reason {
	if g.killed.Load() {
		return ReasonKillSwitch
	}
	if g.cfg.MaxOrderQty > 0 && req.Qty > g.cfg.MaxOrderQty {
		return ReasonMaxQty
	}

	price := req.Price
	if req.Type == schema.OrderTypeMarket || price <= 0 {
		price = g.Reference()
	}
	if g.cfg.MaxOrderNotional > 0 && price*float64(req.Qty) > g.cfg.MaxOrderNotional {
		return ReasonMaxNotional
	}

	ref := g.Reference()
	if g.cfg.MaxPriceDeviationBps > 0 && req.Type == schema.OrderTypeLimit && req.Price > 0 && ref > 0 {
		if math.Abs(req.Price-ref)/ref*10_000 > g.cfg.MaxPriceDeviationBps {
			return ReasonPriceBand
		}
	}
	return ReasonNone
}

// Check is Evaluate as an error for the gateway.
func (g *Guard) Check(req schema.OrderRequest) error {
	if r := g.Evaluate(req); r != ReasonNone {
		return errors.Wrapf(exception.ErrOrderRiskDenied, "%s, %s %d@%v ref %v", r, req.Side, req.Qty, req.Price, g.Reference())
	}
	return nil
}
