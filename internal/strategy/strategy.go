// Package strategy holds the six ensemble strategies and the mechanics they share:
// position book, exit tracking, rolling windows, cooldowns and the allocator gate.
package strategy

import (
	"github.com/yanun0323/logs"

	"metahft/internal/allocator"
	"metahft/internal/schema"
	"metahft/internal/ticks"
)

// Strategy is the capability every strategy exposes to the runtime.
type Strategy interface {
	Type() schema.StrategyType
	OnBoard(s *schema.MarketSnapshot)
	OnFill(f schema.Fill)
	OnOrderUpdate(u schema.OrderUpdate)
}

// Gateway is the order capability a strategy needs. Sends are fire-and-forget;
// a false return means nothing was placed.
type Gateway interface {
	SendOrder(req schema.OrderRequest) (string, bool)
	CancelOrder(orderID string) bool
}

// Approver gates every order intent. *allocator.Allocator implements it.
type Approver interface {
	OnSignal(st schema.StrategyType, side schema.OrderSide, price float64, qty int64, reason string) allocator.Decision
}

// base carries what every strategy does the same way.
type base struct {
	kind     schema.StrategyType
	prefix   string
	symbol   string
	tick     float64
	gateway  Gateway
	approver Approver

	pos  Position
	exit *exitPolicy
	// exitOrderID is the working closing order and exitLeft the part of it
	// not yet booked through applyFill.
	exitOrderID string
	exitLeft    int64
}

func newBase(kind schema.StrategyType, prefix, symbol string, tick float64, exit ExitConfig, gw Gateway, approver Approver) base {
	return base{
		kind:     kind,
		prefix:   prefix,
		symbol:   symbol,
		tick:     tick,
		gateway:  gw,
		approver: approver,
		exit:     newExitPolicy(exit),
	}
}

func (b *base) Type() schema.StrategyType {
	return b.kind
}

// Position returns the strategy's local view of its position.
func (b *base) Position() Position {
	return b.pos
}

// tickAt returns the configured tick, or the exchange band tick when none is configured.
func (b *base) tickAt(price float64) float64 {
	if b.tick > 0 {
		return b.tick
	}
	return ticks.Size(price)
}

func (b *base) accepts(s *schema.MarketSnapshot) bool {
	return s != nil && s.Symbol == b.symbol
}

func (b *base) owns(f schema.Fill) bool {
	return f.Strategy == b.kind && f.Symbol == b.symbol && f.Qty > 0
}

// submit runs the allocator check and hands the order to the gateway.
// Rejections are skipped without retry.
func (b *base) submit(side schema.OrderSide, price float64, qty int64, reason string) (string, bool) {
	if qty <= 0 || price <= 0 {
		return "", false
	}
	if b.approver != nil {
		if d := b.approver.OnSignal(b.kind, side, price, qty, reason); !d.Allowed {
			return "", false
		}
	}
	id, ok := b.gateway.SendOrder(schema.OrderRequest{
		Symbol:   b.symbol,
		Side:     side,
		Type:     schema.OrderTypeLimit,
		Price:    price,
		Qty:      qty,
		Strategy: b.kind,
	})
	if !ok {
		logs.Warnf("%s %s %d@%.1f not placed (%s)", b.prefix, side, qty, price, reason)
		return "", false
	}
	return id, true
}

// closePosition sends one closing order for the whole position unless one is already working.
func (b *base) closePosition(reason string, price float64) {
	if b.pos.Qty == 0 || b.exitOrderID != "" {
		return
	}
	side := schema.Closing(b.pos.Qty)
	qty := absInt64(b.pos.Qty)
	logs.Infof("%s exit %s: %s %d@%.1f", b.prefix, reason, side, qty, price)
	if id, ok := b.submit(side, price, qty, reason); ok {
		b.exitOrderID, b.exitLeft = id, qty
	}
}

// checkExit evaluates the exit policy at price and closes at closeAt when it fires.
func (b *base) checkExit(s *schema.MarketSnapshot, price, closeAt float64) {
	if b.pos.Qty == 0 || price <= 0 {
		return
	}
	if reason := b.exit.Check(b.pos, price, b.tickAt(b.pos.Avg), s.Timestamp); reason != "" {
		b.closePosition(reason, closeAt)
	}
}

// applyFill books an owned fill locally and reports the transitions it caused.
func (b *base) applyFill(f schema.Fill) (opened, closed bool) {
	opened, closed = b.pos.Apply(f.Side, f.Price, f.Qty, f.Timestamp)
	if opened || closed {
		b.exit.Reset()
	}
	if f.OrderID != "" && f.OrderID == b.exitOrderID {
		b.exitLeft -= f.Qty
	}
	if b.pos.Qty == 0 || (b.exitOrderID != "" && b.exitLeft <= 0) {
		b.exitOrderID, b.exitLeft = "", 0
	}
	return opened, closed
}

// releaseExit frees the exit slot when the closing order dies unfilled.
// A FILLED status keeps the slot until the fill itself is booked, since the
// venue may report the status before the fill arrives.
func (b *base) releaseExit(u schema.OrderUpdate) {
	if u.OrderID == "" || u.OrderID != b.exitOrderID {
		return
	}
	switch u.Status {
	case schema.OrderStatusCancelled, schema.OrderStatusRejected:
		b.exitOrderID, b.exitLeft = "", 0
	case schema.OrderStatusFilled:
		if b.exitLeft > 0 {
			logs.Debugf("%s exit %s filled, waiting for %d shares to book", b.prefix, u.OrderID, b.exitLeft)
		}
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// exitPrice is the closing limit for the current position: bid - slip for longs, ask + slip for shorts.
func (b *base) exitPrice(s *schema.MarketSnapshot, slip float64) float64 {
	if b.pos.Qty > 0 {
		return s.BestBid - slip
	}
	return s.BestAsk + slip
}
