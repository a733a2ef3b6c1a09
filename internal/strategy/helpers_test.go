package strategy

import (
	"fmt"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/schema"
)

const testSymbol = "9984"

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type sentOrder struct {
	id  string
	req schema.OrderRequest
}

type fakeGateway struct {
	seq       int
	fail      bool
	orders    []sentOrder
	cancelled []string
}

func (g *fakeGateway) SendOrder(req schema.OrderRequest) (string, bool) {
	if g.fail {
		return "", false
	}
	g.seq++
	id := fmt.Sprintf("o-%d", g.seq)
	g.orders = append(g.orders, sentOrder{id: id, req: req})
	return id, true
}

func (g *fakeGateway) CancelOrder(orderID string) bool {
	g.cancelled = append(g.cancelled, orderID)
	return true
}

func (g *fakeGateway) last() sentOrder {
	return g.orders[len(g.orders)-1]
}

type signalCall struct {
	side   schema.OrderSide
	price  float64
	qty    int64
	reason string
}

type fakeApprover struct {
	reject bool
	calls  []signalCall
}

func (a *fakeApprover) OnSignal(_ schema.StrategyType, side schema.OrderSide, price float64, qty int64, reason string) allocator.Decision {
	a.calls = append(a.calls, signalCall{side: side, price: price, qty: qty, reason: reason})
	if a.reject {
		return allocator.Decision{Allowed: false, Code: allocator.ReasonStrategyLimit, Reason: "rejected"}
	}
	return allocator.Decision{Allowed: true}
}

func (a *fakeApprover) lastReason() string {
	if len(a.calls) == 0 {
		return ""
	}
	return a.calls[len(a.calls)-1].reason
}

// book builds a snapshot with one level per side plus optional extra depth.
func book(at time.Time, last, bid, ask float64, bidQty, askQty int64) *schema.MarketSnapshot {
	return &schema.MarketSnapshot{
		Symbol:    testSymbol,
		Timestamp: at,
		LastPrice: last,
		BestBid:   bid,
		BestAsk:   ask,
		Bids:      []schema.Level{{Price: bid, Qty: bidQty}},
		Asks:      []schema.Level{{Price: ask, Qty: askQty}},
	}
}

func fill(st schema.StrategyType, id string, side schema.OrderSide, price float64, qty int64, at time.Time) schema.Fill {
	return schema.Fill{
		OrderID:   id,
		Symbol:    testSymbol,
		Side:      side,
		Price:     price,
		Qty:       qty,
		Strategy:  st,
		Timestamp: at,
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
