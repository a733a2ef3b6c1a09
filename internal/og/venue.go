package og

import (
	"context"
	"sync"
	"time"

	"metahft/internal/bus"
	"metahft/internal/chaos"
	"metahft/internal/order"
	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type resting struct {
	id  string
	req schema.OrderRequest
}

// SimVenue is an in-process matching venue. Resting limit orders fill in full
// at their own price once a snapshot crosses them: buys when ask <= price,
// sells when bid >= price.
type SimVenue struct {
	symbol string
	chaos  *chaos.Engine
	seq    func() uint64

	mu     sync.Mutex
	book   []resting
	outbox []bus.Event
	last   time.Time
}

// NewSimVenue creates a venue for one symbol. seq may be nil.
func NewSimVenue(symbol string, ch *chaos.Engine, seq func() uint64) *SimVenue {
	if seq == nil {
		seq = func() uint64 { return 0 }
	}
	return &SimVenue{symbol: symbol, chaos: ch, seq: seq}
}

// Send rests a new order on the book.
func (v *SimVenue) Send(_ context.Context, req order.Request) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if req.Order.Symbol != v.symbol {
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "venue symbol %s, order symbol %s", v.symbol, req.Order.Symbol)
	}
	for _, r := range v.book {
		if r.id == req.OrderID {
			return errors.Wrapf(exception.ErrOrderDuplicate, "id: %s", req.OrderID)
		}
	}
	if v.chaos.Reject() {
		logs.Debugf("sim venue rejected %s", req.OrderID)
		v.emit(bus.UpdateEvent(v.seq(), v.update(req.OrderID, req.Order, schema.OrderStatusRejected, 0, v.stamp(req.Timestamp))))
		return nil
	}
	v.book = append(v.book, resting{id: req.OrderID, req: req.Order})
	v.emit(bus.UpdateEvent(v.seq(), v.update(req.OrderID, req.Order, schema.OrderStatusNew, 0, v.stamp(req.Timestamp))))
	return nil
}

// Cancel removes a resting order.
func (v *SimVenue) Cancel(_ context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, r := range v.book {
		if r.id != orderID {
			continue
		}
		v.book = append(v.book[:i], v.book[i+1:]...)
		v.emit(bus.UpdateEvent(v.seq(), v.update(r.id, r.req, schema.OrderStatusCancelled, 0, v.last)))
		return nil
	}
	return errors.Wrapf(exception.ErrOrderUnknown, "id: %s", orderID)
}

// Resting is the number of orders on the book.
func (v *SimVenue) Resting() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.book)
}

// Match crosses the book against a snapshot and returns every venue event
// produced since the previous call, fills of this snapshot last.
func (v *SimVenue) Match(s *schema.MarketSnapshot) []bus.Event {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s.Symbol != v.symbol {
		return nil
	}
	v.last = s.Timestamp

	out := v.outbox
	v.outbox = nil
	out = append(out, v.chaos.Advance()...)

	kept := v.book[:0]
	for _, r := range v.book {
		price, ok := crossPrice(r.req, s)
		if !ok {
			kept = append(kept, r)
			continue
		}
		fill := schema.Fill{
			OrderID:   r.id,
			Symbol:    r.req.Symbol,
			Side:      r.req.Side,
			Price:     price,
			Qty:       r.req.Qty,
			Strategy:  r.req.Strategy,
			Timestamp: s.Timestamp,
		}
		out = append(out, v.chaos.Process(bus.FillEvent(v.seq(), fill))...)
		out = append(out, bus.UpdateEvent(v.seq(), v.update(r.id, r.req, schema.OrderStatusFilled, r.req.Qty, s.Timestamp)))
	}
	clear(v.book[len(kept):])
	v.book = kept
	return out
}

// Flush returns the buffered updates and any fills chaos is still holding.
func (v *SimVenue) Flush() []bus.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := append(v.outbox, v.chaos.Flush()...)
	v.outbox = nil
	return out
}

func (v *SimVenue) emit(ev bus.Event) {
	v.outbox = append(v.outbox, ev)
}

func (v *SimVenue) stamp(at time.Time) time.Time {
	if v.last.IsZero() {
		return at
	}
	return v.last
}

func (v *SimVenue) update(id string, req schema.OrderRequest, status schema.OrderStatus, filled int64, at time.Time) schema.OrderUpdate {
	return schema.OrderUpdate{
		OrderID:   id,
		Symbol:    req.Symbol,
		Status:    status,
		Strategy:  req.Strategy,
		FilledQty: filled,
		Timestamp: at,
	}
}

func crossPrice(req schema.OrderRequest, s *schema.MarketSnapshot) (float64, bool) {
	switch req.Side {
	case schema.OrderSideBuy:
		if s.BestAsk <= 0 {
			return 0, false
		}
		if req.Type == schema.OrderTypeMarket {
			return s.BestAsk, true
		}
		return req.Price, s.BestAsk <= req.Price
	case schema.OrderSideSell:
		if s.BestBid <= 0 {
			return 0, false
		}
		if req.Type == schema.OrderTypeMarket {
			return s.BestBid, true
		}
		return req.Price, s.BestBid >= req.Price
	default:
		return 0, false
	}
}
