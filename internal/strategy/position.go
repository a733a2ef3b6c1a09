package strategy

import (
	"time"

	"metahft/internal/schema"
)

// Position is a strategy's own book: signed quantity, average entry and entry time.
type Position struct {
	Qty       int64
	Avg       float64
	EntryTime time.Time
}

// Flat reports whether no shares are held.
func (p Position) Flat() bool {
	return p.Qty == 0
}

// Apply books a fill. Adding to a position moves the average, reducing keeps it,
// and crossing zero reopens the remainder at the fill price.
func (p *Position) Apply(side schema.OrderSide, price float64, qty int64, at time.Time) (opened, closed bool) {
	prev := p.Qty
	next := prev + side.Sign()*qty
	switch {
	case prev == 0 && next != 0:
		p.Avg, p.EntryTime = price, at
		opened = true
	case next == 0:
		p.Avg, p.EntryTime = 0, time.Time{}
		closed = true
	case prev*next < 0:
		p.Avg, p.EntryTime = price, at
		opened, closed = true, true
	case absInt64(next) > absInt64(prev):
		p.Avg = (p.Avg*float64(absInt64(prev)) + price*float64(qty)) / float64(absInt64(next))
	}
	p.Qty = next
	return opened, closed
}
