package bus

import (
	"time"

	"metahft/internal/schema"
)

// Event is the unit passed through the in-memory bus. Exactly one payload
// pointer is set, matching Header.Type.
type Event struct {
	Header   schema.EventHeader
	Snapshot *schema.MarketSnapshot
	Fill     *schema.Fill
	Update   *schema.OrderUpdate
}

// SnapshotEvent wraps a market snapshot received at recv.
func SnapshotEvent(seq uint64, s *schema.MarketSnapshot, recv time.Time) Event {
	return Event{
		Header:   schema.NewHeader(schema.EventSnapshot, seq, s.Timestamp.UnixNano(), recv.UnixNano()),
		Snapshot: s,
	}
}

// FillEvent wraps an execution report.
func FillEvent(seq uint64, f schema.Fill) Event {
	ts := f.Timestamp.UnixNano()
	return Event{
		Header: schema.NewHeader(schema.EventFill, seq, ts, ts),
		Fill:   &f,
	}
}

// UpdateEvent wraps an order status transition.
func UpdateEvent(seq uint64, u schema.OrderUpdate) Event {
	ts := u.Timestamp.UnixNano()
	return Event{
		Header: schema.NewHeader(schema.EventOrderUpdate, seq, ts, ts),
		Update: &u,
	}
}

// Valid reports whether the payload matches the header type.
func (e Event) Valid() bool {
	switch e.Header.Type {
	case schema.EventSnapshot:
		return e.Snapshot != nil
	case schema.EventFill:
		return e.Fill != nil
	case schema.EventOrderUpdate:
		return e.Update != nil
	default:
		return false
	}
}
