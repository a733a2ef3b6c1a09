package feed

import (
	"context"
	"time"

	"metahft/internal/bus"
	"metahft/internal/obs"
	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Handler consumes one snapshot. Returning an error stops the source.
type Handler func(s *schema.MarketSnapshot) error

// Source produces snapshots until exhausted or canceled.
type Source interface {
	Run(ctx context.Context, handler Handler) error
}

// New builds the configured source.
func New(symbol string, cfg Config) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindTape:
		return NewTape(cfg.Tape)
	default:
		return NewGenerator(symbol, cfg.Generator)
	}
}

// Publisher returns a handler that forwards snapshots onto the bus. With
// block set it waits for room; otherwise a full queue drops the snapshot and
// counts it.
func Publisher(ctx context.Context, q *bus.Queue, metrics *obs.Metrics, block bool, now func() time.Time) Handler {
	return func(s *schema.MarketSnapshot) error {
		ev := bus.SnapshotEvent(q.NextSeq(), s, now())
		if block {
			return q.Publish(ctx, ev)
		}
		switch err := q.TryPublish(ev); {
		case err == nil:
			return nil
		case errors.Is(err, bus.ErrQueueFull):
			metrics.IncQueueDrop()
			logs.Debugf("snapshot %s dropped, queue full", s.Timestamp)
			return nil
		default:
			metrics.IncQueueClosed()
			return err
		}
	}
}

// Recording tees every snapshot into the tape writer before passing it on.
func Recording(w *TapeWriter, next Handler) Handler {
	if w == nil {
		return next
	}
	return func(s *schema.MarketSnapshot) error {
		if err := w.Append(s); err != nil {
			return err
		}
		return next(s)
	}
}

// Filter drops snapshots of other symbols.
func Filter(symbol string, next Handler) Handler {
	return func(s *schema.MarketSnapshot) error {
		if s.Symbol != symbol {
			logs.Debugf("%v: got %s, want %s", exception.ErrFeedSymbolMismatch, s.Symbol, symbol)
			return nil
		}
		return next(s)
	}
}
