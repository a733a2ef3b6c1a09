package journal

import (
	"context"
	"sync/atomic"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
	shutdownFlushTimeout = 5 * time.Second
)

// Journal is an append-only audit trail of fills, allocator rejections and
// closed round trips. Records are queued without blocking the caller and
// written in batches by Run; a full queue drops the record and counts it.
type Journal struct {
	store    Store
	queue    chan entry
	now      func() time.Time
	batch    int
	interval time.Duration

	running atomic.Bool
	done    chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64
	written atomic.Uint64
}

type entry struct {
	fill      *FillRecord
	rejection *RejectionRecord
	close     *CloseRecord
}

type Option func(*Journal)

// WithClock sets the time source used to stamp rejections and closes.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

func WithBatchSize(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.batch = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(j *Journal) {
		if d > 0 {
			j.interval = d
		}
	}
}

func New(store Store, queueSize int, opts ...Option) (*Journal, error) {
	if store == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "journal store")
	}
	if queueSize <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "journal queue size must be > 0, got %d", queueSize)
	}
	j := &Journal{
		store:    store,
		queue:    make(chan entry, queueSize),
		now:      time.Now,
		batch:    defaultBatchSize,
		interval: defaultFlushInterval,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// RecordFill queues a routed fill.
func (j *Journal) RecordFill(f schema.Fill) {
	rec := newFillRecord(f)
	j.enqueue(entry{fill: &rec})
}

// ObserveDecision queues rejected signals. Approvals are not journaled.
func (j *Journal) ObserveDecision(sig allocator.Signal, d allocator.Decision) {
	if d.Allowed {
		return
	}
	rec := newRejectionRecord(sig, d, j.now())
	j.enqueue(entry{rejection: &rec})
}

// ObserveClose queues the realized PnL of a round trip.
func (j *Journal) ObserveClose(st schema.StrategyType, pnl float64) {
	rec := newCloseRecord(st, pnl, j.now())
	j.enqueue(entry{close: &rec})
}

func (j *Journal) enqueue(e entry) {
	select {
	case j.queue <- e:
	default:
		if n := j.dropped.Add(1); n&(n-1) == 0 {
			logs.Warnf("%v, dropped %d records so far", exception.ErrJournalQueueFull, n)
		}
	}
}

// Dropped reports records lost to a full queue or a failed write.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load() + j.failed.Load()
}

// Written reports records persisted so far.
func (j *Journal) Written() uint64 {
	return j.written.Load()
}

// Done is closed once Run has flushed and returned.
func (j *Journal) Done() <-chan struct{} {
	return j.done
}

// Run writes queued records until ctx is done, then drains what is left.
func (j *Journal) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return errors.Wrap(exception.ErrJournalClosed, "journal already running")
	}
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	var buf batch
	for {
		select {
		case <-ctx.Done():
			j.drain(&buf)
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			j.flush(flushCtx, &buf)
			cancel()
			logs.Infof("journal stopped, written %d, dropped %d", j.Written(), j.Dropped())
			return nil
		case e := <-j.queue:
			buf.add(e)
			if buf.len() >= j.batch {
				j.flush(ctx, &buf)
			}
		case <-ticker.C:
			j.flush(ctx, &buf)
		}
	}
}

func (j *Journal) drain(buf *batch) {
	for {
		select {
		case e := <-j.queue:
			buf.add(e)
		default:
			return
		}
	}
}

func (j *Journal) flush(ctx context.Context, buf *batch) {
	if buf.len() == 0 {
		return
	}
	save := func(n int, err error, kind string) {
		if n == 0 {
			return
		}
		if err != nil {
			j.failed.Add(uint64(n))
			logs.Errorf("journal save %d %s, err: %+v", n, kind, err)
			return
		}
		j.written.Add(uint64(n))
	}
	if len(buf.fills) != 0 {
		save(len(buf.fills), j.store.SaveFills(ctx, buf.fills), "fills")
	}
	if len(buf.rejections) != 0 {
		save(len(buf.rejections), j.store.SaveRejections(ctx, buf.rejections), "rejections")
	}
	if len(buf.closes) != 0 {
		save(len(buf.closes), j.store.SaveCloses(ctx, buf.closes), "closes")
	}
	buf.reset()
}

type batch struct {
	fills      []FillRecord
	rejections []RejectionRecord
	closes     []CloseRecord
}

func (b *batch) add(e entry) {
	switch {
	case e.fill != nil:
		b.fills = append(b.fills, *e.fill)
	case e.rejection != nil:
		b.rejections = append(b.rejections, *e.rejection)
	case e.close != nil:
		b.closes = append(b.closes, *e.close)
	}
}

func (b *batch) len() int {
	return len(b.fills) + len(b.rejections) + len(b.closes)
}

// reset drops the slices since the store may still hold them.
func (b *batch) reset() {
	b.fills = nil
	b.rejections = nil
	b.closes = nil
}
