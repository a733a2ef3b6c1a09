// Package report fans the runtime status snapshot out to its consumers off
// the runtime goroutine: the status file, Redis and the Prometheus gauges.
package report

import (
	"context"
	"sync/atomic"
	"time"

	"metahft/internal/obs"
	"metahft/internal/state"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const defaultTimeout = time.Second

// Sink consumes one status snapshot.
type Sink interface {
	Report(ctx context.Context, s state.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s state.Snapshot) error

func (f SinkFunc) Report(ctx context.Context, s state.Snapshot) error {
	return f(ctx, s)
}

// FileSink atomically rewrites path with every snapshot.
func FileSink(path string) Sink {
	return SinkFunc(func(_ context.Context, s state.Snapshot) error {
		return state.WriteSnapshot(path, s)
	})
}

// GaugeSink mirrors the allocator status into the Prometheus gauges.
func GaugeSink(c *obs.Collectors) Sink {
	return SinkFunc(func(_ context.Context, s state.Snapshot) error {
		c.SetStatus(s.Allocator)
		return nil
	})
}

// Reporter keeps only the latest offered snapshot; a slow sink never backs
// up the runtime, it just skips intermediate reports.
type Reporter struct {
	sinks   []Sink
	slot    chan state.Snapshot
	timeout time.Duration

	reported atomic.Uint64
	skipped  atomic.Uint64
	failed   atomic.Uint64
}

func NewReporter(timeout time.Duration, sinks ...Sink) *Reporter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	list := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			list = append(list, s)
		}
	}
	return &Reporter{
		sinks:   list,
		slot:    make(chan state.Snapshot, 1),
		timeout: timeout,
	}
}

// Offer replaces any pending snapshot with s. It has a single producer, the
// runtime status hook.
func (r *Reporter) Offer(s state.Snapshot) {
	for {
		select {
		case r.slot <- s:
			return
		default:
		}
		select {
		case <-r.slot:
			r.skipped.Add(1)
		default:
		}
	}
}

// Run delivers snapshots until ctx is done, then delivers the pending one.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			select {
			case s := <-r.slot:
				r.deliver(context.WithoutCancel(ctx), s)
			default:
			}
			return nil
		case s := <-r.slot:
			r.deliver(ctx, s)
		}
	}
}

func (r *Reporter) deliver(ctx context.Context, s state.Snapshot) {
	for _, sink := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := sink.Report(sctx, s)
		cancel()
		if err != nil {
			r.failed.Add(1)
			logs.Warnf("report status, err: %+v", errors.Wrapf(err, "snapshot at %s", s.Timestamp))
		}
	}
	r.reported.Add(1)
}

// Reported counts delivered snapshots, skipped counts replaced ones and
// failed counts sink errors.
func (r *Reporter) Reported() uint64 { return r.reported.Load() }
func (r *Reporter) Skipped() uint64  { return r.skipped.Load() }
func (r *Reporter) Failed() uint64   { return r.failed.Load() }
