package order

import (
	"context"
	"sync/atomic"
	"time"

	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Action is what a Request asks the venue to do.
type Action uint8

const (
	ActionPlace Action = iota + 1
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionPlace:
		return "place"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Request is one venue call prepared by the gateway.
type Request struct {
	Action    Action
	OrderID   string
	Order     schema.OrderRequest
	Timestamp time.Time
}

// Delegator talks to one venue.
type Delegator interface {
	Send(ctx context.Context, req Request) error
	Cancel(ctx context.Context, orderID string) error
}

// FailureHandler is told about requests the delegator could not execute.
type FailureHandler func(req Request, err error)

// Usecase dispatches requests to the delegator from a fixed set of workers.
type Usecase struct {
	delegator Delegator
	onFailure FailureHandler

	running atomic.Bool
	worker  int
	queue   chan Request
	done    chan struct{}
	active  atomic.Int32
}

func NewUsecase(workerCount, workerCap int, delegator Delegator, onFailure FailureHandler) (*Usecase, error) {
	if delegator == nil {
		return nil, exception.ErrOrderNilDelegator
	}
	if workerCount <= 0 || workerCap <= 0 {
		return nil, errors.Wrapf(exception.ErrOrderInvalidWorkerConfig, "workers: %d, capacity: %d", workerCount, workerCap)
	}
	return &Usecase{
		delegator: delegator,
		onFailure: onFailure,
		worker:    workerCount,
		queue:     make(chan Request, workerCap),
		done:      make(chan struct{}),
	}, nil
}

// Handle queues a request without blocking.
func (use *Usecase) Handle(req Request) error {
	if req.Action != ActionPlace && req.Action != ActionCancel {
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "action: %d", req.Action)
	}
	select {
	case use.queue <- req:
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Run starts the workers. Calling it twice is a no-op.
func (use *Usecase) Run(ctx context.Context) {
	if use.running.Swap(true) {
		return
	}

	use.active.Store(int32(use.worker))
	for range use.worker {
		go use.workerExecuteRequest(ctx)
	}
}

// Done is closed once every worker has returned.
func (use *Usecase) Done() <-chan struct{} {
	return use.done
}

func (use *Usecase) workerExecuteRequest(ctx context.Context) {
	defer func() {
		if use.active.Add(-1) == 0 {
			close(use.done)
		}
	}()

	for {
		select {
		case req := <-use.queue:
			if err := execute(ctx, use.delegator, req); err != nil {
				logs.Warnf("order %s %s failed, err: %+v", req.Action, req.OrderID, err)
				if use.onFailure != nil {
					use.onFailure(req, err)
				}
			}
		case <-ctx.Done():
			logs.Debugf("order worker stopped, pending: %d", len(use.queue))
			return
		}
	}
}

func execute(ctx context.Context, delegator Delegator, req Request) error {
	switch req.Action {
	case ActionPlace:
		return delegator.Send(ctx, req)
	case ActionCancel:
		return delegator.Cancel(ctx, req.OrderID)
	default:
		return exception.ErrOrderInvalidRequest
	}
}

// Direct executes requests inline on the caller's goroutine. Failures are
// returned to the caller instead of reported asynchronously.
type Direct struct {
	ctx       context.Context
	delegator Delegator
}

func NewDirect(ctx context.Context, delegator Delegator) *Direct {
	return &Direct{ctx: ctx, delegator: delegator}
}

func (d *Direct) Handle(req Request) error {
	if d.delegator == nil {
		return exception.ErrOrderNilDelegator
	}
	return execute(d.ctx, d.delegator, req)
}
