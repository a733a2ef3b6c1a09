package core

import (
	"context"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/bus"
	"metahft/internal/obs"
	"metahft/internal/schema"
	"metahft/internal/state"
	"metahft/internal/strategy"
	"metahft/internal/strategy/dualengine"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Ledger is the allocator surface the runtime drives.
type Ledger interface {
	OnFill(st schema.StrategyType, side schema.OrderSide, price float64, qty int64)
	UpdateUnrealizedPnL(price float64)
	ResetDailyStats(now time.Time) bool
	Status() allocator.Status
}

// OrderTracker mirrors venue events into the gateway's order table.
type OrderTracker interface {
	OnFill(fill schema.Fill) error
	OnUpdate(u schema.OrderUpdate) error
}

// Venue is a matching venue driven by the snapshot stream.
type Venue interface {
	Match(s *schema.MarketSnapshot) []bus.Event
}

// PriceMarker is told the mark price once per snapshot before any strategy
// runs, e.g. the pre-trade price band.
type PriceMarker interface {
	Mark(price float64)
}

// FillSink receives every routed fill, e.g. the trade journal.
type FillSink interface {
	RecordFill(f schema.Fill)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithStrategies registers allocator-managed strategies.
func WithStrategies(list ...strategy.Strategy) Option {
	return func(e *Engine) {
		e.strategies = append(e.strategies, list...)
	}
}

// WithDualEngine registers the standalone trend + grid strategy.
func WithDualEngine(d *dualengine.Engine) Option {
	return func(e *Engine) {
		e.dual = d
	}
}

func WithOrderTracker(t OrderTracker) Option {
	return func(e *Engine) {
		e.orders = t
	}
}

func WithVenue(v Venue) Option {
	return func(e *Engine) {
		e.venue = v
	}
}

func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithPriceMarker(m PriceMarker) Option {
	return func(e *Engine) {
		e.markers = append(e.markers, m)
	}
}

func WithFillSink(s FillSink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, s)
	}
}

// StatusHook receives a status report built on the runtime goroutine.
type StatusHook func(state.Snapshot)

// WithStatusHook reports the status at most once per interval, checked after each event.
func WithStatusHook(interval time.Duration, hook StatusHook) Option {
	return func(e *Engine) {
		e.statusEvery = interval
		e.statusHook = hook
	}
}

// Engine processes one symbol's event stream on a single goroutine and is not
// safe for concurrent use. Other goroutines see its state through the status hook.
type Engine struct {
	symbol string
	ledger Ledger

	strategies []strategy.Strategy
	dual       *dualengine.Engine
	orders     OrderTracker
	venue      Venue
	metrics    *obs.Metrics
	markers    []PriceMarker
	sinks      []FillSink

	positions   *state.PositionReducer
	lastSeq     uint64
	lastEventTs int64
	snapshots   uint64
	lastPrice   float64

	statusEvery time.Duration
	statusHook  StatusHook
	lastStatus  time.Time
}

// New builds the runtime for symbol.
func New(symbol string, ledger Ledger, opts ...Option) (*Engine, error) {
	if symbol == "" {
		return nil, errors.New("core: empty symbol")
	}
	if ledger == nil {
		return nil, errors.New("core: nil allocator")
	}
	e := &Engine{
		symbol:    symbol,
		ledger:    ledger,
		positions: state.NewPositionReducer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, s := range e.strategies {
		if !s.Type().IsEnsemble() {
			return nil, errors.Errorf("core: %s is not an allocator-managed strategy", s.Type())
		}
	}
	return e, nil
}

// Handle dispatches one bus event.
func (e *Engine) Handle(ev bus.Event) {
	if !ev.Valid() {
		logs.Warnf("[CORE] drop malformed event, type: %s, seq: %d", ev.Header.Type, ev.Header.Seq)
		return
	}
	e.metrics.ObserveEvent(ev.Header)
	if ev.Header.Seq > e.lastSeq {
		e.lastSeq = ev.Header.Seq
	}
	if ev.Header.TsEvent > e.lastEventTs {
		e.lastEventTs = ev.Header.TsEvent
	}

	switch ev.Header.Type {
	case schema.EventSnapshot:
		e.OnSnapshot(ev.Snapshot)
	case schema.EventFill:
		e.OnFill(*ev.Fill)
	case schema.EventOrderUpdate:
		e.OnOrderUpdate(*ev.Update)
	}
}

// Run consumes the queue until ctx is done or the queue is closed and drained.
// A final status report is emitted on return.
func (e *Engine) Run(ctx context.Context, q *bus.Queue) {
	q.Run(ctx, func(ev bus.Event) {
		e.Handle(ev)
		e.reportStatus(false)
	})
	e.reportStatus(true)
}

func (e *Engine) reportStatus(force bool) {
	if e.statusHook == nil {
		return
	}
	now := time.Now()
	if !force && now.Sub(e.lastStatus) < e.statusEvery {
		return
	}
	e.lastStatus = now
	e.statusHook(e.Status(now))
}

// OnSnapshot runs every strategy against one snapshot, then rolls the trading
// day and lets the venue match the orders the snapshot produced.
func (e *Engine) OnSnapshot(s *schema.MarketSnapshot) {
	if s == nil || s.Symbol != e.symbol {
		return
	}
	if err := s.Validate(); err != nil {
		logs.Warnf("[CORE] skip snapshot, err: %+v", err)
		return
	}
	start := time.Now()
	e.snapshots++

	price := s.LastPrice
	if price <= 0 {
		price = s.Mid()
	}
	if price > 0 {
		e.lastPrice = price
		e.ledger.UpdateUnrealizedPnL(price)
		for _, m := range e.markers {
			m.Mark(price)
		}
	}

	for _, st := range e.strategies {
		st.OnBoard(s)
	}
	if e.dual != nil {
		e.dual.OnBoard(s)
	}
	e.ledger.ResetDailyStats(s.Timestamp)

	if e.venue != nil {
		for _, ev := range e.venue.Match(s) {
			e.Handle(ev)
		}
	}
	e.metrics.ObserveSnapshot(time.Since(start))
}

// OnFill books a fill once in the allocator and hands it to the strategies.
// Each strategy ignores fills tagged for another owner.
func (e *Engine) OnFill(f schema.Fill) {
	if f.Symbol != e.symbol {
		return
	}
	if e.orders != nil {
		if err := e.orders.OnFill(f); err != nil {
			logs.Debugf("[CORE] order table, err: %+v", err)
		}
	}
	e.metrics.ObserveFill(f)

	switch {
	case f.Strategy.IsEnsemble():
		e.ledger.OnFill(f.Strategy, f.Side, f.Price, f.Qty)
		for _, st := range e.strategies {
			st.OnFill(f)
		}
	case f.Strategy == schema.StrategyDualEngine:
		if e.dual != nil {
			e.dual.OnFill(f)
		}
	default:
		logs.Warnf("[CORE] fill %s carries no known strategy tag, ignored", f.OrderID)
		return
	}

	e.positions.ApplyFill(f)
	for _, sink := range e.sinks {
		sink.RecordFill(f)
	}
}

// OnOrderUpdate hands a status transition to the strategies of the tagged type.
func (e *Engine) OnOrderUpdate(u schema.OrderUpdate) {
	if u.Symbol != e.symbol {
		return
	}
	if e.orders != nil {
		if err := e.orders.OnUpdate(u); err != nil {
			logs.Debugf("[CORE] order table, err: %+v", err)
		}
	}
	if u.Strategy == schema.StrategyDualEngine {
		if e.dual != nil {
			e.dual.OnOrderUpdate(u)
		}
		return
	}
	for _, st := range e.strategies {
		if st.Type() == u.Strategy {
			st.OnOrderUpdate(u)
		}
	}
}

// Status builds the runtime report. It has no side effects.
func (e *Engine) Status(now time.Time) state.Snapshot {
	snap := state.Snapshot{
		Timestamp:   now,
		Symbol:      e.symbol,
		LastSeq:     e.lastSeq,
		LastEventTs: e.lastEventTs,
		Snapshots:   e.snapshots,
		Allocator:   e.ledger.Status(),
		Positions:   e.positions.Entries(),
	}
	if e.dual != nil {
		st := e.dual.Status()
		snap.DualEngine = &st
	}
	if e.metrics != nil {
		m := e.metrics.Snapshot()
		snap.Metrics = &m
	}
	return snap
}

// LastPrice is the most recent valuation price.
func (e *Engine) LastPrice() float64 {
	return e.lastPrice
}
