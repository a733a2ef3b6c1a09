package obs

import (
	"sync/atomic"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/schema"
)

const (
	maxEventType = int(schema.EventDecision)
	maxReason    = int(allocator.ReasonTotalLimit)
	maxStrategy  = int(schema.StrategyDualEngine)
)

// Metrics collects lightweight counters and latency stats. It implements
// allocator.Observer and mirrors every sample into the Prometheus collectors
// when they are attached.
type Metrics struct {
	eventCounts    [maxEventType + 1]uint64
	decisionCounts [maxReason + 1]uint64
	fillCounts     [maxStrategy + 1]uint64
	wins           uint64
	losses         uint64
	queueDrops     uint64
	queueClosed    uint64
	strayFills     uint64

	eventLatency    LatencyStats
	snapshotLatency LatencyStats

	prom *Collectors
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[string]uint64 `json:"event_counts"`
	DecisionCounts  map[string]uint64 `json:"decision_counts"`
	FillCounts      map[string]uint64 `json:"fill_counts"`
	Wins            uint64            `json:"wins"`
	Losses          uint64            `json:"losses"`
	QueueDrops      uint64            `json:"queue_drops"`
	QueueClosed     uint64            `json:"queue_closed"`
	StrayFills      uint64            `json:"stray_fills"`
	EventLatency    LatencySnapshot   `json:"event_latency"`
	SnapshotLatency LatencySnapshot   `json:"snapshot_latency"`
}

// NewMetrics allocates a metrics container. prom may be nil.
func NewMetrics(prom *Collectors) *Metrics {
	return &Metrics{prom: prom}
}

// ObserveEvent increments counters and tracks feed latency when timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	m.prom.event(header.Type)
	if header.Type == schema.EventSnapshot && header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// ObserveDecision counts allocator decisions by reason.
func (m *Metrics) ObserveDecision(sig allocator.Signal, d allocator.Decision) {
	if m == nil {
		return
	}
	idx := int(d.Code)
	if idx >= 0 && idx < len(m.decisionCounts) {
		atomic.AddUint64(&m.decisionCounts[idx], 1)
	}
	m.prom.decision(sig.Strategy, d.Code)
}

// ObserveClose counts winning and losing round trips.
func (m *Metrics) ObserveClose(st schema.StrategyType, pnl float64) {
	if m == nil {
		return
	}
	if pnl > 0 {
		atomic.AddUint64(&m.wins, 1)
	} else {
		atomic.AddUint64(&m.losses, 1)
	}
	m.prom.close(st, pnl)
}

// ObserveFill counts fills by strategy.
func (m *Metrics) ObserveFill(f schema.Fill) {
	if m == nil {
		return
	}
	idx := int(f.Strategy)
	if idx > 0 && idx < len(m.fillCounts) {
		atomic.AddUint64(&m.fillCounts[idx], 1)
	} else {
		atomic.AddUint64(&m.strayFills, 1)
	}
	m.prom.fill(f)
}

// ObserveSnapshot measures how long one snapshot took to process.
func (m *Metrics) ObserveSnapshot(d time.Duration) {
	if m == nil {
		return
	}
	m.snapshotLatency.Observe(d)
	m.prom.snapshot(d)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
	m.prom.queueDrop()
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	events := make(map[string]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			events[schema.EventType(i).String()] = v
		}
	}
	decisions := make(map[string]uint64)
	for i := range m.decisionCounts {
		if v := atomic.LoadUint64(&m.decisionCounts[i]); v > 0 {
			decisions[allocator.Reason(i).String()] = v
		}
	}
	fills := make(map[string]uint64)
	for i := range m.fillCounts {
		if v := atomic.LoadUint64(&m.fillCounts[i]); v > 0 {
			fills[schema.StrategyType(i).String()] = v
		}
	}
	return Snapshot{
		EventCounts:     events,
		DecisionCounts:  decisions,
		FillCounts:      fills,
		Wins:            atomic.LoadUint64(&m.wins),
		Losses:          atomic.LoadUint64(&m.losses),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		QueueClosed:     atomic.LoadUint64(&m.queueClosed),
		StrayFills:      atomic.LoadUint64(&m.strayFills),
		EventLatency:    m.eventLatency.Snapshot(),
		SnapshotLatency: m.snapshotLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
