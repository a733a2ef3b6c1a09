package obs

import (
	"net/http"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/schema"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors owns a private Prometheus registry with the engine's metrics.
// All methods are no-ops on a nil receiver.
type Collectors struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	fills           *prometheus.CounterVec
	closes          *prometheus.CounterVec
	queueDrops      prometheus.Counter
	snapshotLatency prometheus.Histogram

	position    *prometheus.GaugeVec
	maxPosition *prometheus.GaugeVec
	weight      *prometheus.GaugeVec
	pnl         *prometheus.GaugeVec
	daily       prometheus.Gauge
	reduced     prometheus.Gauge
}

// NewCollectors registers the engine metrics and the Go runtime collectors.
func NewCollectors(namespace string) *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collectors{registry: reg}
	c.events = c.counterVec(namespace, "events_total", "Events consumed from the bus", "type")
	c.decisions = c.counterVec(namespace, "allocator_decisions_total", "Allocator decisions by outcome", "strategy", "reason")
	c.fills = c.counterVec(namespace, "fills_total", "Fills routed to strategies", "strategy", "side")
	c.closes = c.counterVec(namespace, "round_trips_total", "Closed round trips", "strategy", "outcome")
	c.queueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_drops_total",
		Help:      "Events dropped because the bus was full",
	})
	c.snapshotLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_process_seconds",
		Help:      "Time spent processing one snapshot",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
	reg.MustRegister(c.queueDrops, c.snapshotLatency)

	c.position = c.gaugeVec(namespace, "strategy_position", "Signed position per strategy", "strategy")
	c.maxPosition = c.gaugeVec(namespace, "strategy_max_position", "Position limit per strategy", "strategy")
	c.weight = c.gaugeVec(namespace, "strategy_weight", "Capital weight per strategy", "strategy")
	c.pnl = c.gaugeVec(namespace, "strategy_pnl", "PnL per strategy", "strategy", "kind")
	c.daily = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "daily_pnl", Help: "Realized PnL of the trading day"})
	c.reduced = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "position_reduced", Help: "1 once the profit target halved the limits"})
	reg.MustRegister(c.daily, c.reduced)
	return c
}

func (c *Collectors) counterVec(namespace, name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	c.registry.MustRegister(cv)
	return cv
}

func (c *Collectors) gaugeVec(namespace, name, help string, labels ...string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	c.registry.MustRegister(gv)
	return gv
}

// Registry exposes the private registry, mostly for tests.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetStatus publishes the allocator book as gauges.
func (c *Collectors) SetStatus(st allocator.Status) {
	if c == nil {
		return
	}
	for _, s := range st.Strategies {
		c.position.WithLabelValues(s.Strategy).Set(float64(s.Position))
		c.maxPosition.WithLabelValues(s.Strategy).Set(float64(s.MaxPosition))
		c.weight.WithLabelValues(s.Strategy).Set(s.Weight)
		c.pnl.WithLabelValues(s.Strategy, "realized").Set(s.RealizedPnL)
		c.pnl.WithLabelValues(s.Strategy, "unrealized").Set(s.UnrealizedPnL)
	}
	c.daily.Set(st.DailyPnL)
	if st.PositionReduced {
		c.reduced.Set(1)
	} else {
		c.reduced.Set(0)
	}
}

func (c *Collectors) event(t schema.EventType) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(t.String()).Inc()
}

func (c *Collectors) decision(st schema.StrategyType, code allocator.Reason) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(st.String(), code.String()).Inc()
}

func (c *Collectors) fill(f schema.Fill) {
	if c == nil {
		return
	}
	c.fills.WithLabelValues(f.Strategy.String(), f.Side.String()).Inc()
}

func (c *Collectors) close(st schema.StrategyType, pnl float64) {
	if c == nil {
		return
	}
	outcome := "loss"
	if pnl > 0 {
		outcome = "win"
	}
	c.closes.WithLabelValues(st.String(), outcome).Inc()
}

func (c *Collectors) snapshot(d time.Duration) {
	if c == nil {
		return
	}
	c.snapshotLatency.Observe(d.Seconds())
}

func (c *Collectors) queueDrop() {
	if c == nil {
		return
	}
	c.queueDrops.Inc()
}
