package dualengine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metahft/internal/og"
	"metahft/internal/order"
	"metahft/internal/risk"
	"metahft/internal/schema"
	"metahft/internal/strategy"
)

const symbol = "9984"

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type recorder struct {
	orders []schema.OrderRequest
}

func (r *recorder) SendOrder(req schema.OrderRequest) (string, bool) {
	r.orders = append(r.orders, req)
	return fmt.Sprintf("d-%d", len(r.orders)), true
}

func (r *recorder) CancelOrder(string) bool { return true }

var _ strategy.Strategy = (*Engine)(nil)

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *recorder) {
	t.Helper()
	cfg := DefaultConfig(symbol)
	if mutate != nil {
		mutate(&cfg)
	}
	r := &recorder{}
	e, err := New(cfg, r)
	require.NoError(t, err)
	return e, r
}

func snap(i int, price float64) *schema.MarketSnapshot {
	return &schema.MarketSnapshot{
		Symbol:    symbol,
		Timestamp: t0.Add(time.Duration(i) * time.Second),
		LastPrice: price,
		BestBid:   price - 0.1,
		BestAsk:   price + 0.1,
	}
}

func buyFill(price float64, qty int64, at time.Time) schema.Fill {
	return schema.Fill{Symbol: symbol, Side: schema.OrderSideBuy, Price: price, Qty: qty, Strategy: schema.StrategyDualEngine, Timestamp: at}
}

func sellFill(price float64, qty int64, at time.Time) schema.Fill {
	return schema.Fill{Symbol: symbol, Side: schema.OrderSideSell, Price: price, Qty: qty, Strategy: schema.StrategyDualEngine, Timestamp: at}
}

func TestTrendScore(t *testing.T) {
	up, score := trendScore(1000, Indicators{EMAFast: 998, EMASlow: 995, ATR: 5, RSI: 55})
	assert.True(t, up)
	assert.Equal(t, 80.0, score)

	up, score = trendScore(1000, Indicators{EMAFast: 990, EMASlow: 995, ATR: 1, RSI: 80})
	assert.False(t, up)
	assert.Equal(t, 20.0, score)

	up, score = trendScore(1000, Indicators{EMAFast: 990, EMASlow: 995, ATR: 5, RSI: 50})
	assert.True(t, up)
	assert.Equal(t, 50.0, score)

	up, _ = trendScore(1000, Indicators{})
	assert.False(t, up)
}

func TestCoreThenGrid(t *testing.T) {
	e, r := newTestEngine(t, nil)

	need := e.cfg.minData()
	for i := range need - 1 {
		e.OnBoard(snap(i, 1000+0.1*float64(i)))
	}
	assert.Empty(t, r.orders, "no signal before enough data")

	price := 1000 + 0.1*float64(need-1)
	e.OnBoard(snap(need-1, price))
	st := e.Status()
	require.True(t, st.TrendUp, "steady rise scores as an uptrend: %+v", st)
	require.Len(t, r.orders, 1)
	assert.Equal(t, schema.OrderSideBuy, r.orders[0].Side)
	assert.Equal(t, int64(1000), r.orders[0].Qty)
	assert.Equal(t, price, r.orders[0].Price)
	assert.Equal(t, schema.StrategyDualEngine, r.orders[0].Strategy)

	e.OnBoard(snap(need, price+0.1))
	assert.Len(t, r.orders, 1, "one working order at a time")

	f := buyFill(price, 1000, t0.Add(time.Duration(need)*time.Second))
	f.OrderID = "d-1"
	e.OnFill(f)
	e.OnOrderUpdate(schema.OrderUpdate{OrderID: "d-1", Symbol: symbol, Status: schema.OrderStatusFilled})
	assert.Equal(t, int64(1000), e.Status().Position)
	assert.InDelta(t, price, e.Status().AvgCost, 1e-9)
}

func TestCoreWaitsAfterTrade(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.lastTrade = t0
	assert.Nil(t, e.coreSignal(1000, t0.Add(4*time.Second)))
	sig := e.coreSignal(1000, t0.Add(5*time.Second))
	require.NotNil(t, sig)
	assert.Equal(t, "core_position", sig.Reason)

	e.position = 400
	assert.Equal(t, int64(600), e.coreSignal(1000, t0.Add(time.Minute)).Qty)
}

func TestGridSignal(t *testing.T) {
	t.Run("buy below center", func(t *testing.T) {
		e, _ := newTestEngine(t, nil)
		e.center = 1000
		e.position = 1000
		sig := e.gridSignal(994.2)
		require.NotNil(t, sig)
		assert.Equal(t, schema.OrderSideBuy, sig.Side)
		assert.Equal(t, "grid_buy_L2", sig.Reason)
		assert.Equal(t, int64(100), sig.Qty)

		assert.Nil(t, e.gridSignal(996.5), "between levels")
	})

	t.Run("buy blocked at max position", func(t *testing.T) {
		e, _ := newTestEngine(t, nil)
		e.center = 1000
		e.position = 1950
		assert.Nil(t, e.gridSignal(994.2))
	})

	t.Run("sell above center clears fees", func(t *testing.T) {
		e, _ := newTestEngine(t, nil)
		e.center = 1000
		e.position = 1000
		e.avgCost = 990
		sig := e.gridSignal(1005.8)
		require.NotNil(t, sig)
		assert.Equal(t, schema.OrderSideSell, sig.Side)
		assert.Equal(t, "grid_sell_L2", sig.Reason)

		e.avgCost = 1004
		assert.Nil(t, e.gridSignal(1005.8), "below cost plus fees")
	})

	t.Run("recenter", func(t *testing.T) {
		e, _ := newTestEngine(t, nil)
		e.center = 1000
		e.gridSignal(1006.5)
		assert.Equal(t, 1006.5, e.center)
	})
}

func TestMinSellPrice(t *testing.T) {
	cfg := DefaultConfig(symbol)
	assert.InDelta(t, 1003.2, cfg.minSellPrice(1000), 1e-9)
	assert.Zero(t, cfg.minSellPrice(0))
}

func TestDynamicExit(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.OnFill(buyFill(1000, 1000, t0))

	assert.Nil(t, e.exitSignal(999))
	assert.Nil(t, e.exitSignal(1000.01))
	assert.Nil(t, e.exitSignal(1000.05))
	sig := e.exitSignal(1000.01)
	require.NotNil(t, sig)
	assert.Equal(t, schema.OrderSideSell, sig.Side)
	assert.Equal(t, int64(1000), sig.Qty)
	assert.Equal(t, strategy.ReasonReversal, sig.Reason)
}

func TestLegacyExit(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.DynamicExit = false
		c.TrailDistanceTicks = 0
	})
	e.OnFill(buyFill(1000, 100, t0))

	assert.Nil(t, e.exitSignal(1004.99))
	sig := e.exitSignal(1005)
	require.NotNil(t, sig)
	assert.Equal(t, strategy.ReasonTakeProfit, sig.Reason)
}

func TestCostTracking(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	e.OnFill(sellFill(1000, 100, t0))
	assert.Zero(t, e.Status().Position, "sell without cost basis is ignored")

	e.OnFill(buyFill(1000, 100, t0))
	e.OnFill(buyFill(1010, 100, t0))
	assert.InDelta(t, 1005, e.Status().AvgCost, 1e-9)

	e.OnFill(sellFill(1020, 50, t0))
	st := e.Status()
	assert.Equal(t, int64(150), st.Position)
	assert.InDelta(t, 1005, st.AvgCost, 1e-9)

	e.OnFill(sellFill(1020, 150, t0))
	st = e.Status()
	assert.Zero(t, st.Position)
	assert.Zero(t, st.AvgCost)

	e.OnFill(schema.Fill{Symbol: symbol, Side: schema.OrderSideBuy, Price: 1, Qty: 1, Strategy: schema.StrategyMarketMaking})
	assert.Zero(t, e.Status().Position, "ensemble fills are not ours")
}

// warm feeds a steady rise until the engine emits its first core order.
func warm(e *Engine) (next int, price float64) {
	need := e.cfg.minData()
	for i := range need {
		price = 1000 + 0.1*float64(i)
		e.OnBoard(snap(i, price))
	}
	return need, price
}

func TestWorkingOrderWaitsForFill(t *testing.T) {
	t.Run("filled status before the fill", func(t *testing.T) {
		e, r := newTestEngine(t, nil)
		next, price := warm(e)
		require.Len(t, r.orders, 1)

		e.OnOrderUpdate(schema.OrderUpdate{OrderID: "d-1", Symbol: symbol, Status: schema.OrderStatusFilled})
		e.OnBoard(snap(next, price+0.1))
		assert.Len(t, r.orders, 1, "core order is not sent twice")

		f := buyFill(price, 600, t0.Add(time.Duration(next)*time.Second))
		f.OrderID = "d-1"
		e.OnFill(f)
		assert.Equal(t, "d-1", e.working, "400 shares still to book")

		f.Qty = 400
		e.OnFill(f)
		assert.Empty(t, e.working)
		assert.Equal(t, int64(1000), e.Status().Position)
	})

	t.Run("rejected order is released", func(t *testing.T) {
		e, r := newTestEngine(t, nil)
		next, price := warm(e)
		require.Len(t, r.orders, 1)

		e.OnOrderUpdate(schema.OrderUpdate{OrderID: "d-1", Symbol: symbol, Status: schema.OrderStatusRejected})
		assert.Empty(t, e.working)
		e.OnBoard(snap(next, price+0.1))
		require.Len(t, r.orders, 2)
		assert.Equal(t, schema.OrderSideBuy, r.orders[1].Side)
	})

	t.Run("other order updates are ignored", func(t *testing.T) {
		e, _ := newTestEngine(t, nil)
		warm(e)
		e.OnOrderUpdate(schema.OrderUpdate{OrderID: "d-9", Symbol: symbol, Status: schema.OrderStatusCancelled})
		assert.Equal(t, "d-1", e.working)
	})
}

type venueRecorder struct {
	reqs []order.Request
}

func (v *venueRecorder) Handle(req order.Request) error {
	v.reqs = append(v.reqs, req)
	return nil
}

func TestRiskGuardVetoesEngineOrders(t *testing.T) {
	venue := &venueRecorder{}
	guard := risk.NewGuard(risk.Config{KillSwitch: true, MaxOrderQty: 2000})
	gw := og.NewGateway(og.GatewayConfig{Session: "dual"}, venue).WithGuard(guard)
	e, err := New(DefaultConfig(symbol), gw)
	require.NoError(t, err)

	next, price := warm(e)
	assert.Empty(t, venue.reqs, "kill switch blocks the engine without an allocator")
	assert.Empty(t, e.working)
	assert.Equal(t, uint64(1), gw.Rejected())

	guard.Resume()
	e.OnBoard(snap(next, price+0.1))
	require.Len(t, venue.reqs, 1)
	assert.Equal(t, schema.StrategyDualEngine, venue.reqs[0].Order.Strategy)
	assert.Equal(t, int64(1000), venue.reqs[0].Order.Qty)
	assert.Equal(t, venue.reqs[0].OrderID, e.working)
}
