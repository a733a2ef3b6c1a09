package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metahft/internal/schema"
)

func newTestLiquidityTaker(t *testing.T) (*LiquidityTaker, *fakeGateway, *fakeApprover) {
	t.Helper()
	cfg := DefaultLiquidityTakerConfig(testSymbol)
	cfg.TickSize = 1
	gw, ap := &fakeGateway{}, &fakeApprover{}
	l, err := NewLiquidityTaker(cfg, gw, ap)
	require.NoError(t, err)
	return l, gw, ap
}

func TestLiquidityTakerEntry(t *testing.T) {
	t.Run("long", func(t *testing.T) {
		l, gw, ap := newTestLiquidityTaker(t)
		l.OnBoard(book(t0, 1000, 1000, 1001, 900, 100))
		assert.Empty(t, gw.orders)

		l.OnBoard(book(t0.Add(ms(500)), 1002, 1002, 1003, 900, 100))
		require.Len(t, gw.orders, 1)
		req := gw.last().req
		assert.Equal(t, schema.OrderSideBuy, req.Side)
		assert.Equal(t, 1004.0, req.Price)
		assert.Equal(t, int64(100), req.Qty)
		assert.Equal(t, "momentum_long", ap.lastReason())

		l.OnBoard(book(t0.Add(ms(600)), 1003, 1003, 1004, 900, 100))
		assert.Len(t, gw.orders, 1, "cooldown")
	})

	t.Run("short", func(t *testing.T) {
		l, gw, _ := newTestLiquidityTaker(t)
		l.OnBoard(book(t0, 1000, 1000, 1001, 100, 900))
		l.OnBoard(book(t0.Add(ms(500)), 998, 998, 999, 100, 900))
		require.Len(t, gw.orders, 1)
		assert.Equal(t, schema.OrderSideSell, gw.last().req.Side)
		assert.Equal(t, 997.0, gw.last().req.Price)
	})

	t.Run("imbalance disagrees", func(t *testing.T) {
		l, gw, _ := newTestLiquidityTaker(t)
		l.OnBoard(book(t0, 1000, 1000, 1001, 100, 900))
		l.OnBoard(book(t0.Add(ms(500)), 1002, 1002, 1003, 100, 900))
		assert.Empty(t, gw.orders)
	})

	t.Run("mid stands in for missing last", func(t *testing.T) {
		l, gw, _ := newTestLiquidityTaker(t)
		l.OnBoard(book(t0, 0, 1000, 1002, 900, 100))
		l.OnBoard(book(t0.Add(ms(500)), 0, 1002, 1004, 900, 100))
		require.Len(t, gw.orders, 1)
		assert.Equal(t, 1005.0, gw.last().req.Price)
	})
}

func TestLiquidityTakerDynamicExit(t *testing.T) {
	l, gw, ap := newTestLiquidityTaker(t)
	l.OnBoard(book(t0, 1000, 1000, 1001, 900, 100))
	l.OnBoard(book(t0.Add(ms(500)), 1002, 1002, 1003, 900, 100))
	require.Len(t, gw.orders, 1)
	l.OnFill(fill(schema.StrategyLiquidityTaker, "o-1", schema.OrderSideBuy, 1004, 100, t0.Add(ms(700))))

	l.OnBoard(book(t0.Add(ms(800)), 1007, 1007, 1008, 500, 500))
	l.OnBoard(book(t0.Add(ms(900)), 1010, 1010, 1011, 500, 500))
	assert.Len(t, gw.orders, 1)

	// mid falls 2 ticks from 1010.5 while still 4.5 ticks up
	l.OnBoard(book(t0.Add(ms(1000)), 1008, 1008, 1009, 500, 500))
	require.Len(t, gw.orders, 2)
	exit := gw.last().req
	assert.Equal(t, schema.OrderSideSell, exit.Side)
	assert.Equal(t, 1007.0, exit.Price)
	assert.Equal(t, ReasonReversal, ap.lastReason())

	l.OnFill(fill(schema.StrategyLiquidityTaker, "o-2", schema.OrderSideSell, 1007, 100, t0.Add(ms(1100))))
	assert.True(t, l.Position().Flat())
}

func TestLiquidityTakerLegacyExit(t *testing.T) {
	cfg := DefaultLiquidityTakerConfig(testSymbol)
	cfg.TickSize = 1
	cfg.Exit.Dynamic = false
	gw := &fakeGateway{}
	l, err := NewLiquidityTaker(cfg, gw, nil)
	require.NoError(t, err)

	l.OnFill(fill(schema.StrategyLiquidityTaker, "x", schema.OrderSideBuy, 1000, 100, t0))
	l.OnBoard(book(t0.Add(ms(1000)), 999, 999, 1000, 500, 500))
	assert.Empty(t, gw.orders)

	l.OnBoard(book(t0.Add(ms(5000)), 999, 999, 1000, 500, 500))
	require.Len(t, gw.orders, 1)
	assert.Equal(t, 998.0, gw.last().req.Price)
}

func TestLiquidityTakerExitWaitsForFill(t *testing.T) {
	newTimedOut := func(t *testing.T) (*LiquidityTaker, *fakeGateway) {
		cfg := DefaultLiquidityTakerConfig(testSymbol)
		cfg.TickSize = 1
		cfg.Exit.Dynamic = false
		gw := &fakeGateway{}
		l, err := NewLiquidityTaker(cfg, gw, nil)
		require.NoError(t, err)

		l.OnFill(fill(schema.StrategyLiquidityTaker, "x", schema.OrderSideBuy, 1000, 100, t0))
		l.OnBoard(book(t0.Add(ms(5000)), 999, 999, 1000, 500, 500))
		require.Len(t, gw.orders, 1)
		return l, gw
	}

	t.Run("filled status before the fill", func(t *testing.T) {
		l, gw := newTimedOut(t)
		l.OnOrderUpdate(schema.OrderUpdate{OrderID: "o-1", Symbol: testSymbol, Status: schema.OrderStatusFilled, FilledQty: 100})
		l.OnBoard(book(t0.Add(ms(5100)), 999, 999, 1000, 500, 500))
		assert.Len(t, gw.orders, 1, "no second exit while the first fill is in flight")

		l.OnFill(fill(schema.StrategyLiquidityTaker, "o-1", schema.OrderSideSell, 998, 100, t0.Add(ms(5200))))
		assert.True(t, l.Position().Flat())
		l.OnBoard(book(t0.Add(ms(5300)), 999, 999, 1000, 500, 500))
		assert.Len(t, gw.orders, 1)
	})

	t.Run("partial fills keep the slot", func(t *testing.T) {
		l, gw := newTimedOut(t)
		l.OnFill(fill(schema.StrategyLiquidityTaker, "o-1", schema.OrderSideSell, 998, 40, t0.Add(ms(5050))))
		l.OnBoard(book(t0.Add(ms(5100)), 999, 999, 1000, 500, 500))
		assert.Len(t, gw.orders, 1)
		assert.Equal(t, int64(60), l.Position().Qty)

		l.OnFill(fill(schema.StrategyLiquidityTaker, "o-1", schema.OrderSideSell, 998, 60, t0.Add(ms(5150))))
		assert.True(t, l.Position().Flat())
	})

	t.Run("cancelled exit is resent", func(t *testing.T) {
		l, gw := newTimedOut(t)
		l.OnOrderUpdate(schema.OrderUpdate{OrderID: "o-1", Symbol: testSymbol, Status: schema.OrderStatusCancelled})
		l.OnBoard(book(t0.Add(ms(5100)), 999, 999, 1000, 500, 500))
		require.Len(t, gw.orders, 2)
		assert.Equal(t, schema.OrderSideSell, gw.last().req.Side)
		assert.Equal(t, int64(100), gw.last().req.Qty)
	})
}
