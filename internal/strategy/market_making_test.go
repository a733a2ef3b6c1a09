package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metahft/internal/schema"
)

func newTestMarketMaking(t *testing.T) (*MarketMaking, *fakeGateway, *fakeApprover) {
	t.Helper()
	cfg := DefaultMarketMakingConfig(testSymbol)
	cfg.TickSize = 1
	gw, ap := &fakeGateway{}, &fakeApprover{}
	m, err := NewMarketMaking(cfg, gw, ap)
	require.NoError(t, err)
	return m, gw, ap
}

func TestMarketMakingQuotes(t *testing.T) {
	m, gw, _ := newTestMarketMaking(t)

	m.OnBoard(book(t0, 1000, 1000, 1001, 500, 500))
	require.Len(t, gw.orders, 1)
	req := gw.last().req
	assert.Equal(t, schema.OrderSideBuy, req.Side)
	assert.Equal(t, 999.0, req.Price)
	assert.Equal(t, int64(100), req.Qty)
	assert.Equal(t, schema.StrategyMarketMaking, req.Strategy)
	bid, ask := m.Quotes()
	assert.Equal(t, 999.0, bid)
	assert.Zero(t, ask, "flat inventory with no short allowance quotes no ask")

	m.OnBoard(book(t0.Add(ms(100)), 1000, 1000, 1001, 500, 500))
	assert.Len(t, gw.orders, 1, "requote is throttled")

	m.OnBoard(book(t0.Add(ms(600)), 1000, 1000, 1001, 500, 500))
	assert.Len(t, gw.orders, 1, "unchanged target keeps the resting quote")
	assert.Empty(t, gw.cancelled)

	// sample std of {1000,1000,1000,1005} is 2.5 ticks, spread 2 + int(1.25) = 3
	m.OnBoard(book(t0.Add(ms(1200)), 1005, 1005, 1006, 500, 500))
	require.Len(t, gw.orders, 2)
	assert.Equal(t, []string{"o-1"}, gw.cancelled)
	assert.Equal(t, 1004.0, gw.last().req.Price)
}

func TestMarketMakingInventoryAndProfitLock(t *testing.T) {
	m, gw, ap := newTestMarketMaking(t)

	m.OnBoard(book(t0, 1000, 1000, 1001, 500, 500))
	require.Len(t, gw.orders, 1)
	m.OnFill(fill(schema.StrategyMarketMaking, "o-1", schema.OrderSideBuy, 999, 100, t0.Add(ms(300))))
	m.OnOrderUpdate(schema.OrderUpdate{OrderID: "o-1", Symbol: testSymbol, Status: schema.OrderStatusFilled})
	assert.Equal(t, int64(100), m.Position().Qty)

	// long at the cap: bid withdrawn, ask quoted around the skewed mid
	m.OnBoard(book(t0.Add(ms(600)), 1000, 1000, 1001, 500, 500))
	require.Len(t, gw.orders, 2)
	assert.Equal(t, schema.OrderSideSell, gw.last().req.Side)
	assert.Equal(t, 1001.0, gw.last().req.Price)
	bid, _ := m.Quotes()
	assert.Zero(t, bid)

	// price stalls at the tracked best: profit lock sells at best bid
	m.OnBoard(book(t0.Add(ms(700)), 1000, 1000, 1001, 500, 500))
	require.Len(t, gw.orders, 3)
	exit := gw.last().req
	assert.Equal(t, schema.OrderSideSell, exit.Side)
	assert.Equal(t, 1000.0, exit.Price)
	assert.Equal(t, int64(100), exit.Qty)
	assert.Equal(t, ReasonProfitLock, ap.lastReason())

	m.OnBoard(book(t0.Add(ms(800)), 1000, 1000, 1001, 500, 500))
	assert.Len(t, gw.orders, 3, "working exit is not resent")
}

func TestMarketMakingHoldsLosers(t *testing.T) {
	m, _, ap := newTestMarketMaking(t)
	m.OnBoard(book(t0, 1000, 1000, 1001, 500, 500))
	m.OnFill(fill(schema.StrategyMarketMaking, "o-1", schema.OrderSideBuy, 999, 100, t0))
	m.OnOrderUpdate(schema.OrderUpdate{OrderID: "o-1", Symbol: testSymbol, Status: schema.OrderStatusFilled})

	for i := 1; i <= 20; i++ {
		p := 999 - float64(i)
		m.OnBoard(book(t0.Add(ms(600*i)), p, p, p+1, 500, 500))
	}
	for _, c := range ap.calls {
		assert.Equal(t, "quote", c.reason)
	}
	assert.Equal(t, int64(100), m.Position().Qty)
}

func TestMarketMakingAbnormalSpread(t *testing.T) {
	m, gw, _ := newTestMarketMaking(t)
	m.OnBoard(book(t0, 1000, 1000, 1001, 500, 500))
	require.Len(t, gw.orders, 1)

	m.OnBoard(book(t0.Add(ms(600)), 1001, 1001, 1001, 500, 500))
	assert.Equal(t, []string{"o-1"}, gw.cancelled)
	bid, ask := m.Quotes()
	assert.Zero(t, bid)
	assert.Zero(t, ask)
}

func TestMarketMakingIgnoresForeignFills(t *testing.T) {
	m, _, _ := newTestMarketMaking(t)
	m.OnFill(fill(schema.StrategyLiquidityTaker, "x", schema.OrderSideBuy, 1000, 100, t0))
	m.OnFill(schema.Fill{Symbol: "7203", Side: schema.OrderSideBuy, Price: 1000, Qty: 100, Strategy: schema.StrategyMarketMaking})
	assert.True(t, m.Position().Flat())
}

func TestMarketMakingRejected(t *testing.T) {
	m, gw, ap := newTestMarketMaking(t)
	ap.reject = true
	m.OnBoard(book(t0, 1000, 1000, 1001, 500, 500))
	assert.Empty(t, gw.orders)
	assert.Len(t, ap.calls, 1)

	bid, _ := m.Quotes()
	assert.Zero(t, bid)
}

func TestMarketMakingConfigValidate(t *testing.T) {
	cfg := DefaultMarketMakingConfig("")
	cfg.MinSpreadTicks = 0
	cfg.Exit.ReversalTicks = -1
	assert.Error(t, cfg.Validate())

	_, err := NewMarketMaking(cfg, &fakeGateway{}, nil)
	assert.Error(t, err)
}
