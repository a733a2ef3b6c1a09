package risk

import (
	"testing"

	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func req(typ schema.OrderType, price float64, qty int64) schema.OrderRequest {
	return schema.OrderRequest{
		Symbol:   "7203",
		Side:     schema.OrderSideBuy,
		Type:     typ,
		Price:    price,
		Qty:      qty,
		Strategy: schema.StrategyLiquidityTaker,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Config{}.Validate())
	assert.Error(t, Config{MaxOrderQty: -1}.Validate())
	assert.Error(t, Config{MaxOrderNotional: -1}.Validate())
	assert.Error(t, Config{MaxPriceDeviationBps: -1}.Validate())
}

func TestGuardEvaluate(t *testing.T) {
	g := NewGuard(Config{MaxOrderQty: 1000, MaxOrderNotional: 500_000, MaxPriceDeviationBps: 100})

	testCases := []struct {
		desc string
		req  schema.OrderRequest
		want Reason
	}{
		{desc: "within limits", req: req(schema.OrderTypeLimit, 2000, 200), want: ReasonNone},
		{desc: "too many shares", req: req(schema.OrderTypeLimit, 2000, 1100), want: ReasonMaxQty},
		{desc: "notional", req: req(schema.OrderTypeLimit, 2000, 300), want: ReasonMaxNotional},
		{desc: "market order uses reference", req: req(schema.OrderTypeMarket, 0, 300), want: ReasonMaxNotional},
		{desc: "below band", req: req(schema.OrderTypeLimit, 1970, 100), want: ReasonPriceBand},
		{desc: "above band", req: req(schema.OrderTypeLimit, 2030, 100), want: ReasonPriceBand},
		{desc: "market ignores band", req: req(schema.OrderTypeMarket, 0, 100), want: ReasonNone},
	}

	g.Mark(2000)
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, g.Evaluate(tc.req), "got %s", g.Evaluate(tc.req))
		})
	}
}

func TestGuardWithoutReference(t *testing.T) {
	g := NewGuard(Config{MaxOrderNotional: 100_000, MaxPriceDeviationBps: 10})
	assert.Zero(t, g.Reference())
	assert.Equal(t, ReasonNone, g.Evaluate(req(schema.OrderTypeLimit, 900, 100)), "no band before the first mark")
	assert.Equal(t, ReasonNone, g.Evaluate(req(schema.OrderTypeMarket, 0, 1000)))

	g.Mark(0)
	g.Mark(-1)
	assert.Zero(t, g.Reference())
	g.Mark(1000)
	assert.Equal(t, 1000.0, g.Reference())
	assert.Equal(t, ReasonMaxNotional, g.Evaluate(req(schema.OrderTypeMarket, 0, 1000)))
}

func TestGuardKillSwitch(t *testing.T) {
	g := NewGuard(Config{KillSwitch: true})
	assert.Equal(t, ReasonKillSwitch, g.Evaluate(req(schema.OrderTypeLimit, 1000, 100)))

	g.Resume()
	assert.NoError(t, g.Check(req(schema.OrderTypeLimit, 1000, 100)))

	g.Kill()
	err := g.Check(req(schema.OrderTypeLimit, 1000, 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrOrderRiskDenied))
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "price_band", ReasonPriceBand.String())
	assert.Equal(t, "unknown", Reason(99).String())
}
