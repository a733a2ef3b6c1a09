package state

import (
	"path/filepath"
	"testing"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/schema"
	"metahft/internal/strategy/dualengine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionReducer(t *testing.T) {
	r := NewPositionReducer()
	assert.Equal(t, int64(100), r.ApplyFill(schema.Fill{Strategy: schema.StrategyMicroGrid, Side: schema.OrderSideBuy, Qty: 100}))
	assert.Equal(t, int64(-200), r.ApplyFill(schema.Fill{Strategy: schema.StrategyMarketMaking, Side: schema.OrderSideSell, Qty: 200}))
	assert.Equal(t, int64(0), r.ApplyFill(schema.Fill{Strategy: schema.StrategyMicroGrid, Side: schema.OrderSideSell, Qty: 100}))

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, int64(-200), r.Position(schema.StrategyMarketMaking))

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "market_making", entries[0].Strategy)
	assert.Equal(t, "micro_grid", entries[1].Strategy)
	assert.Equal(t, int64(2), entries[1].Fills)
}

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status", "status.json")
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Timestamp: at,
		Symbol:    "9984",
		LastSeq:   42,
		Allocator: allocator.Status{TotalPosition: 100, TradeCount: 3},
		Positions: []PositionEntry{{Strategy: "micro_grid", Qty: 100, Fills: 3}},
		DualEngine: &dualengine.Status{
			Position: 1000,
		},
	}
	require.NoError(t, WriteSnapshot(path, snap))
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.True(t, at.Equal(got.Timestamp))
	assert.Equal(t, uint64(42), got.LastSeq)
	assert.Equal(t, int64(100), got.Allocator.TotalPosition)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, int64(100), got.Positions[0].Qty)
	require.NotNil(t, got.DualEngine)
	assert.Equal(t, int64(1000), got.DualEngine.Position)
	assert.Nil(t, got.Metrics)

	_, err = ReadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	book := allocator.Status{Strategies: []allocator.StrategyStatus{
		{Strategy: "market_making", Position: 100},
		{Strategy: "order_flow", Position: 0},
	}}
	assert.NoError(t, Reconcile(book, []PositionEntry{{Strategy: "market_making", Qty: 100}}))

	err := Reconcile(book, []PositionEntry{{Strategy: "market_making", Qty: 200}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market_making")
}
