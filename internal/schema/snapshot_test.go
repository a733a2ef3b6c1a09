package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDepth(t *testing.T) {
	s := &MarketSnapshot{
		Symbol:    "7203",
		Timestamp: time.Unix(1700000000, 0),
		BestBid:   999,
		BestAsk:   1000,
		Bids:      []Level{{999, 300}, {998, 200}, {997, 100}},
		Asks:      []Level{{1000, 100}, {1001, 100}},
	}
	require.NoError(t, s.Validate())

	bid, ask := s.DepthQty(2)
	assert.Equal(t, int64(500), bid)
	assert.Equal(t, int64(200), ask)
	assert.InDelta(t, 300.0/700.0, s.Imbalance(2), 1e-12)
	assert.InDelta(t, 999.5, s.Mid(), 1e-12)

	empty := &MarketSnapshot{Symbol: "7203", Timestamp: time.Unix(1, 0)}
	assert.Zero(t, empty.Imbalance(5))
	assert.Zero(t, empty.Mid())
	assert.False(t, empty.HasQuotes())
}

func TestSnapshotValidate(t *testing.T) {
	require.Error(t, (&MarketSnapshot{}).Validate())
	require.Error(t, (&MarketSnapshot{Symbol: "7203"}).Validate())
}

func TestStrategyTypeNames(t *testing.T) {
	for _, st := range Ensemble() {
		require.True(t, st.IsEnsemble())
		parsed, err := ParseStrategyType(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
	assert.False(t, StrategyDualEngine.IsEnsemble())
	_, err := ParseStrategyType("arbitrage")
	require.Error(t, err)
}

func TestClosingSide(t *testing.T) {
	assert.Equal(t, OrderSideSell, Closing(100))
	assert.Equal(t, OrderSideBuy, Closing(-5))
	assert.Equal(t, OrderSideUnknown, Closing(0))
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPendingCancel.IsTerminal())
}
