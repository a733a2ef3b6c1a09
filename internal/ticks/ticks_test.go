package ticks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSize(t *testing.T) {
	testCases := []struct {
		price float64
		want  float64
	}{
		{1000, 1},
		{3000, 1},
		{3001, 5},
		{5000, 5},
		{12000, 10},
		{30000, 10},
		{45000, 50},
		{50001, 100},
	}
	for _, tc := range testCases {
		assert.Equalf(t, tc.want, Size(tc.price), "price %v", tc.price)
	}
}

func TestRound(t *testing.T) {
	assert.InDelta(t, 1000.2, Round(1000.23, 0.1), 1e-9)
	assert.Equal(t, 4005.0, Round(4006, 5))
	assert.Equal(t, 4010.0, Round(4008, 5))
	// ties go to even
	assert.Equal(t, 1000.0, Round(1000.5, 1))
	assert.Equal(t, 1002.0, Round(1001.5, 1))
	assert.Equal(t, 12.34, Round(12.34, 0))
	assert.Equal(t, 3005.0, RoundBand(3004))
}

func TestPnL(t *testing.T) {
	assert.Equal(t, 2.0, PnL(1000, 1002))
	assert.Equal(t, -2.0, PnL(4000, 3990))
	assert.Zero(t, PnL(0, 10))

	assert.InDelta(t, 3.0, Signed(100, 1000, 1000.3, 0.1), 1e-9)
	assert.InDelta(t, -3.0, Signed(-100, 1000, 1000.3, 0.1), 1e-9)
	assert.Zero(t, Signed(0, 1000, 1001, 0.1))
}

func TestFloorCeil(t *testing.T) {
	assert.InDelta(t, 999.9, Floor(999.95, 0.1), 1e-9)
	assert.InDelta(t, 1000.0, Ceil(999.95, 0.1), 1e-9)
	assert.InDelta(t, 1000.0, Floor(1000.0, 0.1), 1e-9)
	assert.InDelta(t, 1000.0, Ceil(1000.0, 0.1), 1e-9)
}

func TestBetween(t *testing.T) {
	assert.Equal(t, int64(1), Between(999.9, 1000.0, 0.1))
	assert.Equal(t, int64(-3), Between(1000.3, 1000.0, 0.1))
	assert.Zero(t, Between(1, 2, 0))
}
