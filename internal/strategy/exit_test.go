package strategy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metahft/internal/schema"
	"metahft/internal/ticks"
)

func TestProfitLock(t *testing.T) {
	t.Run("tracks best then exits on reversal", func(t *testing.T) {
		p := ProfitLock{Reversal: 1.5}
		avg := 1000.0
		step := func(price float64) bool {
			return p.Update(100, ticks.Signed(100, avg, price, 1), price, 1)
		}

		assert.False(t, step(1001))
		best, ok := p.Best()
		require.True(t, ok)
		assert.Equal(t, 1001.0, best)

		assert.False(t, step(1004))
		assert.False(t, step(1003))
		best, _ = p.Best()
		assert.Equal(t, 1004.0, best)

		assert.True(t, step(1002))
	})

	t.Run("zero threshold exits on equal price", func(t *testing.T) {
		p := ProfitLock{}
		assert.False(t, p.Update(100, 2, 1002, 1))
		assert.True(t, p.Update(100, 2, 1002, 1))
	})

	t.Run("short mirror", func(t *testing.T) {
		p := ProfitLock{Reversal: 1}
		avg := 1000.0
		step := func(price float64) bool {
			return p.Update(-100, ticks.Signed(-100, avg, price, 1), price, 1)
		}
		assert.False(t, step(998))
		assert.False(t, step(995))
		assert.True(t, step(996))
	})

	t.Run("activation gates tracking", func(t *testing.T) {
		p := ProfitLock{Activation: 3, Reversal: 1.5}
		assert.False(t, p.Update(100, 2, 1002, 1))
		_, ok := p.Best()
		assert.False(t, ok)
		assert.False(t, p.Update(100, 3, 1003, 1))
		_, ok = p.Best()
		assert.True(t, ok)
	})

	t.Run("never exits at a loss", func(t *testing.T) {
		r := rand.New(rand.NewSource(7))
		for range 200 {
			p := ProfitLock{Reversal: r.Float64() * 2}
			avg := 1000.0
			price := avg
			for range 100 {
				price += float64(r.Intn(5) - 2)
				pnl := ticks.Signed(100, avg, price, 1)
				if p.Update(100, pnl, price, 1) {
					require.Greater(t, pnl, 0.0)
				}
			}
		}
	})

	t.Run("best is monotonic while tracking", func(t *testing.T) {
		r := rand.New(rand.NewSource(11))
		p := ProfitLock{Reversal: 100}
		avg := 1000.0
		price := 1001.0
		prev := 0.0
		for range 500 {
			price = max(1001, price+float64(r.Intn(5)-2))
			p.Update(100, ticks.Signed(100, avg, price, 1), price, 1)
			best, ok := p.Best()
			require.True(t, ok)
			require.GreaterOrEqual(t, best, prev)
			prev = best
		}
	})
}

func TestLegacyExit(t *testing.T) {
	t.Run("stop loss first", func(t *testing.T) {
		l := LegacyExit{StopLoss: 10, TrailActivation: 3, TrailDistance: 2, TakeProfit: 2}
		assert.Equal(t, ReasonStopLoss, l.Update(100, -10, 990, 1))
	})

	t.Run("trailing suppresses take profit", func(t *testing.T) {
		l := LegacyExit{StopLoss: 100, TrailActivation: 3, TrailDistance: 2, TakeProfit: 2}
		assert.Equal(t, "", l.Update(100, 3, 1003, 1))
		assert.Equal(t, "", l.Update(100, 5, 1005, 1))
		assert.Equal(t, "", l.Update(100, 4, 1004, 1))
		assert.Equal(t, ReasonTrailing, l.Update(100, 3, 1003, 1))
	})

	t.Run("take profit before trailing activates", func(t *testing.T) {
		l := LegacyExit{StopLoss: 100, TrailActivation: 3, TrailDistance: 2, TakeProfit: 2}
		assert.Equal(t, "", l.Update(100, 1, 1001, 1))
		assert.Equal(t, ReasonTakeProfit, l.Update(100, 2, 1002, 1))
	})

	t.Run("take profit without trailing", func(t *testing.T) {
		l := LegacyExit{StopLoss: 10, TakeProfit: 5}
		assert.Equal(t, "", l.Update(-100, 4, 996, 1))
		assert.Equal(t, ReasonTakeProfit, l.Update(-100, 5, 995, 1))
	})
}

func TestExitPolicy(t *testing.T) {
	pos := Position{Qty: 100, Avg: 1000, EntryTime: t0}

	t.Run("time stop applies in dynamic mode", func(t *testing.T) {
		e := newExitPolicy(ExitConfig{Dynamic: true, ActivationTicks: 1, TimeStop: 30 * time.Second})
		assert.Equal(t, "", e.Check(pos, 990, 1, t0.Add(29*time.Second)))
		assert.Equal(t, ReasonTimeStop, e.Check(pos, 990, 1, t0.Add(30*time.Second)))
	})

	t.Run("legacy time stop ignored in dynamic mode", func(t *testing.T) {
		e := newExitPolicy(ExitConfig{Dynamic: true, ActivationTicks: 3, LegacyTimeStop: 5 * time.Second})
		assert.Equal(t, "", e.Check(pos, 999, 1, t0.Add(time.Minute)))
	})

	t.Run("legacy time stop", func(t *testing.T) {
		e := newExitPolicy(ExitConfig{TakeProfitTicks: 5, StopLossTicks: 10, LegacyTimeStop: 5 * time.Second})
		assert.Equal(t, "", e.Check(pos, 1001, 1, t0.Add(4*time.Second)))
		assert.Equal(t, ReasonTimeStop, e.Check(pos, 1001, 1, t0.Add(5*time.Second)))
	})

	t.Run("custom reason", func(t *testing.T) {
		e := newExitPolicy(ExitConfig{Dynamic: true, ActivationTicks: 3, ReversalTicks: 1.5, Reason: ReasonReversal})
		assert.Equal(t, "", e.Check(pos, 1003, 1, t0))
		assert.Equal(t, "", e.Check(pos, 1006, 1, t0))
		assert.Equal(t, ReasonReversal, e.Check(pos, 1004, 1, t0))
	})
}

func TestPositionApply(t *testing.T) {
	var p Position
	opened, closed := p.Apply(schema.OrderSideBuy, 1000, 100, t0)
	assert.True(t, opened)
	assert.False(t, closed)

	p.Apply(schema.OrderSideBuy, 1010, 100, t0.Add(time.Second))
	assert.Equal(t, int64(200), p.Qty)
	assert.InDelta(t, 1005, p.Avg, 1e-9)
	assert.Equal(t, t0, p.EntryTime)

	p.Apply(schema.OrderSideSell, 1020, 50, t0)
	assert.Equal(t, int64(150), p.Qty)
	assert.InDelta(t, 1005, p.Avg, 1e-9)

	opened, closed = p.Apply(schema.OrderSideSell, 990, 200, t0.Add(2*time.Second))
	assert.True(t, opened)
	assert.True(t, closed)
	assert.Equal(t, int64(-50), p.Qty)
	assert.Equal(t, 990.0, p.Avg)

	_, closed = p.Apply(schema.OrderSideBuy, 980, 50, t0)
	assert.True(t, closed)
	assert.True(t, p.Flat())
	assert.Zero(t, p.Avg)
}

func TestWindow(t *testing.T) {
	w := newWindow[int](2 * time.Second)
	w.Push(t0, 1)
	w.Push(t0.Add(time.Second), 2)
	w.Push(t0.Add(2*time.Second), 3)
	assert.Equal(t, []int{1, 2, 3}, w.Values())

	w.Push(t0.Add(2500*time.Millisecond), 4)
	assert.Equal(t, []int{2, 3, 4}, w.Values())
	assert.Equal(t, 2, w.First())
	assert.Equal(t, 4, w.Last())

	w.Evict(t0.Add(10 * time.Second))
	assert.Zero(t, w.Len())

	var c cooldown
	c.interval = time.Second
	assert.True(t, c.Ready(t0))
	c.Mark(t0)
	assert.False(t, c.Ready(t0.Add(999*time.Millisecond)))
	assert.True(t, c.Ready(t0.Add(time.Second)))
}
