package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"metahft/internal/bus"
	"metahft/internal/obs"
	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func testGeneratorConfig() GeneratorConfig {
	cfg := DefaultConfig().Generator
	cfg.Realtime = false
	cfg.Count = 20
	cfg.Seed = 7
	cfg.Start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return cfg
}

func collect(out *[]*schema.MarketSnapshot) Handler {
	return func(s *schema.MarketSnapshot) error {
		*out = append(*out, s)
		return nil
	}
}

func TestGeneratorProducesValidBooks(t *testing.T) {
	cfg := testGeneratorConfig()
	g, err := NewGenerator("7203", cfg)
	require.NoError(t, err)

	var got []*schema.MarketSnapshot
	require.NoError(t, g.Run(t.Context(), collect(&got)))
	require.Len(t, got, cfg.Count)

	var prevVolume int64
	for i, s := range got {
		require.NoError(t, s.Validate())
		assert.Equal(t, "7203", s.Symbol)
		assert.Equal(t, cfg.Start.Add(time.Duration(i)*cfg.Interval), s.Timestamp)
		assert.True(t, s.HasQuotes())
		assert.Less(t, s.BestBid, s.BestAsk)
		assert.Len(t, s.Bids, cfg.Levels)
		assert.Len(t, s.Asks, cfg.Levels)
		assert.Equal(t, s.BestBid, s.Bids[0].Price)
		assert.Equal(t, s.BestAsk, s.Asks[0].Price)
		assert.Greater(t, s.TradingVolume, prevVolume)
		prevVolume = s.TradingVolume
	}
}

func TestGeneratorDeterministicWithSeed(t *testing.T) {
	a, err := NewGenerator("7203", testGeneratorConfig())
	require.NoError(t, err)
	b, err := NewGenerator("7203", testGeneratorConfig())
	require.NoError(t, err)

	var left, right []*schema.MarketSnapshot
	require.NoError(t, a.Run(t.Context(), collect(&left)))
	require.NoError(t, b.Run(t.Context(), collect(&right)))
	assert.Equal(t, left, right)
}

func TestGeneratorRealtimeUsesClock(t *testing.T) {
	cfg := testGeneratorConfig()
	cfg.Realtime = true
	cfg.Count = 3
	g, err := NewGenerator("7203", cfg)
	require.NoError(t, err)
	clock := &fakeClock{}
	g.WithClock(clock)

	var got []*schema.MarketSnapshot
	require.NoError(t, g.Run(t.Context(), collect(&got)))
	assert.Len(t, got, 3)
	assert.Equal(t, []time.Duration{cfg.Interval, cfg.Interval, cfg.Interval}, clock.slept)
}

func TestGeneratorStopsOnContext(t *testing.T) {
	cfg := testGeneratorConfig()
	cfg.Count = 0
	g, err := NewGenerator("7203", cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	n := 0
	err = g.Run(ctx, func(*schema.MarketSnapshot) error {
		n++
		if n == 5 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, n)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Generator.TickSize = 0
	cfg.Generator.Levels = 0
	assert.True(t, errors.Is(cfg.Validate(), exception.ErrFeedInvalidConfig))

	cfg = DefaultConfig()
	cfg.Kind = KindTape
	assert.True(t, errors.Is(cfg.Validate(), exception.ErrFeedInvalidConfig))

	cfg.Kind = "socket"
	assert.True(t, errors.Is(cfg.Validate(), exception.ErrFeedInvalidConfig))
}

func TestTapeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapes", "7203.jsonl")
	w, err := CreateTape(path)
	require.NoError(t, err)

	g, err := NewGenerator("7203", testGeneratorConfig())
	require.NoError(t, err)
	var produced []*schema.MarketSnapshot
	require.NoError(t, g.Run(t.Context(), Recording(w, collect(&produced))))
	require.NoError(t, w.Close())

	tape, err := NewTape(TapeConfig{Path: path, Speed: 2})
	require.NoError(t, err)
	clock := &fakeClock{}
	tape.WithClock(clock)

	var replayed []*schema.MarketSnapshot
	require.NoError(t, tape.Run(t.Context(), collect(&replayed)))
	require.Len(t, replayed, len(produced))
	for i := range produced {
		assert.True(t, produced[i].Timestamp.Equal(replayed[i].Timestamp))
		assert.Equal(t, produced[i].BestBid, replayed[i].BestBid)
		assert.Equal(t, produced[i].Bids, replayed[i].Bids)
	}
	require.Len(t, clock.slept, len(produced)-1)
	assert.Equal(t, 100*time.Millisecond, clock.slept[0])
}

func TestTapeDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	body := `{"symbol":"7203","timestamp":"2026-03-02T09:00:00Z","best_bid":1000,"best_ask":1000.1}` + "\n\n{oops\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	tape, err := NewTape(TapeConfig{Path: path})
	require.NoError(t, err)
	var got []*schema.MarketSnapshot
	err = tape.Run(t.Context(), collect(&got))
	require.True(t, errors.Is(err, exception.ErrFeedDecode))
	assert.Len(t, got, 1)
}

func TestTapeMissingFile(t *testing.T) {
	tape, err := NewTape(TapeConfig{Path: filepath.Join(t.TempDir(), "missing.jsonl")})
	require.NoError(t, err)
	assert.Error(t, tape.Run(t.Context(), func(*schema.MarketSnapshot) error { return nil }))

	_, err = NewTape(TapeConfig{})
	assert.True(t, errors.Is(err, exception.ErrFeedInvalidConfig))
}

func TestNewSelectsSource(t *testing.T) {
	src, err := New("7203", DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &Generator{}, src)

	cfg := DefaultConfig()
	cfg.Kind = KindTape
	cfg.Tape.Path = "replay.jsonl"
	src, err = New("7203", cfg)
	require.NoError(t, err)
	assert.IsType(t, &Tape{}, src)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	q := bus.NewQueue(1)
	metrics := obs.NewMetrics(nil)
	recv := time.Date(2026, 3, 2, 9, 0, 1, 0, time.UTC)
	publish := Publisher(t.Context(), q, metrics, false, func() time.Time { return recv })

	s := &schema.MarketSnapshot{Symbol: "7203", Timestamp: recv.Add(-time.Millisecond), BestBid: 1000, BestAsk: 1000.1}
	require.NoError(t, publish(s))
	require.NoError(t, publish(s))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(1), metrics.Snapshot().QueueDrops)

	q.Close()
	assert.True(t, errors.Is(publish(s), bus.ErrQueueClosed))
	assert.Equal(t, uint64(1), metrics.Snapshot().QueueClosed)
}

func TestFilterSkipsOtherSymbols(t *testing.T) {
	var got []*schema.MarketSnapshot
	h := Filter("7203", collect(&got))
	require.NoError(t, h(&schema.MarketSnapshot{Symbol: "6758"}))
	require.NoError(t, h(&schema.MarketSnapshot{Symbol: "7203"}))
	require.Len(t, got, 1)
	assert.Equal(t, "7203", got[0].Symbol)
}
