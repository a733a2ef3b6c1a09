package main

import (
	"path/filepath"
	"testing"
	"time"

	"metahft/internal/ops"
	"metahft/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paperConfig(t *testing.T) ops.Config {
	t.Helper()
	cfg, err := ops.Load("")
	require.NoError(t, err)
	cfg.Feed.Generator.Realtime = false
	cfg.Feed.Generator.Count = 400
	cfg.Feed.Generator.Seed = 42
	cfg.Feed.Generator.Start = time.Date(2026, 3, 2, 9, 0, 0, 0, cfg.Location())
	cfg.Bus.Block = true
	cfg.Metrics.Addr = ""
	cfg.Status.Path = filepath.Join(t.TempDir(), "status.json")
	return cfg
}

func TestRunPaperSession(t *testing.T) {
	cfg := paperConfig(t)
	cfg.DualEngine.Enabled = true
	require.NoError(t, run(t.Context(), cfg))

	snap, err := state.ReadSnapshot(cfg.Status.Path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Symbol, snap.Symbol)
	assert.EqualValues(t, 400, snap.Snapshots)
	assert.NotNil(t, snap.DualEngine)
	assert.NotNil(t, snap.Metrics)
	require.NoError(t, state.Reconcile(snap.Allocator, snap.Positions))
}

func TestRunAsyncWithChaos(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Gateway.Async = true
	cfg.Chaos.Seed = 3
	cfg.Chaos.RejectRate = 0.2
	cfg.Chaos.MaxDelay = 2
	require.NoError(t, run(t.Context(), cfg))

	snap, err := state.ReadSnapshot(cfg.Status.Path)
	require.NoError(t, err)
	assert.EqualValues(t, 400, snap.Snapshots)
}

func TestBuildStrategiesHonorsToggles(t *testing.T) {
	cfg := ops.Default()
	cfg.Strategies.OrderFlow.Enabled = false
	cfg.Strategies.TapeReading.Enabled = false

	list, err := buildStrategies(cfg.Strategies, nil, nil)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	cfg.Strategies.MicroGrid.Config.LotSize = 0
	_, err = buildStrategies(cfg.Strategies, nil, nil)
	assert.Error(t, err)
}
