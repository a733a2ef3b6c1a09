package state

import (
	"os"
	"path/filepath"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/obs"
	"metahft/internal/schema"
	"metahft/internal/strategy/dualengine"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Snapshot is the runtime status report written to disk and published.
type Snapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	Symbol      string             `json:"symbol"`
	LastSeq     uint64             `json:"last_seq"`
	LastEventTs int64              `json:"last_event_ts"`
	Snapshots   uint64             `json:"snapshots"`
	Allocator   allocator.Status   `json:"allocator"`
	Positions   []PositionEntry    `json:"positions"`
	DualEngine  *dualengine.Status `json:"dual_engine,omitempty"`
	Metrics     *obs.Snapshot      `json:"metrics,omitempty"`
}

// PositionEntry is the fill-ledger position of one strategy.
type PositionEntry struct {
	Strategy string `json:"strategy"`
	Qty      int64  `json:"qty"`
	Fills    int64  `json:"fills"`

	kind schema.StrategyType
}

// Marshal encodes the snapshot as indented JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := sonic.ConfigStd.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal status snapshot")
	}
	return data, nil
}

// WriteSnapshot atomically replaces the file at path with the snapshot.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "read %s", path)
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode %s", path)
	}
	return snap, nil
}

// Reconcile checks that the allocator book matches the fill ledger for every
// allocator-managed strategy.
func Reconcile(book allocator.Status, ledger []PositionEntry) error {
	want := make(map[string]int64, len(ledger))
	for _, entry := range ledger {
		want[entry.Strategy] = entry.Qty
	}
	for _, s := range book.Strategies {
		if got := want[s.Strategy]; got != s.Position {
			return errors.Errorf("position mismatch: strategy=%s allocator=%d fills=%d", s.Strategy, s.Position, got)
		}
	}
	return nil
}
