package feed

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const maxLineSize = 1 << 20

// Clock allows deterministic pacing.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Tape replays snapshots recorded one JSON object per line.
type Tape struct {
	cfg   TapeConfig
	clock Clock
}

func NewTape(cfg TapeConfig) (*Tape, error) {
	if cfg.Path == "" {
		return nil, errors.Wrap(exception.ErrFeedInvalidConfig, "tape path is empty")
	}
	if cfg.Speed < 0 {
		return nil, errors.Wrapf(exception.ErrFeedInvalidConfig, "tape speed must be >= 0, got %v", cfg.Speed)
	}
	return &Tape{cfg: cfg, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (t *Tape) WithClock(clock Clock) *Tape {
	if clock != nil {
		t.clock = clock
	}
	return t
}

// Run replays the file in order. Blank lines are skipped; a malformed line
// stops the replay with its line number.
func (t *Tape) Run(ctx context.Context, handler Handler) error {
	file, err := os.Open(t.cfg.Path)
	if err != nil {
		return errors.Wrapf(err, "open tape %s", t.cfg.Path)
	}
	defer file.Close()
	return t.replay(ctx, file, handler)
}

func (t *Tape) replay(ctx context.Context, r io.Reader, handler Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var prev time.Time
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		s := &schema.MarketSnapshot{}
		if err := sonic.ConfigDefault.Unmarshal(raw, s); err != nil {
			return errors.Wrapf(exception.ErrFeedDecode, "%s:%d, err: %v", t.cfg.Path, line, err)
		}
		if err := t.pace(ctx, s.Timestamp, &prev); err != nil {
			return err
		}
		if err := handler(s); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan tape %s", t.cfg.Path)
	}
	return nil
}

func (t *Tape) pace(ctx context.Context, current time.Time, prev *time.Time) error {
	if t.cfg.Speed <= 0 || current.IsZero() {
		return nil
	}
	if !prev.IsZero() {
		if delta := current.Sub(*prev); delta > 0 {
			if err := t.clock.Sleep(ctx, time.Duration(float64(delta)/t.cfg.Speed)); err != nil {
				return err
			}
		}
	}
	*prev = current
	return nil
}

// TapeWriter appends snapshots to a JSON-lines file.
type TapeWriter struct {
	file *os.File
	buf  *bufio.Writer
}

// CreateTape opens path for appending, creating parent directories.
func CreateTape(path string) (*TapeWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create dir %s", dir)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open tape %s", path)
	}
	return &TapeWriter{file: file, buf: bufio.NewWriter(file)}, nil
}

func (w *TapeWriter) Append(s *schema.MarketSnapshot) error {
	data, err := sonic.ConfigDefault.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	if _, err := w.buf.Write(data); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	return w.buf.WriteByte('\n')
}

func (w *TapeWriter) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return errors.Wrap(flushErr, "flush tape")
	}
	return closeErr
}
