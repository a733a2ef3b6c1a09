package chaos

import (
	"math/rand"
	"time"

	"metahft/internal/bus"
	"metahft/internal/schema"

	"github.com/yanun0323/errors"
	"go.uber.org/multierr"
)

// Config controls chaos injection behavior for the simulated venue.
type Config struct {
	Seed         int64   `yaml:"seed"`
	RejectRate   float64 `yaml:"reject_rate"`
	DropFillRate float64 `yaml:"drop_fill_rate"`
	// MaxDelay is counted in snapshots.
	MaxDelay int `yaml:"max_delay"`
}

// Enabled reports whether any rule is active.
func (c Config) Enabled() bool {
	return c.RejectRate > 0 || c.DropFillRate > 0 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	var err error
	if c.RejectRate < 0 || c.RejectRate > 1 {
		err = multierr.Append(err, errors.Errorf("chaos reject_rate must be between 0 and 1, got %v", c.RejectRate))
	}
	if c.DropFillRate < 0 || c.DropFillRate > 1 {
		err = multierr.Append(err, errors.Errorf("chaos drop_fill_rate must be between 0 and 1, got %v", c.DropFillRate))
	}
	if c.MaxDelay < 0 {
		err = multierr.Append(err, errors.Errorf("chaos max_delay must be >= 0, got %d", c.MaxDelay))
	}
	return err
}

type delayed struct {
	ev  bus.Event
	due int
}

// Engine applies chaos rules to venue events. A nil engine passes everything through.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []delayed
	dropped uint64
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Reject decides whether the next order placement is refused.
func (e *Engine) Reject() bool {
	if e == nil {
		return false
	}
	return e.cfg.RejectRate > 0 && e.rng.Float64() < e.cfg.RejectRate
}

// Process applies chaos to a single event and returns the events due now.
// Only fills are dropped or delayed; status updates always pass.
func (e *Engine) Process(ev bus.Event) []bus.Event {
	if e == nil || ev.Header.Type != schema.EventFill {
		return []bus.Event{ev}
	}
	if e.shouldDrop() {
		e.dropped++
		return nil
	}
	if d := e.delay(); d > 0 {
		e.pending = append(e.pending, delayed{ev: ev, due: d})
		return nil
	}
	return []bus.Event{ev}
}

// Advance moves the clock by one snapshot and returns the delayed events now due.
func (e *Engine) Advance() []bus.Event {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	var out []bus.Event
	kept := e.pending[:0]
	for _, p := range e.pending {
		p.due--
		if p.due <= 0 {
			out = append(out, p.ev)
			continue
		}
		kept = append(kept, p)
	}
	e.pending = kept
	return out
}

// Flush returns any buffered events after processing completes.
func (e *Engine) Flush() []bus.Event {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]bus.Event, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p.ev)
	}
	e.pending = nil
	return out
}

// Pending is the number of delayed events.
func (e *Engine) Pending() int {
	if e == nil {
		return 0
	}
	return len(e.pending)
}

// Dropped is the number of fills lost so far.
func (e *Engine) Dropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dropped
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropFillRate > 0 && e.rng.Float64() < e.cfg.DropFillRate
}

func (e *Engine) delay() int {
	if e.cfg.MaxDelay <= 0 {
		return 0
	}
	return e.rng.Intn(e.cfg.MaxDelay + 1)
}
