package feed

import (
	"time"

	"metahft/pkg/exception"

	"github.com/yanun0323/errors"
	"go.uber.org/multierr"
)

const (
	KindGenerator = "generator"
	KindTape      = "tape"
)

// Config selects and configures the snapshot source.
type Config struct {
	Kind      string          `yaml:"kind"`
	Generator GeneratorConfig `yaml:"generator"`
	Tape      TapeConfig      `yaml:"tape"`
	// Record appends every produced snapshot to this tape file when set.
	Record string `yaml:"record"`
}

// GeneratorConfig drives the synthetic random-walk book.
type GeneratorConfig struct {
	BasePrice     float64       `yaml:"base_price"`
	TickSize      float64       `yaml:"tick_size"`
	Levels        int           `yaml:"levels"`
	BaseQty       int64         `yaml:"base_qty"`
	Volatility    float64       `yaml:"volatility"`
	MeanReversion float64       `yaml:"mean_reversion"`
	Interval      time.Duration `yaml:"interval"`
	Count         int           `yaml:"count"`
	Realtime      bool          `yaml:"realtime"`
	Seed          int64         `yaml:"seed"`
	Start         time.Time     `yaml:"start"`
}

// TapeConfig replays a JSON-lines snapshot file.
type TapeConfig struct {
	Path string `yaml:"path"`
	// Speed 1 replays in recorded time, 0 replays as fast as possible.
	Speed float64 `yaml:"speed"`
}

// DefaultConfig generates a calm book around 1000 yen with 0.1 yen ticks.
func DefaultConfig() Config {
	return Config{
		Kind: KindGenerator,
		Generator: GeneratorConfig{
			BasePrice:     1000,
			TickSize:      0.1,
			Levels:        5,
			BaseQty:       100,
			Volatility:    1.0,
			MeanReversion: 0.01,
			Interval:      200 * time.Millisecond,
			Realtime:      true,
		},
	}
}

func (c Config) Validate() error {
	var err error
	switch c.Kind {
	case KindGenerator:
		err = multierr.Append(err, c.Generator.Validate())
	case KindTape:
		if c.Tape.Path == "" {
			err = multierr.Append(err, errors.Wrap(exception.ErrFeedInvalidConfig, "tape path is empty"))
		}
		if c.Tape.Speed < 0 {
			err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "tape speed must be >= 0, got %v", c.Tape.Speed))
		}
	default:
		err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "unknown feed kind %q", c.Kind))
	}
	return err
}

func (c GeneratorConfig) Validate() error {
	var err error
	if c.BasePrice <= 0 {
		err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "base_price must be > 0, got %v", c.BasePrice))
	}
	if c.TickSize <= 0 {
		err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "tick_size must be > 0, got %v", c.TickSize))
	}
	if c.Levels <= 0 {
		err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "levels must be > 0, got %d", c.Levels))
	}
	if c.BaseQty <= 0 {
		err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "base_qty must be > 0, got %d", c.BaseQty))
	}
	if c.Volatility < 0 || c.MeanReversion < 0 || c.MeanReversion > 1 {
		err = multierr.Append(err, errors.Wrap(exception.ErrFeedInvalidConfig, "volatility must be >= 0 and mean_reversion in [0, 1]"))
	}
	if c.Interval <= 0 {
		err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "interval must be > 0, got %s", c.Interval))
	}
	if c.Count < 0 {
		err = multierr.Append(err, errors.Wrapf(exception.ErrFeedInvalidConfig, "count must be >= 0, got %d", c.Count))
	}
	return err
}
