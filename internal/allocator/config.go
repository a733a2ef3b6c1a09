package allocator

import (
	"math"
	"time"

	"github.com/yanun0323/errors"
	"go.uber.org/multierr"

	"metahft/internal/schema"
)

const weightTolerance = 1e-6

// Config holds the global capital and loss limits of the allocator.
type Config struct {
	TotalCapital      float64            `yaml:"total_capital"`
	MaxTotalPosition  int64              `yaml:"max_total_position"`
	DailyLossLimit    float64            `yaml:"daily_loss_limit"`
	StrategyLossLimit float64            `yaml:"strategy_loss_limit"`
	ProfitTarget      float64            `yaml:"profit_target"`
	ReduceRatio       float64            `yaml:"position_reduce_ratio"`
	PerformanceWindow int                `yaml:"performance_window"`
	RebalanceInterval int                `yaml:"rebalance_interval"`
	MinPosition       int64              `yaml:"min_position"`
	MinSamples        int                `yaml:"min_samples"`
	Weights           map[string]float64 `yaml:"weights"`

	// Location decides where the trading day rolls over. Defaults to time.Local.
	Location *time.Location `yaml:"-"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TotalCapital:      15_000_000,
		MaxTotalPosition:  400,
		DailyLossLimit:    500_000,
		StrategyLossLimit: 100_000,
		ProfitTarget:      200_000,
		ReduceRatio:       0.5,
		PerformanceWindow: 100,
		RebalanceInterval: 50,
		MinPosition:       100,
		MinSamples:        10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PerformanceWindow == 0 {
		c.PerformanceWindow = def.PerformanceWindow
	}
	if c.RebalanceInterval == 0 {
		c.RebalanceInterval = def.RebalanceInterval
	}
	if c.MinPosition == 0 {
		c.MinPosition = def.MinPosition
	}
	if c.MinSamples == 0 {
		c.MinSamples = def.MinSamples
	}
	if c.ReduceRatio == 0 {
		c.ReduceRatio = def.ReduceRatio
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	if c.TotalCapital <= 0 {
		err = multierr.Append(err, errors.New("total_capital must be > 0"))
	}
	if c.MaxTotalPosition <= 0 {
		err = multierr.Append(err, errors.New("max_total_position must be > 0"))
	}
	if c.DailyLossLimit <= 0 {
		err = multierr.Append(err, errors.New("daily_loss_limit must be > 0"))
	}
	if c.StrategyLossLimit <= 0 {
		err = multierr.Append(err, errors.New("strategy_loss_limit must be > 0"))
	}
	if c.ProfitTarget <= 0 {
		err = multierr.Append(err, errors.New("profit_target must be > 0"))
	}
	if c.ReduceRatio < 0 || c.ReduceRatio > 1 {
		err = multierr.Append(err, errors.New("position_reduce_ratio must be between 0 and 1"))
	}
	if c.PerformanceWindow < 0 {
		err = multierr.Append(err, errors.New("performance_window must be >= 0"))
	}
	if c.RebalanceInterval < 0 {
		err = multierr.Append(err, errors.New("rebalance_interval must be >= 0"))
	}
	if c.MinPosition < 0 {
		err = multierr.Append(err, errors.New("min_position must be >= 0"))
	}
	if _, werr := c.resolveWeights(); werr != nil {
		err = multierr.Append(err, werr)
	}
	return err
}

// resolveWeights maps configured names to strategy types. An empty map
// splits capital evenly across the ensemble.
func (c Config) resolveWeights() (map[schema.StrategyType]float64, error) {
	types := schema.Ensemble()
	out := make(map[schema.StrategyType]float64, len(types))
	if len(c.Weights) == 0 {
		for _, st := range types {
			out[st] = 1 / float64(len(types))
		}
		return out, nil
	}

	for _, st := range types {
		out[st] = 0
	}
	sum := 0.0
	for name, w := range c.Weights {
		st, err := schema.ParseStrategyType(name)
		if err != nil {
			return nil, errors.Wrap(err, "resolve weights")
		}
		if !st.IsEnsemble() {
			return nil, errors.Errorf("weight for %s: strategy is not allocator managed", name)
		}
		if w < 0 || math.IsNaN(w) {
			return nil, errors.Errorf("weight for %s must be >= 0, got %v", name, w)
		}
		out[st] = w
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, errors.Errorf("weights must sum to 1, got %v", sum)
	}
	return out, nil
}
