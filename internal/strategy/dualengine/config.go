package dualengine

import (
	"time"

	"go.uber.org/multierr"

	"github.com/yanun0323/errors"
)

type Config struct {
	Symbol string `yaml:"symbol"`

	EMAFast   int `yaml:"ema_fast"`
	EMASlow   int `yaml:"ema_slow"`
	ATRPeriod int `yaml:"atr_period"`
	RSIPeriod int `yaml:"rsi_period"`

	CorePosition int64         `yaml:"core_position"`
	MaxPosition  int64         `yaml:"max_position"`
	CoreInterval time.Duration `yaml:"core_interval"`

	GridLevels        int     `yaml:"grid_levels"`
	GridStepPct       float64 `yaml:"grid_step_pct"`
	GridVolume        int64   `yaml:"grid_volume"`
	FeePerSide        float64 `yaml:"fee_per_side"`
	MinProfitMultiple float64 `yaml:"min_profit_multiple"`

	DynamicExit          bool    `yaml:"dynamic_exit"`
	ActivationTicks      float64 `yaml:"activation_ticks"`
	ReversalTicks        float64 `yaml:"reversal_ticks"`
	TrailActivationTicks float64 `yaml:"trail_activation_ticks"`
	TrailDistanceTicks   float64 `yaml:"trail_distance_ticks"`
	ProfitTakePct        float64 `yaml:"profit_take_pct"`
	PriceTick            float64 `yaml:"price_tick"`
}

func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:               symbol,
		EMAFast:              20,
		EMASlow:              60,
		ATRPeriod:            14,
		RSIPeriod:            14,
		CorePosition:         1000,
		MaxPosition:          2000,
		CoreInterval:         5 * time.Second,
		GridLevels:           3,
		GridStepPct:          0.3,
		GridVolume:           100,
		FeePerSide:           80,
		MinProfitMultiple:    2,
		DynamicExit:          true,
		ActivationTicks:      0.5,
		ReversalTicks:        0.3,
		TrailActivationTicks: 3,
		TrailDistanceTicks:   2,
		ProfitTakePct:        0.5,
		PriceTick:            0.01,
	}
}

func (c Config) Validate() error {
	var err error
	if c.Symbol == "" {
		err = multierr.Append(err, errors.New("symbol is required"))
	}
	if c.EMAFast <= 1 || c.EMASlow <= c.EMAFast {
		err = multierr.Append(err, errors.Errorf("invalid ema windows fast %d slow %d", c.EMAFast, c.EMASlow))
	}
	if c.ATRPeriod <= 0 || c.RSIPeriod <= 0 {
		err = multierr.Append(err, errors.New("atr_period and rsi_period must be > 0"))
	}
	if c.MaxPosition <= 0 || c.CorePosition < 0 {
		err = multierr.Append(err, errors.New("max_position must be > 0 and core_position >= 0"))
	}
	if c.GridStepPct <= 0 {
		err = multierr.Append(err, errors.New("grid_step_pct must be > 0"))
	}
	if c.PriceTick <= 0 {
		err = multierr.Append(err, errors.New("price_tick must be > 0"))
	}
	return err
}

// window is the number of prices kept for indicators.
func (c Config) window() int {
	return max(200, 3*c.EMASlow)
}

// minData is the number of prices needed before any signal.
func (c Config) minData() int {
	return max(c.EMASlow, c.RSIPeriod) + 2
}

// minSellPrice is the lowest grid sell that clears round-trip fees times the profit multiple.
func (c Config) minSellPrice(avg float64) float64 {
	if avg <= 0 || c.GridVolume <= 0 {
		return 0
	}
	return avg + c.FeePerSide*2*c.MinProfitMultiple/float64(c.GridVolume)
}
