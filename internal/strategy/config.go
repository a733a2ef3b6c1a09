package strategy

import (
	"go.uber.org/multierr"

	"github.com/yanun0323/errors"
)

// Common holds the settings every strategy carries.
type Common struct {
	Symbol      string  `yaml:"symbol"`
	TickSize    float64 `yaml:"tick_size"`
	LotSize     int64   `yaml:"lot_size"`
	MaxPosition int64   `yaml:"max_position"`
}

func defaultCommon(symbol string) Common {
	return Common{
		Symbol:      symbol,
		TickSize:    0.1,
		LotSize:     100,
		MaxPosition: 100,
	}
}

func (c Common) validate() error {
	var err error
	if c.Symbol == "" {
		err = multierr.Append(err, errors.New("symbol is required"))
	}
	if c.TickSize < 0 {
		err = multierr.Append(err, errors.New("tick_size must be >= 0"))
	}
	if c.LotSize <= 0 {
		err = multierr.Append(err, errors.New("lot_size must be > 0"))
	}
	if c.MaxPosition <= 0 {
		err = multierr.Append(err, errors.New("max_position must be > 0"))
	}
	return err
}
