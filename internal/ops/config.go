package ops

import (
	"time"
	_ "time/tzdata"

	"metahft/internal/allocator"
	"metahft/internal/chaos"
	"metahft/internal/feed"
	"metahft/internal/og"
	"metahft/internal/risk"
	"metahft/internal/strategy"
	"metahft/internal/strategy/dualengine"
)

const DefaultSymbol = "7203"

// Config is the whole runtime configuration.
type Config struct {
	Symbol   string  `yaml:"symbol"`
	TickSize float64 `yaml:"tick_size"`
	Timezone string  `yaml:"timezone"`

	Allocator  allocator.Config          `yaml:"allocator"`
	Strategies StrategiesConfig          `yaml:"strategies"`
	DualEngine Toggle[dualengine.Config] `yaml:"dual_engine"`
	Gateway    GatewayConfig             `yaml:"gateway"`
	Risk       risk.Config               `yaml:"risk"`
	Chaos      chaos.Config              `yaml:"chaos"`
	Feed       feed.Config               `yaml:"feed"`
	Bus        BusConfig                 `yaml:"bus"`
	Journal    JournalConfig             `yaml:"journal"`
	Report     ReportConfig              `yaml:"report"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Status     StatusConfig              `yaml:"status"`
	Profiling  ProfilingConfig           `yaml:"profiling"`
}

// Toggle wraps a component config with an enabled switch.
type Toggle[T any] struct {
	Enabled bool `yaml:"enabled"`
	Config  T    `yaml:",inline"`
}

type StrategiesConfig struct {
	MarketMaking   Toggle[strategy.MarketMakingConfig]   `yaml:"market_making"`
	LiquidityTaker Toggle[strategy.LiquidityTakerConfig] `yaml:"liquidity_taker"`
	OrderFlow      Toggle[strategy.OrderFlowConfig]      `yaml:"order_flow"`
	MicroGrid      Toggle[strategy.MicroGridConfig]      `yaml:"micro_grid"`
	ShortMomentum  Toggle[strategy.ShortMomentumConfig]  `yaml:"short_momentum"`
	TapeReading    Toggle[strategy.TapeReadingConfig]    `yaml:"tape_reading"`
}

// GatewayConfig adds the dispatch mode on top of the gateway settings.
type GatewayConfig struct {
	og.GatewayConfig `yaml:",inline"`

	// Async hands orders to a worker pool instead of calling the venue inline.
	Async     bool `yaml:"async"`
	Workers   int  `yaml:"workers"`
	QueueSize int  `yaml:"queue_size"`
}

type BusConfig struct {
	QueueSize int `yaml:"queue_size"`
	// Block makes the feed wait for queue space instead of dropping snapshots.
	Block bool `yaml:"block"`
}

type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"ssl_mode"`
	QueueSize   int    `yaml:"queue_size"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type ReportConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Channel  string        `yaml:"channel"`
	Key      string        `yaml:"key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

type StatusConfig struct {
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

type ProfilingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
	AppName       string `yaml:"app_name"`
}

// Default returns a runnable paper-trading setup: generator feed, simulated
// venue, every strategy on and the dual engine off.
func Default() Config {
	symbol := DefaultSymbol
	return Config{
		Symbol:    symbol,
		TickSize:  0.1,
		Timezone:  "Asia/Tokyo",
		Allocator: allocator.DefaultConfig(),
		Strategies: StrategiesConfig{
			MarketMaking:   Toggle[strategy.MarketMakingConfig]{Enabled: true, Config: strategy.DefaultMarketMakingConfig(symbol)},
			LiquidityTaker: Toggle[strategy.LiquidityTakerConfig]{Enabled: true, Config: strategy.DefaultLiquidityTakerConfig(symbol)},
			OrderFlow:      Toggle[strategy.OrderFlowConfig]{Enabled: true, Config: strategy.DefaultOrderFlowConfig(symbol)},
			MicroGrid:      Toggle[strategy.MicroGridConfig]{Enabled: true, Config: strategy.DefaultMicroGridConfig(symbol)},
			ShortMomentum:  Toggle[strategy.ShortMomentumConfig]{Enabled: true, Config: strategy.DefaultShortMomentumConfig(symbol)},
			TapeReading:    Toggle[strategy.TapeReadingConfig]{Enabled: true, Config: strategy.DefaultTapeReadingConfig(symbol)},
		},
		DualEngine: Toggle[dualengine.Config]{Config: dualengine.DefaultConfig(symbol)},
		Gateway: GatewayConfig{
			GatewayConfig: og.GatewayConfig{Session: "paper", RatePerSecond: 50, Burst: 10},
			Workers:       2,
			QueueSize:     1024,
		},
		Risk: risk.DefaultConfig(),
		Feed: feed.DefaultConfig(),
		Bus:  BusConfig{QueueSize: 4096},
		Journal: JournalConfig{
			Host:        "localhost",
			Port:        5432,
			Database:    "metahft",
			SSLMode:     "disable",
			QueueSize:   1024,
			AutoMigrate: true,
		},
		Report: ReportConfig{
			Addr:    "localhost:6379",
			Channel: "metahft:status",
			Key:     "metahft:status:latest",
			Timeout: time.Second,
		},
		Metrics:   MetricsConfig{Addr: ":9108", Namespace: "metahft"},
		Status:    StatusConfig{Path: "data/status.json", Interval: 5 * time.Second},
		Profiling: ProfilingConfig{ServerAddress: "http://localhost:4040", AppName: "metahft.trader"},
	}
}

// normalize pushes the top-level symbol and tick size into every component
// and resolves the trading-day timezone.
func (c *Config) normalize() error {
	s := &c.Strategies
	commons := []*strategy.Common{
		&s.MarketMaking.Config.Common,
		&s.LiquidityTaker.Config.Common,
		&s.OrderFlow.Config.Common,
		&s.MicroGrid.Config.Common,
		&s.ShortMomentum.Config.Common,
		&s.TapeReading.Config.Common,
	}
	for _, common := range commons {
		common.Symbol = c.Symbol
		if c.TickSize > 0 {
			common.TickSize = c.TickSize
		}
	}
	c.DualEngine.Config.Symbol = c.Symbol
	if c.Feed.Generator.TickSize == 0 {
		c.Feed.Generator.TickSize = c.TickSize
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return err
	}
	c.Allocator.Location = loc
	return nil
}

// Location returns the resolved trading-day timezone.
func (c Config) Location() *time.Location {
	if c.Allocator.Location == nil {
		return time.Local
	}
	return c.Allocator.Location
}
