package ops

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"metahft/internal/feed"
	"metahft/pkg/exception"

	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const envPrefix = "METAHFT_"

// Load decodes the YAML file at path over Default, applies METAHFT_*
// environment overrides (a .env file in the working directory is read first
// when present) and validates the result. An empty path uses the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(exception.ErrConfigRead, "%s, err: %v", path, err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err == nil {
		logs.Infof("loaded .env overrides")
	}
	applyEnv(&cfg, os.Getenv)

	if err := cfg.normalize(); err != nil {
		return Config{}, errors.Wrapf(exception.ErrConfigInvalid, "timezone %q, err: %v", cfg.Timezone, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode strictly decodes YAML into cfg; unknown keys are errors.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return errors.Wrapf(exception.ErrConfigDecode, "%v", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	env := envReader{get: getenv}
	env.setString(&cfg.Symbol, "SYMBOL")
	env.setFloat(&cfg.TickSize, "TICK_SIZE")
	env.setString(&cfg.Timezone, "TIMEZONE")

	env.setString(&cfg.Feed.Kind, "FEED_KIND")
	env.setString(&cfg.Feed.Tape.Path, "FEED_TAPE_PATH")
	env.setString(&cfg.Feed.Record, "FEED_RECORD")
	env.setInt64(&cfg.Feed.Generator.Seed, "FEED_SEED")

	env.setBool(&cfg.Risk.KillSwitch, "RISK_KILL_SWITCH")

	env.setInt64(&cfg.Chaos.Seed, "CHAOS_SEED")
	env.setFloat(&cfg.Chaos.RejectRate, "CHAOS_REJECT_RATE")
	env.setFloat(&cfg.Chaos.DropFillRate, "CHAOS_DROP_FILL_RATE")
	env.setInt(&cfg.Chaos.MaxDelay, "CHAOS_MAX_DELAY")

	env.setBool(&cfg.Journal.Enabled, "JOURNAL_ENABLED")
	env.setString(&cfg.Journal.Host, "JOURNAL_HOST")
	env.setInt(&cfg.Journal.Port, "JOURNAL_PORT")
	env.setString(&cfg.Journal.User, "JOURNAL_USER")
	env.setString(&cfg.Journal.Password, "JOURNAL_PASSWORD")
	env.setString(&cfg.Journal.Database, "JOURNAL_DATABASE")
	env.setString(&cfg.Journal.SSLMode, "JOURNAL_SSL_MODE")

	env.setBool(&cfg.Report.Enabled, "REPORT_ENABLED")
	env.setString(&cfg.Report.Addr, "REPORT_ADDR")
	env.setString(&cfg.Report.Password, "REPORT_PASSWORD")
	env.setInt(&cfg.Report.DB, "REPORT_DB")
	env.setString(&cfg.Report.Channel, "REPORT_CHANNEL")

	env.setString(&cfg.Metrics.Addr, "METRICS_ADDR")
	env.setString(&cfg.Status.Path, "STATUS_PATH")
	env.setDuration(&cfg.Status.Interval, "STATUS_INTERVAL")

	env.setBool(&cfg.Profiling.Enabled, "PYROSCOPE_ENABLED")
	env.setString(&cfg.Profiling.ServerAddress, "PYROSCOPE_ADDR")
}

// envReader mutates a target only when the prefixed variable is set and parses.
type envReader struct {
	get func(string) string
}

func (r envReader) lookup(key string) (string, bool) {
	v := r.get(envPrefix + key)
	return v, v != ""
}

func (r envReader) setString(dst *string, key string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r envReader) setInt(dst *int, key string) {
	if v, ok := r.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			logs.Warnf("ignore %s%s=%q, err: %+v", envPrefix, key, v, err)
		}
	}
}

func (r envReader) setInt64(dst *int64, key string) {
	if v, ok := r.lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		} else {
			logs.Warnf("ignore %s%s=%q, err: %+v", envPrefix, key, v, err)
		}
	}
}

func (r envReader) setFloat(dst *float64, key string) {
	if v, ok := r.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			logs.Warnf("ignore %s%s=%q, err: %+v", envPrefix, key, v, err)
		}
	}
}

func (r envReader) setBool(dst *bool, key string) {
	if v, ok := r.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		} else {
			logs.Warnf("ignore %s%s=%q, err: %+v", envPrefix, key, v, err)
		}
	}
}

func (r envReader) setDuration(dst *time.Duration, key string) {
	if v, ok := r.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			logs.Warnf("ignore %s%s=%q, err: %+v", envPrefix, key, v, err)
		}
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, errors.Wrapf(exception.ErrConfigInvalid, format, args...))
	}
	section := func(name string, e error) {
		if e != nil {
			err = multierr.Append(err, errors.Wrapf(exception.ErrConfigInvalid, "%s: %v", name, e))
		}
	}

	if c.Symbol == "" {
		invalid("symbol is required")
	}
	if c.TickSize <= 0 {
		invalid("tick_size must be > 0, got %v", c.TickSize)
	}
	section("allocator", c.Allocator.Validate())

	s := c.Strategies
	if s.MarketMaking.Enabled {
		section("strategies.market_making", s.MarketMaking.Config.Validate())
	}
	if s.LiquidityTaker.Enabled {
		section("strategies.liquidity_taker", s.LiquidityTaker.Config.Validate())
	}
	if s.OrderFlow.Enabled {
		section("strategies.order_flow", s.OrderFlow.Config.Validate())
	}
	if s.MicroGrid.Enabled {
		section("strategies.micro_grid", s.MicroGrid.Config.Validate())
	}
	if s.ShortMomentum.Enabled {
		section("strategies.short_momentum", s.ShortMomentum.Config.Validate())
	}
	if s.TapeReading.Enabled {
		section("strategies.tape_reading", s.TapeReading.Config.Validate())
	}
	if c.DualEngine.Enabled {
		section("dual_engine", c.DualEngine.Config.Validate())
	}

	if c.Gateway.RatePerSecond < 0 || c.Gateway.Burst < 0 {
		invalid("gateway rate_per_second and burst must be >= 0")
	}
	if c.Gateway.Async && (c.Gateway.Workers <= 0 || c.Gateway.QueueSize <= 0) {
		invalid("gateway workers and queue_size must be > 0 when async")
	}
	section("risk", c.Risk.Validate())
	section("chaos", c.Chaos.Validate())
	section("feed", c.Feed.Validate())
	if c.Feed.Kind == feed.KindTape && c.Feed.Record != "" && c.Feed.Record == c.Feed.Tape.Path {
		invalid("feed.record must differ from feed.tape.path")
	}
	if c.Bus.QueueSize <= 0 {
		invalid("bus.queue_size must be > 0, got %d", c.Bus.QueueSize)
	}
	if c.Journal.Enabled {
		if c.Journal.Database == "" {
			invalid("journal.database is required")
		}
		if c.Journal.QueueSize <= 0 {
			invalid("journal.queue_size must be > 0, got %d", c.Journal.QueueSize)
		}
	}
	if c.Report.Enabled && (c.Report.Addr == "" || c.Report.Channel == "") {
		invalid("report.addr and report.channel are required")
	}
	if c.Status.Interval < 0 {
		invalid("status.interval must be >= 0, got %s", c.Status.Interval)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		invalid("profiling.server_address is required")
	}
	return err
}
