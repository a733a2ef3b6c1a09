package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"metahft/internal/allocator"
	"metahft/internal/bus"
	"metahft/internal/chaos"
	"metahft/internal/core"
	"metahft/internal/feed"
	"metahft/internal/journal"
	"metahft/internal/obs"
	"metahft/internal/og"
	"metahft/internal/ops"
	"metahft/internal/order"
	"metahft/internal/report"
	"metahft/internal/risk"
	"metahft/internal/strategy"
	"metahft/internal/strategy/dualengine"
	"metahft/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config (empty = built-in defaults)")
	profile := flag.Bool("pyroscope", false, "Enable continuous profiling regardless of config")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *profile {
		cfg.Profiling.Enabled = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Infof("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("trader failed: %v", err)
	}
}

func run(ctx context.Context, cfg ops.Config) error {
	if cfg.Profiling.Enabled {
		profiler, err := startProfiler(cfg.Profiling)
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	prom := obs.NewCollectors(cfg.Metrics.Namespace)
	metrics := obs.NewMetrics(prom)

	var trail *journal.Journal
	observers := []allocator.Observer{metrics}
	if cfg.Journal.Enabled {
		j, closeDB, err := openJournal(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer closeDB()
		trail = j
		observers = append(observers, j)
	}

	alloc, err := allocator.New(cfg.Allocator, allocator.WithObserver(allocator.MultiObserver(observers...)))
	if err != nil {
		return errors.Wrap(err, "build allocator")
	}

	queue := bus.NewQueue(cfg.Bus.QueueSize)

	var faults *chaos.Engine
	if cfg.Chaos.Enabled() {
		if faults, err = chaos.NewEngine(cfg.Chaos); err != nil {
			return errors.Wrap(err, "build chaos engine")
		}
		logs.Warnf("chaos enabled, reject %.2f, drop fill %.2f, max delay %d", cfg.Chaos.RejectRate, cfg.Chaos.DropFillRate, cfg.Chaos.MaxDelay)
	}
	venue := og.NewSimVenue(cfg.Symbol, faults, queue.NextSeq)

	var (
		dispatcher og.Dispatcher
		workers    *order.Usecase
	)
	if cfg.Gateway.Async {
		workers, err = order.NewUsecase(cfg.Gateway.Workers, cfg.Gateway.QueueSize, venue, rejectToBus(queue))
		if err != nil {
			return errors.Wrap(err, "build order workers")
		}
		dispatcher = workers
	} else {
		dispatcher = order.NewDirect(ctx, venue)
	}
	guard := risk.NewGuard(cfg.Risk)
	if cfg.Risk.KillSwitch {
		logs.Warnf("risk kill switch is on, every order will be denied")
	}
	gateway := og.NewGateway(cfg.Gateway.GatewayConfig, dispatcher).WithGuard(guard)

	strategies, err := buildStrategies(cfg.Strategies, gateway, alloc)
	if err != nil {
		return err
	}
	opts := []core.Option{
		core.WithStrategies(strategies...),
		core.WithOrderTracker(gateway),
		core.WithVenue(venue),
		core.WithMetrics(metrics),
		core.WithPriceMarker(guard),
	}
	if cfg.DualEngine.Enabled {
		dual, err := dualengine.New(cfg.DualEngine.Config, gateway)
		if err != nil {
			return errors.Wrap(err, "build dual engine")
		}
		opts = append(opts, core.WithDualEngine(dual))
	}
	if trail != nil {
		opts = append(opts, core.WithFillSink(trail))
	}

	sinks := []report.Sink{report.GaugeSink(prom)}
	if cfg.Status.Path != "" {
		sinks = append(sinks, report.FileSink(cfg.Status.Path))
	}
	if cfg.Report.Enabled {
		rdb, err := conn.NewRedis(ctx, conn.RedisOption{Addr: cfg.Report.Addr, Password: cfg.Report.Password, DB: cfg.Report.DB})
		if err != nil {
			return err
		}
		defer rdb.Close()
		sinks = append(sinks, report.NewRedisSink(rdb, cfg.Report.Channel, cfg.Report.Key, 10*cfg.Status.Interval))
	}
	reporter := report.NewReporter(cfg.Report.Timeout, sinks...)
	opts = append(opts, core.WithStatusHook(cfg.Status.Interval, reporter.Offer))

	engine, err := core.New(cfg.Symbol, alloc, opts...)
	if err != nil {
		return errors.Wrap(err, "build runtime")
	}

	source, err := feed.New(cfg.Symbol, cfg.Feed)
	if err != nil {
		return errors.Wrap(err, "build feed")
	}
	var tape *feed.TapeWriter
	if cfg.Feed.Record != "" {
		if tape, err = feed.CreateTape(cfg.Feed.Record); err != nil {
			return err
		}
		defer func() {
			if err := tape.Close(); err != nil {
				logs.Errorf("close tape, err: %+v", err)
			}
		}()
	}

	logs.Infof("trader starting, symbol: %s, strategies: %d, dual engine: %v, feed: %s, async orders: %v",
		cfg.Symbol, len(strategies), cfg.DualEngine.Enabled, cfg.Feed.Kind, cfg.Gateway.Async)

	// The runtime stops when the feed is exhausted or ctx is done. Reporter and
	// journal outlive it so the final status and the last fills are written.
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	tailCtx, stopTail := context.WithCancel(context.WithoutCancel(ctx))
	defer stopTail()

	g, gctx := errgroup.WithContext(runCtx)
	var tail errgroup.Group
	tail.Go(func() error { return reporter.Run(tailCtx) })
	if trail != nil {
		tail.Go(func() error { return trail.Run(tailCtx) })
	}
	if workers != nil {
		workers.Run(gctx)
	}

	g.Go(func() error {
		defer stopRun()
		defer stopTail()
		engine.Run(gctx, queue)
		return nil
	})
	g.Go(func() error {
		defer queue.Close()
		handler := feed.Publisher(gctx, queue, metrics, cfg.Bus.Block, time.Now)
		if err := source.Run(gctx, feed.Recording(tape, feed.Filter(cfg.Symbol, handler))); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "feed stopped")
		}
		logs.Infof("feed exhausted, draining queue (%d events)", queue.Len())
		return nil
	})
	if cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, cfg.Metrics.Addr, prom.Handler())
	}

	err = g.Wait()
	_ = tail.Wait()
	if workers != nil {
		<-workers.Done()
	}

	st := alloc.Status()
	logs.Infof("trader stopped, trades: %d, realized: %.0f, daily: %.0f, rejected orders: %d, journal dropped: %d",
		st.TradeCount, st.TotalRealizedPnL, st.DailyPnL, gateway.Rejected(), journalDropped(trail))
	return err
}

func buildStrategies(cfg ops.StrategiesConfig, gw strategy.Gateway, approver strategy.Approver) ([]strategy.Strategy, error) {
	var list []strategy.Strategy
	add := func(enabled bool, name string, build func() (strategy.Strategy, error)) error {
		if !enabled {
			return nil
		}
		s, err := build()
		if err != nil {
			return errors.Wrapf(err, "build %s", name)
		}
		list = append(list, s)
		return nil
	}

	steps := []error{
		add(cfg.MarketMaking.Enabled, "market_making", func() (strategy.Strategy, error) {
			return strategy.NewMarketMaking(cfg.MarketMaking.Config, gw, approver)
		}),
		add(cfg.LiquidityTaker.Enabled, "liquidity_taker", func() (strategy.Strategy, error) {
			return strategy.NewLiquidityTaker(cfg.LiquidityTaker.Config, gw, approver)
		}),
		add(cfg.OrderFlow.Enabled, "order_flow", func() (strategy.Strategy, error) {
			return strategy.NewOrderFlow(cfg.OrderFlow.Config, gw, approver)
		}),
		add(cfg.MicroGrid.Enabled, "micro_grid", func() (strategy.Strategy, error) {
			return strategy.NewMicroGrid(cfg.MicroGrid.Config, gw, approver)
		}),
		add(cfg.ShortMomentum.Enabled, "short_momentum", func() (strategy.Strategy, error) {
			return strategy.NewShortMomentum(cfg.ShortMomentum.Config, gw, approver)
		}),
		add(cfg.TapeReading.Enabled, "tape_reading", func() (strategy.Strategy, error) {
			return strategy.NewTapeReading(cfg.TapeReading.Config, gw, approver)
		}),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}

// rejectToBus turns an asynchronous venue failure into a REJECTED update so
// the owning strategy frees its order slot on the runtime goroutine.
func rejectToBus(q *bus.Queue) order.FailureHandler {
	return func(req order.Request, err error) {
		u, ok := og.RejectedUpdate(req, time.Now())
		if !ok {
			return
		}
		if perr := q.TryPublish(bus.UpdateEvent(q.NextSeq(), u)); perr != nil {
			logs.Errorf("publish rejection of %s, err: %+v", req.OrderID, perr)
		}
	}
}

func openJournal(ctx context.Context, cfg ops.JournalConfig) (*journal.Journal, func(), error) {
	pg, err := conn.NewPostgres(ctx, conn.PostgresOption{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
		Params:   map[string]string{"application_name": "metahft"},
	})
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := pg.Close(); err != nil {
			logs.Errorf("close journal db, err: %+v", err)
		}
	}
	store := journal.NewGormStore(pg.DB())
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	j, err := journal.New(store, cfg.QueueSize)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return j, closeDB, nil
}

func journalDropped(j *journal.Journal) uint64 {
	if j == nil {
		return 0
	}
	return j.Dropped()
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logs.Infof("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrapf(err, "metrics server %s", addr)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return profiler, nil
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
