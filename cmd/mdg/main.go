package main

import (
	"context"
	"flag"
	"log"
	"time"

	"metahft/internal/feed"
	"metahft/internal/ops"
	"metahft/internal/schema"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	out := flag.String("out", "data/tape.jsonl", "Tape file to append snapshots to")
	symbol := flag.String("symbol", ops.DefaultSymbol, "Symbol to generate")
	count := flag.Int("count", 1000, "Number of snapshots to generate")
	seed := flag.Int64("seed", 1, "Random seed")
	basePrice := flag.Float64("base-price", 1000, "Starting price")
	tickSize := flag.Float64("tick-size", 0.1, "Tick size")
	volatility := flag.Float64("volatility", 1.0, "Random walk step in ticks")
	interval := flag.Duration("interval", 200*time.Millisecond, "Time between snapshots")
	start := flag.String("start", "", "First snapshot time, RFC3339 (default: now)")
	flag.Parse()

	if *count <= 0 {
		log.Fatalf("count must be > 0")
	}

	cfg := feed.DefaultConfig().Generator
	cfg.BasePrice = *basePrice
	cfg.TickSize = *tickSize
	cfg.Volatility = *volatility
	cfg.Interval = *interval
	cfg.Count = *count
	cfg.Seed = *seed
	cfg.Realtime = false
	if *start != "" {
		at, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			log.Fatalf("invalid start: %v", err)
		}
		cfg.Start = at
	}

	generator, err := feed.NewGenerator(*symbol, cfg)
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}
	writer, err := feed.CreateTape(*out)
	if err != nil {
		log.Fatalf("tape init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			cancel()
		case <-ctx.Done():
		}
	}()

	var written int
	var last *schema.MarketSnapshot
	runErr := generator.Run(ctx, func(s *schema.MarketSnapshot) error {
		if err := writer.Append(s); err != nil {
			return err
		}
		written++
		last = s
		return nil
	})
	if err := writer.Close(); err != nil {
		log.Fatalf("tape close failed: %v", err)
	}
	if runErr != nil && ctx.Err() == nil {
		log.Fatalf("generate failed: %v", runErr)
	}

	if last != nil {
		logs.Infof("[MDG] wrote %d snapshots of %s to %s, last %.1f (%.1f/%.1f) at %s",
			written, *symbol, *out, last.LastPrice, last.BestBid, last.BestAsk, last.Timestamp.Format(time.RFC3339Nano))
	}
}
