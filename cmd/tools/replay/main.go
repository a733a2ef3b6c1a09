package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"metahft/internal/feed"
	"metahft/internal/schema"
	"metahft/internal/ticks"
)

func main() {
	path := flag.String("tape", "data/tape.jsonl", "Tape file to read")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	tickSize := flag.Float64("tick-size", 0.1, "Tick size used for spread statistics")
	symbol := flag.String("symbol", "", "Only count this symbol (default: all)")
	verbose := flag.Bool("v", false, "Print every snapshot")
	flag.Parse()

	tape, err := feed.NewTape(feed.TapeConfig{Path: *path, Speed: *speed})
	if err != nil {
		log.Fatalf("tape init failed: %v", err)
	}

	sum := newSummary(*tickSize)
	err = tape.Run(context.Background(), func(s *schema.MarketSnapshot) error {
		if *symbol != "" && s.Symbol != *symbol {
			return nil
		}
		sum.add(s)
		if *verbose {
			fmt.Printf("%06d %s %s last=%.1f bid=%.1f/%d ask=%.1f/%d vol=%d buy_mo=%d sell_mo=%d\n",
				sum.count, s.Timestamp.Format(time.RFC3339Nano), s.Symbol, s.LastPrice,
				s.BestBid, topQty(s.Bids), s.BestAsk, topQty(s.Asks), s.TradingVolume, s.BuyMarketOrder, s.SellMarketOrder)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	sum.print()
}

func topQty(levels []schema.Level) int64 {
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Qty
}

type summary struct {
	tick       float64
	count      int
	invalid    int
	first      time.Time
	last       time.Time
	low        float64
	high       float64
	spreadSum  int64
	wideSpread int64
	outOfOrder int
}

func newSummary(tick float64) *summary {
	return &summary{tick: tick, low: math.Inf(1), high: math.Inf(-1)}
}

func (m *summary) add(s *schema.MarketSnapshot) {
	m.count++
	if err := s.Validate(); err != nil {
		m.invalid++
		return
	}
	if m.first.IsZero() {
		m.first = s.Timestamp
	}
	if s.Timestamp.Before(m.last) {
		m.outOfOrder++
	} else {
		m.last = s.Timestamp
	}

	price := s.LastPrice
	if price <= 0 {
		price = s.Mid()
	}
	if price > 0 {
		m.low = math.Min(m.low, price)
		m.high = math.Max(m.high, price)
	}
	if m.tick > 0 && s.HasQuotes() {
		spread := ticks.Between(s.BestBid, s.BestAsk, m.tick)
		m.spreadSum += spread
		m.wideSpread = max(m.wideSpread, spread)
	}
}

func (m *summary) print() {
	valid := m.count - m.invalid
	fmt.Printf("snapshots=%d invalid=%d out_of_order=%d\n", m.count, m.invalid, m.outOfOrder)
	if valid == 0 {
		return
	}
	fmt.Printf("span=%s (%s .. %s)\n", m.last.Sub(m.first), m.first.Format(time.RFC3339Nano), m.last.Format(time.RFC3339Nano))
	if m.high >= m.low {
		fmt.Printf("price low=%.1f high=%.1f range_ticks=%d\n", m.low, m.high, ticks.Between(m.low, m.high, m.tick))
	}
	fmt.Printf("spread avg_ticks=%.2f max_ticks=%d\n", float64(m.spreadSum)/float64(valid), m.wideSpread)
}
