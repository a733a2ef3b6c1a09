package schema

import (
	"time"

	"github.com/yanun0323/errors"
)

// Level is one price level of the order book.
type Level struct {
	Price float64 `json:"price"`
	Qty   int64   `json:"qty"`
}

// MarketSnapshot is the normalized depth/quote view delivered once per update.
// Consumers must treat it as read-only.
type MarketSnapshot struct {
	Symbol          string    `json:"symbol"`
	Timestamp       time.Time `json:"timestamp"`
	LastPrice       float64   `json:"last_price"`
	BestBid         float64   `json:"best_bid"`
	BestAsk         float64   `json:"best_ask"`
	Bids            []Level   `json:"bids"`
	Asks            []Level   `json:"asks"`
	TradingVolume   int64     `json:"trading_volume"`
	BuyMarketOrder  int64     `json:"buy_market_order"`
	SellMarketOrder int64     `json:"sell_market_order"`
}

// Validate checks the fields every consumer relies on. Quote sanity is left
// to the strategies, which skip a tick instead of failing.
func (s *MarketSnapshot) Validate() error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	if s.Symbol == "" {
		return errors.New("snapshot symbol is empty")
	}
	if s.Timestamp.IsZero() {
		return errors.Errorf("snapshot timestamp is zero, symbol: %s", s.Symbol)
	}
	return nil
}

// HasQuotes reports whether both best bid and best ask are positive.
func (s *MarketSnapshot) HasQuotes() bool {
	return s.BestBid > 0 && s.BestAsk > 0
}

// Mid returns the bid/ask midpoint, or 0 when either side is missing.
func (s *MarketSnapshot) Mid() float64 {
	if !s.HasQuotes() {
		return 0
	}
	return (s.BestBid + s.BestAsk) / 2
}

// DepthQty sums quantities over the top n levels of each side.
func (s *MarketSnapshot) DepthQty(n int) (bid, ask int64) {
	for i, lv := range s.Bids {
		if i >= n {
			break
		}
		bid += lv.Qty
	}
	for i, lv := range s.Asks {
		if i >= n {
			break
		}
		ask += lv.Qty
	}
	return bid, ask
}

// Imbalance is (bid - ask) / (bid + ask) over the top n levels, 0 when empty.
func (s *MarketSnapshot) Imbalance(n int) float64 {
	bid, ask := s.DepthQty(n)
	total := bid + ask
	if total <= 0 {
		return 0
	}
	return float64(bid-ask) / float64(total)
}
