package dualengine

import "github.com/markcheno/go-talib"

// Indicators is the trend filter input.
type Indicators struct {
	EMAFast float64
	EMASlow float64
	ATR     float64
	RSI     float64
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}

// computeIndicators runs the trend indicators over last prices. Highs and lows are
// the prices themselves.
func computeIndicators(prices []float64, cfg Config) Indicators {
	return Indicators{
		EMAFast: last(talib.Ema(prices, cfg.EMAFast)),
		EMASlow: last(talib.Ema(prices, cfg.EMASlow)),
		ATR:     last(talib.Atr(prices, prices, prices, cfg.ATRPeriod)),
		RSI:     last(talib.Rsi(prices, cfg.RSIPeriod)),
	}
}

const (
	scoreCross    = 30.0
	scoreNearSlow = 20.0
	scoreATR      = 20.0
	scoreRSI      = 10.0
	trendCutoff   = 40.0

	maxSlowDistance = 0.03
	minATRPct       = 0.003
	maxATRPct       = 0.02
	minRSI          = 40.0
	maxRSI          = 70.0
)

// trendScore scores an oscillating uptrend out of 80. Up means score >= 40.
func trendScore(price float64, ind Indicators) (up bool, score float64) {
	if price <= 0 || ind.EMASlow <= 0 {
		return false, 0
	}
	if ind.EMAFast > ind.EMASlow && price > ind.EMASlow {
		score += scoreCross
	}
	if d := (price - ind.EMASlow) / ind.EMASlow; d < maxSlowDistance && d > -maxSlowDistance {
		score += scoreNearSlow
	}
	if pct := ind.ATR / price; pct >= minATRPct && pct <= maxATRPct {
		score += scoreATR
	}
	if ind.RSI >= minRSI && ind.RSI <= maxRSI {
		score += scoreRSI
	}
	return score >= trendCutoff, score
}
