// Package ticks converts between prices and tick units for the TSE price bands.
package ticks

import "math"

// Size returns the minimum price increment for the band containing price.
func Size(price float64) float64 {
	switch {
	case price <= 3000:
		return 1
	case price <= 5000:
		return 5
	case price <= 30000:
		return 10
	case price <= 50000:
		return 50
	default:
		return 100
	}
}

// Round snaps price to the nearest multiple of tick, ties to even.
func Round(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.RoundToEven(price/tick) * tick
}

// RoundBand snaps price to the tick of its own band.
func RoundBand(price float64) float64 {
	return Round(price, Size(price))
}

// PnL returns the move from entry to current expressed in ticks of the entry band.
func PnL(entry, current float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (current - entry) / Size(entry)
}

// Signed returns the PnL in ticks of a position of the given sign at a fixed tick size.
// Short positions profit when price falls.
func Signed(position int64, avg, current, tick float64) float64 {
	if tick <= 0 || position == 0 {
		return 0
	}
	pnl := (current - avg) / tick
	if position < 0 {
		pnl = -pnl
	}
	return pnl
}

// Floor snaps price down to a tick multiple with a small epsilon against float noise.
func Floor(price, tick float64) float64 {
	return math.Floor(price/tick+1e-9) * tick
}

// Ceil snaps price up to a tick multiple with a small epsilon against float noise.
func Ceil(price, tick float64) float64 {
	return math.Ceil(price/tick-1e-9) * tick
}

// Between returns the whole number of ticks from low to high.
func Between(low, high, tick float64) int64 {
	if tick <= 0 {
		return 0
	}
	return int64(math.Round((high - low) / tick))
}
