package strategy

import (
	"math"

	"github.com/markcheno/go-talib"
)

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// popStd is the population standard deviation of the whole series.
func popStd(v []float64) float64 {
	n := len(v)
	if n < 2 {
		return 0
	}
	out := talib.StdDev(v, n, 1.0)
	return out[n-1]
}

// sampleStd is the n-1 standard deviation of the whole series.
func sampleStd(v []float64) float64 {
	n := len(v)
	if n < 2 {
		return 0
	}
	return popStd(v) * math.Sqrt(float64(n)/float64(n-1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
