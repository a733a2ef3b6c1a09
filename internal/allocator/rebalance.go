package allocator

import (
	"math"

	"github.com/yanun0323/logs"
)

const (
	minWeight  = 0.1
	maxWeight  = 0.6
	blendOld   = 0.7
	blendScore = 0.3
)

// rebalance moves weight toward strategies with a better trailing
// mean/stddev ratio. Caller holds the lock.
func (a *Allocator) rebalance() {
	scores := make([]float64, len(a.order))
	total := 0.0
	for i, st := range a.order {
		s := a.states[st]
		if !s.Enabled || len(s.RecentPnLs) < a.cfg.MinSamples {
			continue
		}
		scores[i] = sharpe(s.RecentPnLs)
		total += scores[i]
	}
	if total <= 0 {
		return
	}

	weights := make([]float64, len(a.order))
	for i, st := range a.order {
		weights[i] = blendOld*a.states[st].Weight + blendScore*scores[i]/total
	}
	boundedNormalize(weights, minWeight, maxWeight)
	for i, st := range a.order {
		a.states[st].Weight = weights[i]
	}
	a.updatePositionLimits()
	logs.Infof("[META] rebalanced weights %v", weights)
}

// sharpe is mean/stddev of the samples floored at 0, using the population stddev.
func sharpe(samples []float64) float64 {
	n := float64(len(samples))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range samples {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / n)
	if std <= 0 || math.IsNaN(std) {
		return 0
	}
	return math.Max(0, mean/std)
}

// boundedNormalize clamps every weight to [lo, hi] and rescales the free ones
// until the weights sum to 1 without leaving the bounds.
func boundedNormalize(w []float64, lo, hi float64) {
	for i := range w {
		w[i] = math.Max(lo, math.Min(hi, w[i]))
	}
	fixed := make([]bool, len(w))
	for range len(w) + 1 {
		var fixedSum, freeSum float64
		for i, v := range w {
			if fixed[i] {
				fixedSum += v
			} else {
				freeSum += v
			}
		}
		if freeSum <= 0 {
			return
		}
		scale := (1 - fixedSum) / freeSum
		clipped := false
		for i := range w {
			if fixed[i] {
				continue
			}
			v := w[i] * scale
			switch {
			case v < lo:
				v, fixed[i], clipped = lo, true, true
			case v > hi:
				v, fixed[i], clipped = hi, true, true
			}
			w[i] = v
		}
		if !clipped {
			return
		}
	}
}
