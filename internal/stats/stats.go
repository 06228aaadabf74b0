// Package stats derives summary quantities from the per-round
// neighbourhood function produced by the propagation engine.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultEffectiveDiameterFraction is the conventional 90th-percentile cut.
const DefaultEffectiveDiameterFraction = 0.9

// Summary aggregates a finished propagation run.
type Summary struct {
	Nodes             int
	Rounds            int
	FinalSum          float64
	EffectiveDiameter float64
	AverageDistance   float64
}

// Summarize computes run-level aggregates from the per-round sums N(t) and
// the final per-node estimates.
func Summarize(roundSums, finalEstimates []float64, fraction float64) Summary {
	return Summary{
		Nodes:             len(finalEstimates),
		Rounds:            len(roundSums) - 1,
		FinalSum:          floats.Sum(finalEstimates),
		EffectiveDiameter: EffectiveDiameter(roundSums, fraction),
		AverageDistance:   AverageDistance(roundSums),
	}
}

// EffectiveDiameter returns the smallest (interpolated) round t at which
// N(t) reaches the given fraction of the final neighbourhood function.
// Returns NaN when the input is empty or the fraction is out of (0, 1].
func EffectiveDiameter(roundSums []float64, fraction float64) float64 {
	if len(roundSums) == 0 || fraction <= 0 || fraction > 1 {
		return math.NaN()
	}

	threshold := fraction * roundSums[len(roundSums)-1]

	for t, sum := range roundSums {
		if sum < threshold {
			continue
		}

		if t == 0 {
			return 0
		}

		prev := roundSums[t-1]
		if sum == prev {
			return float64(t)
		}

		// Linear interpolation between the two straddling rounds.
		return float64(t-1) + (threshold-prev)/(sum-prev)
	}

	return float64(len(roundSums) - 1)
}

// AverageDistance estimates the mean shortest-path distance between
// reachable pairs: each round's growth N(t)-N(t-1) counts the pairs at
// distance exactly t. Returns NaN when no pair is beyond distance zero.
func AverageDistance(roundSums []float64) float64 {
	if len(roundSums) < 2 {
		return math.NaN()
	}

	weighted := 0.0
	pairs := 0.0

	for t := 1; t < len(roundSums); t++ {
		growth := roundSums[t] - roundSums[t-1]
		if growth <= 0 {
			continue
		}

		weighted += float64(t) * growth
		pairs += growth
	}

	if pairs == 0 {
		return math.NaN()
	}

	return weighted / pairs
}
