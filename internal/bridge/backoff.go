package bridge

import (
	"math"
	"time"
)

// CalculateBackoff returns the delay before restart attempt n (1-based):
// initial * multiplier^(n-1), capped at max.
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return min(initial, max)
	}
	d := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if d > float64(max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return max
	}
	return time.Duration(d)
}
