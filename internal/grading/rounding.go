package grading

import (
	"math"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// representation noise below this is discarded before rounding, so 2.675 rounds like the
// decimal it was typed as rather than like 2.67499999...
const roundingNoise = 1e6

// Round applies mode at the given number of decimals. An empty mode leaves value untouched.
func Round(value float64, mode models.RoundingMode, decimals int) float64 {
	if mode == "" || !isFinite(value) {
		return value
	}
	if decimals < 0 {
		decimals = 0
	}
	factor := math.Pow(10, float64(decimals))
	scaled := math.Round(value*factor*roundingNoise) / roundingNoise

	var rounded float64
	switch mode {
	case models.RoundingHalfEven:
		rounded = math.RoundToEven(scaled)
	case models.RoundingHalfDown:
		rounded = math.Ceil(scaled - 0.5)
	case models.RoundingFloor:
		rounded = math.Floor(scaled)
	case models.RoundingCeil:
		rounded = math.Ceil(scaled)
	default:
		rounded = math.Floor(scaled + 0.5)
	}
	return rounded / factor
}
