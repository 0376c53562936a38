package models

import (
	"math"
	"sort"
)

// Median sorts values in place and returns their median. An even count
// yields the mean of the two middle values and an empty slice yields NaN.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}
