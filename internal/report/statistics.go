// Package report computes summary statistics over series results and renders
// them into a PDF report artifact.
package report

import (
	"math"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// ComputeStatistics flattens all sample values across the given series and
// summarises them. An empty input yields a zero-valued record rather than an
// error. The standard deviation is the population form: the square root of
// the mean squared deviation from the mean.
func ComputeStatistics(series []domain.SeriesResult) domain.Statistics {
	var values []float64
	for _, s := range series {
		for _, sample := range s.Data {
			values = append(values, sample.Value)
		}
	}
	if len(values) == 0 {
		return domain.Statistics{}
	}

	min := values[0]
	max := values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var squared float64
	for _, v := range values {
		diff := v - mean
		squared += diff * diff
	}
	stdDev := math.Sqrt(squared / float64(len(values)))

	return domain.Statistics{
		TotalDataPoints: len(values),
		Min:             min,
		Max:             max,
		Average:         mean,
		StdDev:          stdDev,
	}
}
