package oddsmath

import (
	"fmt"
	"math"
)

// RemoveVigMultiplicative removes vig from two-way markets using the multiplicative method
//
// Formula:
// 1. Calculate overround: totalProb = prob1 + prob2 (typically > 1.0)
// 2. Normalize: fairProb1 = prob1 / totalProb, fairProb2 = prob2 / totalProb
// 3. Fair probabilities now sum to 1.0
//
// Example:
// Side A: 1.80 decimal (55.6% implied) | Side B: 2.10 decimal (47.6% implied)
// Overround: 103.2% (3.2% vig)
// Fair: 53.8% / 46.2% (after normalization)
func RemoveVigMultiplicative(prob1, prob2 float64) (fair1, fair2 float64, err error) {
	if prob1 <= 0 || prob1 >= 1 || prob2 <= 0 || prob2 >= 1 {
		return 0, 0, fmt.Errorf("probabilities must be between 0 and 1")
	}

	totalProb := prob1 + prob2

	if totalProb <= 1.0 {
		return 0, 0, fmt.Errorf("no vig detected: probabilities sum to <= 1.0")
	}

	// Normalize by dividing each probability by the total
	// This proportionally removes the vig
	fair1 = prob1 / totalProb
	fair2 = prob2 / totalProb

	return fair1, fair2, nil
}

// VigPercentage calculates the vig (overround) percentage in a market
// Vig% = (TotalProb - 1.0) * 100
func VigPercentage(probabilities []float64) (float64, error) {
	if len(probabilities) == 0 {
		return 0, fmt.Errorf("no probabilities provided")
	}

	totalProb := 0.0
	for _, prob := range probabilities {
		if prob <= 0 || prob >= 1 {
			return 0, fmt.Errorf("all probabilities must be between 0 and 1")
		}
		totalProb += prob
	}

	if totalProb <= 1.0 {
		return 0, nil // No vig
	}

	return (totalProb - 1.0) * 100.0, nil
}

// Mean returns the arithmetic mean of values
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("no values provided")
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// WeightedMean returns the mean of values weighted by weights
// Weights must be positive; sharper sources carry larger weights
func WeightedMean(values, weights []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("no values provided")
	}
	if len(values) != len(weights) {
		return 0, fmt.Errorf("values and weights length mismatch: %d vs %d", len(values), len(weights))
	}

	var weightedSum, totalWeight float64
	for i, v := range values {
		if weights[i] <= 0 {
			return 0, fmt.Errorf("weight at index %d must be positive", i)
		}
		weightedSum += v * weights[i]
		totalWeight += weights[i]
	}

	return weightedSum / totalWeight, nil
}

// StdDev returns the population standard deviation of values
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean, _ := Mean(values)

	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}

	return math.Sqrt(sumSquares / float64(len(values)))
}

// minOutlierDeviation is the absolute floor below which a value is never
// treated as an outlier. Sources disagreeing by a point or two of implied
// probability is ordinary market noise.
const minOutlierDeviation = 0.02

// FilterOutliers drops values whose deviation from the rest exceeds
// maxSigma standard deviations. Mean and deviation are computed with the
// candidate excluded, so a single rogue value among a handful cannot mask
// itself by inflating the spread. With fewer than 3 values there is
// nothing to vote an outlier out with, so the input is returned unchanged.
func FilterOutliers(values []float64, maxSigma float64) []float64 {
	if len(values) < 3 {
		return values
	}

	filtered := make([]float64, 0, len(values))
	rest := make([]float64, 0, len(values)-1)
	for i, v := range values {
		rest = rest[:0]
		rest = append(rest, values[:i]...)
		rest = append(rest, values[i+1:]...)

		mean, _ := Mean(rest)
		sd := StdDev(rest)

		dev := math.Abs(v - mean)
		if dev <= minOutlierDeviation || dev <= maxSigma*sd {
			filtered = append(filtered, v)
		}
	}

	// Never filter down to nothing; a market where everything is an
	// outlier is better served by the raw values
	if len(filtered) == 0 {
		return values
	}

	return filtered
}
