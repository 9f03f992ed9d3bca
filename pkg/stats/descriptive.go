// Package stats provides the descriptive statistics, return transforms and
// rolling windows used by the spread, signal and backtest packages.
package stats

import (
	"math"
)

// Mean 计算均值
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// Variance 计算总体方差
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	mean := Mean(data)
	var variance float64
	for _, val := range data {
		diff := val - mean
		variance += diff * diff
	}
	return variance / float64(len(data))
}

// StdDev 计算总体标准差
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// DownsideDeviation is the root mean square of the negative observations.
// It returns 0 when no observation is negative.
func DownsideDeviation(data []float64) float64 {
	var sumSq float64
	var n int
	for _, val := range data {
		if val < 0 {
			sumSq += val * val
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

// ZScore 计算 Z-Score
// z = (x - μ) / σ
func ZScore(value, mean, std float64) float64 {
	if std < 1e-10 {
		return 0
	}
	return (value - mean) / std
}

// Standardize maps every value to its z-score against the whole series.
func Standardize(data []float64) []float64 {
	out := make([]float64, len(data))
	mean := Mean(data)
	std := StdDev(data)
	for i, v := range data {
		out[i] = ZScore(v, mean, std)
	}
	return out
}

// Correlation 计算 Pearson 相关系数
// r = Σ[(xi - x̄)(yi - ȳ)] / sqrt[Σ(xi - x̄)² * Σ(yi - ȳ)²]
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, varX, varY float64
	for i := range x {
		diffX := x[i] - meanX
		diffY := y[i] - meanY
		numerator += diffX * diffY
		varX += diffX * diffX
		varY += diffY * diffY
	}

	denominator := math.Sqrt(varX * varY)
	if denominator < 1e-10 {
		return 0
	}

	return numerator / denominator
}

// Covariance 计算协方差
// cov(X,Y) = Σ[(xi - x̄)(yi - ȳ)] / n
func Covariance(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var covariance float64
	for i := range x {
		covariance += (x[i] - meanX) * (y[i] - meanY)
	}

	return covariance / float64(len(x))
}

// HedgeRatio estimates β in x ≈ α + β·y by ordinary least squares.
// Unlike a live trading beta it is not clamped; a degenerate y returns 1.
func HedgeRatio(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 1.0
	}

	variance := Variance(y)
	if variance < 1e-10 {
		return 1.0
	}
	return Covariance(x, y) / variance
}
