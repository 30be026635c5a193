package model

import (
	"fmt"
	"math"
)

// Scaler standardizes covariates to zero mean and unit variance. It is fitted
// on training data only and reapplied verbatim at evaluation and serving time.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column mean and standard deviation.
func FitScaler(features [][]float64) (*Scaler, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty matrix")
	}
	cols := len(features[0])
	mean := make([]float64, cols)
	std := make([]float64, cols)

	for _, row := range features {
		if len(row) != cols {
			return nil, fmt.Errorf("ragged feature matrix: row has %d columns, want %d", len(row), cols)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(features))
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range features {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			// Constant column: leave values centered instead of dividing by zero.
			std[j] = 1
		}
	}

	return &Scaler{Mean: mean, Std: std}, nil
}

// Transform returns a standardized copy of the matrix.
func (s *Scaler) Transform(features [][]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out
}
