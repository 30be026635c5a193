package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearRecoversPlane(t *testing.T) {
	// y = 2 + 3*x0 - x1, exactly.
	features := [][]float64{
		{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 1},
		{2, 3}, {3, 1}, {4, 2}, {5, 0}, {1, 4},
	}
	target := make([]float64, len(features))
	for i, row := range features {
		target[i] = 2 + 3*row[0] - row[1]
	}

	m := NewLinear()
	require.NoError(t, m.Fit(features, target))

	assert.InDelta(t, 2, m.Intercept, 1e-9)
	require.Len(t, m.Coefficients, 2)
	assert.InDelta(t, 3, m.Coefficients[0], 1e-9)
	assert.InDelta(t, -1, m.Coefficients[1], 1e-9)

	pred, err := m.Predict([][]float64{{10, 5}})
	require.NoError(t, err)
	assert.InDelta(t, 2+3*10-5, pred[0], 1e-9)
}

func TestLinearRankDeficient(t *testing.T) {
	// The second column duplicates the first and the third is constant,
	// like a short training window where month and year never change.
	features := [][]float64{
		{0, 0, 0}, {1, 1, 0}, {2, 2, 0}, {3, 3, 0}, {4, 4, 0}, {5, 5, 0},
	}
	target := []float64{1, 3, 5, 7, 9, 11} // y = 1 + 2*x0

	m := NewLinear()
	require.NoError(t, m.Fit(features, target))

	pred, err := m.Predict(features)
	require.NoError(t, err)
	for i := range target {
		assert.InDelta(t, target[i], pred[i], 1e-8)
	}
}

func TestLinearLengthMismatch(t *testing.T) {
	err := NewLinear().Fit([][]float64{{1}, {2}}, []float64{1})
	assert.Error(t, err)
}

func TestLinearPredictBeforeFit(t *testing.T) {
	_, err := NewLinear().Predict([][]float64{{1}})
	assert.Error(t, err)
}
