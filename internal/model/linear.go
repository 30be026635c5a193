package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Linear is ordinary least squares with an intercept term, solved via SVD.
// Rank-deficient systems (a constant covariate inside a short training
// window, for instance) get the minimum-norm solution instead of an error.
// It expects standardized inputs.
type Linear struct {
	Intercept    float64
	Coefficients []float64
}

// NewLinear creates an unfitted OLS regressor.
func NewLinear() *Linear { return &Linear{} }

func (m *Linear) Name() string { return AlgoLinearRegression }

func (m *Linear) NeedsScaling() bool { return true }

// Fit solves min ||Xb - y|| with a leading intercept column.
func (m *Linear) Fit(features [][]float64, target []float64) error {
	rows := len(features)
	if rows == 0 {
		return fmt.Errorf("no training rows")
	}
	if rows != len(target) {
		return fmt.Errorf("feature/target length mismatch: %d vs %d", rows, len(target))
	}
	cols := len(features[0])

	a := mat.NewDense(rows, cols+1, nil)
	for i, row := range features {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(rows, target)

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return fmt.Errorf("svd factorization failed")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return fmt.Errorf("design matrix has rank zero")
	}

	coef := mat.NewVecDense(cols+1, nil)
	svd.SolveVecTo(coef, b, rank)

	m.Intercept = coef.AtVec(0)
	m.Coefficients = make([]float64, cols)
	for j := 0; j < cols; j++ {
		m.Coefficients[j] = coef.AtVec(j + 1)
	}
	return nil
}

func (m *Linear) Predict(features [][]float64) ([]float64, error) {
	if m.Coefficients == nil {
		return nil, fmt.Errorf("linear model is not fitted")
	}
	out := make([]float64, len(features))
	for i, row := range features {
		if len(row) != len(m.Coefficients) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(m.Coefficients))
		}
		v := m.Intercept
		for j, x := range row {
			v += m.Coefficients[j] * x
		}
		out[i] = v
	}
	return out, nil
}
