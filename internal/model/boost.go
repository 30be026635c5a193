package model

import (
	"fmt"
)

// BoostOptions are the fixed hyperparameters of a gradient boosting regressor.
type BoostOptions struct {
	Rounds    int     `json:"rounds"`
	MaxDepth  int     `json:"max_depth"`
	LearnRate float64 `json:"learn_rate"`
	Seed      int64   `json:"seed"`
}

// Boost is gradient boosting over shallow regression trees with squared loss:
// each round fits a tree to the current residuals and shrinks it by the
// learning rate. Fitting is fully deterministic.
type Boost struct {
	Options BoostOptions
	Base    float64
	Roots   []*TreeNode
}

// NewBoost creates an unfitted gradient boosting regressor.
func NewBoost(opts BoostOptions) *Boost {
	if opts.Rounds <= 0 {
		opts.Rounds = 100
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
	}
	if opts.LearnRate <= 0 {
		opts.LearnRate = 0.1
	}
	return &Boost{Options: opts}
}

func (m *Boost) Name() string { return AlgoGradientBoost }

func (m *Boost) NeedsScaling() bool { return false }

func (m *Boost) Fit(features [][]float64, target []float64) error {
	n := len(features)
	if n == 0 {
		return fmt.Errorf("no training rows")
	}
	if n != len(target) {
		return fmt.Errorf("feature/target length mismatch: %d vs %d", n, len(target))
	}

	m.Base = 0
	for _, y := range target {
		m.Base += y
	}
	m.Base /= float64(n)

	idx := make([]int, n)
	pred := make([]float64, n)
	residual := make([]float64, n)
	for i := range idx {
		idx[i] = i
		pred[i] = m.Base
	}

	m.Roots = make([]*TreeNode, 0, m.Options.Rounds)
	for round := 0; round < m.Options.Rounds; round++ {
		for i := range residual {
			residual[i] = target[i] - pred[i]
		}
		root := growTree(features, residual, idx, 0, treeParams{
			maxDepth: m.Options.MaxDepth,
			minLeaf:  1,
		})
		m.Roots = append(m.Roots, root)
		for i, row := range features {
			pred[i] += m.Options.LearnRate * root.Predict(row)
		}
	}
	return nil
}

func (m *Boost) Predict(features [][]float64) ([]float64, error) {
	if len(m.Roots) == 0 {
		return nil, fmt.Errorf("gradient boost model is not fitted")
	}
	out := make([]float64, len(features))
	for i, row := range features {
		v := m.Base
		for _, root := range m.Roots {
			v += m.Options.LearnRate * root.Predict(row)
		}
		out[i] = v
	}
	return out, nil
}
