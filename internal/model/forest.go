package model

import (
	"fmt"
	"math/rand"
)

// ForestOptions are the fixed hyperparameters of a random forest regressor.
type ForestOptions struct {
	Trees    int   `json:"trees"`
	MaxDepth int   `json:"max_depth"`
	MinLeaf  int   `json:"min_leaf"`
	Seed     int64 `json:"seed"`
}

// Forest is a bagged ensemble of regression trees. The seed fixes both the
// bootstrap samples and the per-split feature subsets, so identical data
// always yields an identical ensemble.
type Forest struct {
	Options ForestOptions
	Roots   []*TreeNode
}

// NewForest creates an unfitted random forest with the given hyperparameters.
func NewForest(opts ForestOptions) *Forest {
	if opts.Trees <= 0 {
		opts.Trees = 50
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 5
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 2
	}
	return &Forest{Options: opts}
}

func (m *Forest) Name() string { return AlgoRandomForest }

func (m *Forest) NeedsScaling() bool { return false }

func (m *Forest) Fit(features [][]float64, target []float64) error {
	n := len(features)
	if n == 0 {
		return fmt.Errorf("no training rows")
	}
	if n != len(target) {
		return fmt.Errorf("feature/target length mismatch: %d vs %d", n, len(target))
	}

	cols := len(features[0])
	featureSub := cols / 3
	if featureSub < 1 {
		featureSub = 1
	}

	rng := rand.New(rand.NewSource(m.Options.Seed))
	m.Roots = make([]*TreeNode, m.Options.Trees)
	for t := 0; t < m.Options.Trees; t++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		m.Roots[t] = growTree(features, target, sample, 0, treeParams{
			maxDepth:   m.Options.MaxDepth,
			minLeaf:    m.Options.MinLeaf,
			featureSub: featureSub,
			rng:        rng,
		})
	}
	return nil
}

func (m *Forest) Predict(features [][]float64) ([]float64, error) {
	if len(m.Roots) == 0 {
		return nil, fmt.Errorf("random forest is not fitted")
	}
	out := make([]float64, len(features))
	for i, row := range features {
		var sum float64
		for _, root := range m.Roots {
			sum += root.Predict(row)
		}
		out[i] = sum / float64(len(m.Roots))
	}
	return out, nil
}
