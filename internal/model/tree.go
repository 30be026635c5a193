package model

import (
	"math/rand"
	"sort"
)

// TreeNode is one node of a fitted regression tree. Fields are exported so
// trees survive gob round-trips inside versioned artifacts.
type TreeNode struct {
	Leaf      bool
	Value     float64
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
}

// Predict walks the tree for a single covariate row.
func (n *TreeNode) Predict(row []float64) float64 {
	node := n
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

type treeParams struct {
	maxDepth   int
	minLeaf    int
	featureSub int // candidate features per split; 0 means all
	rng        *rand.Rand
}

// growTree fits a CART regression tree on the rows selected by idx,
// minimizing within-node sum of squared error.
func growTree(features [][]float64, target []float64, idx []int, depth int, p treeParams) *TreeNode {
	mean := meanAt(target, idx)
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return &TreeNode{Leaf: true, Value: mean}
	}

	feature, threshold, ok := bestSplit(features, target, idx, p)
	if !ok {
		return &TreeNode{Leaf: true, Value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < p.minLeaf || len(right) < p.minLeaf {
		return &TreeNode{Leaf: true, Value: mean}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(features, target, left, depth+1, p),
		Right:     growTree(features, target, right, depth+1, p),
	}
}

// bestSplit scans candidate features with a sorted prefix-sum pass and returns
// the split with the lowest total SSE across the two children.
func bestSplit(features [][]float64, target []float64, idx []int, p treeParams) (int, float64, bool) {
	cols := len(features[idx[0]])
	candidates := make([]int, cols)
	for j := range candidates {
		candidates[j] = j
	}
	if p.featureSub > 0 && p.featureSub < cols && p.rng != nil {
		p.rng.Shuffle(cols, func(a, b int) {
			candidates[a], candidates[b] = candidates[b], candidates[a]
		})
		candidates = candidates[:p.featureSub]
		sort.Ints(candidates)
	}

	n := len(idx)
	bestSSE := sseAt(target, idx)
	var bestFeature int
	var bestThreshold float64
	found := false

	order := make([]int, n)
	for _, f := range candidates {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool {
			return features[order[a]][f] < features[order[b]][f]
		})

		var sumL, sumSqL float64
		sumR, sumSqR := sumAndSumSq(target, order)

		for k := 0; k < n-1; k++ {
			y := target[order[k]]
			sumL += y
			sumSqL += y * y
			sumR -= y
			sumSqR -= y * y

			vk := features[order[k]][f]
			vnext := features[order[k+1]][f]
			if vk == vnext {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < p.minLeaf || nr < p.minLeaf {
				continue
			}

			sse := (sumSqL - sumL*sumL/float64(nl)) + (sumSqR - sumR*sumR/float64(nr))
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = f
				bestThreshold = (vk + vnext) / 2
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

func meanAt(target []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += target[i]
	}
	return sum / float64(len(idx))
}

func sseAt(target []float64, idx []int) float64 {
	mean := meanAt(target, idx)
	var sse float64
	for _, i := range idx {
		d := target[i] - mean
		sse += d * d
	}
	return sse
}

func sumAndSumSq(target []float64, idx []int) (float64, float64) {
	var sum, sumSq float64
	for _, i := range idx {
		y := target[i]
		sum += y
		sumSq += y * y
	}
	return sum, sumSq
}
