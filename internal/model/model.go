package model

import (
	"encoding/gob"
	"fmt"
	"sort"
)

// Algorithm names as they appear in the registry, the ledger, and artifact
// metadata.
const (
	AlgoLinearRegression = "linear_regression"
	AlgoRandomForest     = "random_forest"
	AlgoGradientBoost    = "gradient_boost"
)

// Regressor is the uniform fit/predict capability every algorithm provides.
// Training and evaluation code never branches on algorithm names; adding an
// algorithm means registering one more constructor.
type Regressor interface {
	// Name returns the registry identifier of the algorithm.
	Name() string

	// Fit trains on the given covariate matrix and target vector.
	Fit(features [][]float64, target []float64) error

	// Predict scores each row of the covariate matrix.
	Predict(features [][]float64) ([]float64, error)

	// NeedsScaling reports whether inputs must be standardized before
	// Fit and Predict. The caller owns the fitted scaler.
	NeedsScaling() bool
}

// Constructor builds a fresh, unfitted regressor with fixed hyperparameters.
type Constructor func() Regressor

// Registry maps algorithm identifiers to constructors. Registration order is
// preserved so runs iterate algorithms deterministically.
type Registry struct {
	order []string
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds or replaces a constructor under the given name.
func (r *Registry) Register(name string, ctor Constructor) {
	if _, exists := r.ctors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.ctors[name] = ctor
}

// Names returns registered algorithm names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// New builds a fresh regressor for the named algorithm.
func (r *Registry) New(name string) (Regressor, error) {
	ctor, ok := r.ctors[name]
	if !ok {
		known := r.Names()
		sort.Strings(known)
		return nil, fmt.Errorf("unknown algorithm %q (registered: %v)", name, known)
	}
	return ctor(), nil
}

// Len returns the number of registered algorithms.
func (r *Registry) Len() int { return len(r.order) }

// DefaultRegistry returns the standard three-algorithm registry with the
// hyperparameters used in production. All stochastic algorithms are seeded so
// repeated runs on identical data produce identical models.
func DefaultRegistry(seed int64) *Registry {
	r := NewRegistry()
	r.Register(AlgoLinearRegression, func() Regressor {
		return NewLinear()
	})
	r.Register(AlgoRandomForest, func() Regressor {
		return NewForest(ForestOptions{Trees: 50, MaxDepth: 5, MinLeaf: 2, Seed: seed})
	})
	r.Register(AlgoGradientBoost, func() Regressor {
		return NewBoost(BoostOptions{Rounds: 100, MaxDepth: 3, LearnRate: 0.1, Seed: seed})
	})
	return r
}

func init() {
	// Concrete regressor types travel inside gob-encoded artifacts.
	gob.Register(&Linear{})
	gob.Register(&Forest{})
	gob.Register(&Boost{})
}
