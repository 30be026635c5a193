package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryRoster(t *testing.T) {
	r := DefaultRegistry(42)
	assert.Equal(t, []string{AlgoLinearRegression, AlgoRandomForest, AlgoGradientBoost}, r.Names())
	assert.Equal(t, 3, r.Len())

	for _, name := range r.Names() {
		reg, err := r.New(name)
		require.NoError(t, err)
		assert.Equal(t, name, reg.Name())
	}
}

func TestRegistryUnknownAlgorithm(t *testing.T) {
	_, err := DefaultRegistry(42).New("xgboost")
	assert.ErrorContains(t, err, "unknown algorithm")
}

func TestRegistryPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func() Regressor { return NewLinear() })
	r.Register("a", func() Regressor { return NewLinear() })
	r.Register("b", func() Regressor { return NewLinear() }) // replace, not reorder
	assert.Equal(t, []string{"b", "a"}, r.Names())
}

func TestOnlyLinearNeedsScaling(t *testing.T) {
	assert.True(t, NewLinear().NeedsScaling())
	assert.False(t, NewForest(ForestOptions{}).NeedsScaling())
	assert.False(t, NewBoost(BoostOptions{}).NeedsScaling())
}
