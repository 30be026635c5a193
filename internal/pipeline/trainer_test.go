package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/model"
)

// stubRegressor is a controllable model for exercising the pipeline without
// numerical work.
type stubRegressor struct {
	name    string
	scaling bool
	fitErr  error
	panics  bool
	pred    float64
	predErr error
	fitted  bool
}

func (s *stubRegressor) Name() string       { return s.name }
func (s *stubRegressor) NeedsScaling() bool { return s.scaling }

func (s *stubRegressor) Fit(_ [][]float64, _ []float64) error {
	if s.panics {
		panic("numerical blowup")
	}
	if s.fitErr != nil {
		return s.fitErr
	}
	s.fitted = true
	return nil
}

func (s *stubRegressor) Predict(features [][]float64) ([]float64, error) {
	if s.predErr != nil {
		return nil, s.predErr
	}
	out := make([]float64, len(features))
	for i := range out {
		out[i] = s.pred
	}
	return out, nil
}

func stubRegistry(regs map[string]*stubRegressor) *model.Registry {
	r := model.NewRegistry()
	for name, reg := range regs {
		reg := reg
		r.Register(name, func() model.Regressor { return reg })
	}
	return r
}

func partitionWith(h dataset.Horizon, trainRows, testRows int) dataset.Partition {
	train := make([][]float64, trainRows)
	trainY := make([]float64, trainRows)
	for i := range train {
		train[i] = []float64{float64(i), float64(i % 3)}
		trainY[i] = float64(10 + i)
	}
	test := make([][]float64, testRows)
	testY := make([]float64, testRows)
	for i := range test {
		test[i] = []float64{float64(trainRows + i), 1}
		testY[i] = float64(10 + trainRows + i)
	}
	return dataset.Partition{
		Horizon:       h,
		TrainFeatures: train,
		TrainTarget:   trainY,
		TestFeatures:  test,
		TestTarget:    testY,
		TrainRows:     trainRows,
		TestRows:      testRows,
	}
}

func TestTrainerSkipsThinHorizon(t *testing.T) {
	reg := stubRegistry(map[string]*stubRegressor{"a": {name: "a"}, "b": {name: "b"}})
	trainer := NewTrainer(reg, 5)

	outcomes := trainer.Train(map[dataset.Horizon]dataset.Partition{
		24: partitionWith(24, 3, 2),
	})

	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.Equal(t, TrainSkipped, out.Status)
		assert.Contains(t, out.SkipReason, "3 train rows")
		assert.Nil(t, out.Model)
	}
}

func TestTrainerContainsUnitFailures(t *testing.T) {
	good := &stubRegressor{name: "good"}
	bad := &stubRegressor{name: "bad", fitErr: errors.New("singular matrix")}
	panicky := &stubRegressor{name: "panicky", panics: true}
	reg := stubRegistry(map[string]*stubRegressor{"good": good, "bad": bad, "panicky": panicky})
	trainer := NewTrainer(reg, 5)

	outcomes := trainer.Train(map[dataset.Horizon]dataset.Partition{
		24: partitionWith(24, 10, 4),
	})
	require.Len(t, outcomes, 3)

	byAlgo := make(map[string]TrainOutcome)
	for _, out := range outcomes {
		byAlgo[out.Algorithm] = out
	}

	assert.Equal(t, TrainOK, byAlgo["good"].Status)
	assert.True(t, good.fitted)

	assert.Equal(t, TrainFailed, byAlgo["bad"].Status)
	assert.ErrorContains(t, byAlgo["bad"].Err, "singular matrix")

	assert.Equal(t, TrainFailed, byAlgo["panicky"].Status)
	assert.ErrorContains(t, byAlgo["panicky"].Err, "fit panicked")
}

func TestTrainerFitsScalerWhenNeeded(t *testing.T) {
	scaled := &stubRegressor{name: "scaled", scaling: true}
	raw := &stubRegressor{name: "raw"}
	reg := stubRegistry(map[string]*stubRegressor{"scaled": scaled, "raw": raw})
	trainer := NewTrainer(reg, 5)

	outcomes := trainer.Train(map[dataset.Horizon]dataset.Partition{
		24: partitionWith(24, 8, 3),
	})

	for _, out := range outcomes {
		require.Equal(t, TrainOK, out.Status)
		if out.Algorithm == "scaled" {
			assert.NotNil(t, out.Model.Scaler)
		} else {
			assert.Nil(t, out.Model.Scaler)
		}
	}
}

func TestTrainerDeterministicOrder(t *testing.T) {
	reg := model.NewRegistry()
	reg.Register("z", func() model.Regressor { return &stubRegressor{name: "z"} })
	reg.Register("a", func() model.Regressor { return &stubRegressor{name: "a"} })
	trainer := NewTrainer(reg, 5)

	parts := map[dataset.Horizon]dataset.Partition{
		48: partitionWith(48, 8, 3),
		24: partitionWith(24, 8, 3),
	}

	outcomes := trainer.Train(parts)
	require.Len(t, outcomes, 4)
	// Horizons ascend, algorithms follow registration order within each.
	assert.Equal(t, dataset.Horizon(24), outcomes[0].Horizon)
	assert.Equal(t, "z", outcomes[0].Algorithm)
	assert.Equal(t, "a", outcomes[1].Algorithm)
	assert.Equal(t, dataset.Horizon(48), outcomes[2].Horizon)
}
