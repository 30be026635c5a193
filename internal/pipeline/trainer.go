package pipeline

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/model"
)

// TrainStatus tags a training outcome so callers branch on an explicit
// variant instead of catching errors.
type TrainStatus string

const (
	TrainOK      TrainStatus = "trained"
	TrainSkipped TrainStatus = "skipped"
	TrainFailed  TrainStatus = "failed"
)

// TrainedModel is one fitted (horizon, algorithm) pair plus the scaler that
// was fitted with it when the algorithm needs standardized inputs.
type TrainedModel struct {
	Horizon   dataset.Horizon
	Algorithm string
	Model     model.Regressor
	Scaler    *model.Scaler
}

// TrainOutcome reports what happened to one (horizon, algorithm) unit.
type TrainOutcome struct {
	Horizon    dataset.Horizon
	Algorithm  string
	Status     TrainStatus
	SkipReason string
	Err        error
	Model      *TrainedModel
}

// Trainer fits every registered algorithm on every horizon's train partition.
// A single unit failing or being skipped never aborts the rest of the run.
type Trainer struct {
	registry     *model.Registry
	minTrainRows int
}

// NewTrainer creates a trainer over the given algorithm registry.
func NewTrainer(registry *model.Registry, minTrainRows int) *Trainer {
	if minTrainRows < 1 {
		minTrainRows = 5
	}
	return &Trainer{registry: registry, minTrainRows: minTrainRows}
}

// Train fits one model per (horizon, algorithm) pair. Horizons and algorithms
// are iterated in deterministic order so repeated runs behave identically.
func (t *Trainer) Train(partitions map[dataset.Horizon]dataset.Partition) []TrainOutcome {
	horizons := sortedHorizons(partitions)
	algorithms := t.registry.Names()

	var outcomes []TrainOutcome
	for _, h := range horizons {
		part := partitions[h]

		if part.TrainRows < t.minTrainRows {
			for _, algo := range algorithms {
				outcomes = append(outcomes, TrainOutcome{
					Horizon:    h,
					Algorithm:  algo,
					Status:     TrainSkipped,
					SkipReason: fmt.Sprintf("%d train rows, need at least %d", part.TrainRows, t.minTrainRows),
				})
			}
			log.Warn().
				Str("horizon", h.String()).
				Int("train_rows", part.TrainRows).
				Int("min_rows", t.minTrainRows).
				Msg("insufficient training data, horizon skipped")
			continue
		}

		for _, algo := range algorithms {
			outcomes = append(outcomes, t.trainOne(h, algo, part))
		}
	}
	return outcomes
}

func (t *Trainer) trainOne(h dataset.Horizon, algo string, part dataset.Partition) TrainOutcome {
	outcome := TrainOutcome{Horizon: h, Algorithm: algo}

	reg, err := t.registry.New(algo)
	if err != nil {
		outcome.Status = TrainFailed
		outcome.Err = err
		return outcome
	}

	trained, err := fit(reg, part.TrainFeatures, part.TrainTarget)
	if err != nil {
		outcome.Status = TrainFailed
		outcome.Err = err
		log.Error().Err(err).
			Str("horizon", h.String()).
			Str("algorithm", algo).
			Msg("model fit failed, unit excluded from run")
		return outcome
	}

	trained.Horizon = h
	trained.Algorithm = algo
	outcome.Status = TrainOK
	outcome.Model = trained

	log.Debug().
		Str("horizon", h.String()).
		Str("algorithm", algo).
		Int("train_rows", part.TrainRows).
		Msg("model trained")
	return outcome
}

// fit runs the algorithm's Fit, standardizing inputs first when required.
// Panics from numerical code are contained and surfaced as fit errors.
func fit(reg model.Regressor, features [][]float64, target []float64) (trained *TrainedModel, err error) {
	defer func() {
		if r := recover(); r != nil {
			trained = nil
			err = fmt.Errorf("fit panicked: %v", r)
		}
	}()

	var scaler *model.Scaler
	if reg.NeedsScaling() {
		scaler, err = model.FitScaler(features)
		if err != nil {
			return nil, fmt.Errorf("scaler fit failed: %w", err)
		}
		features = scaler.Transform(features)
	}

	if err := reg.Fit(features, target); err != nil {
		return nil, err
	}
	return &TrainedModel{Model: reg, Scaler: scaler}, nil
}

func sortedHorizons(partitions map[dataset.Horizon]dataset.Partition) []dataset.Horizon {
	horizons := make([]dataset.Horizon, 0, len(partitions))
	for h := range partitions {
		horizons = append(horizons, h)
	}
	sort.Slice(horizons, func(a, b int) bool { return horizons[a] < horizons[b] })
	return horizons
}
