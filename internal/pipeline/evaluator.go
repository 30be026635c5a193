package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
)

// EvalStatus tags an evaluation outcome.
type EvalStatus string

const (
	EvalOK      EvalStatus = "evaluated"
	EvalSkipped EvalStatus = "skipped"
	EvalFailed  EvalStatus = "failed"
)

// EvalOutcome reports the evaluation of one trained (horizon, algorithm) pair.
type EvalOutcome struct {
	Horizon    dataset.Horizon
	Algorithm  string
	Status     EvalStatus
	SkipReason string
	Err        error
	Record     *ledger.EvaluationRecord
	Model      *TrainedModel
}

// Evaluator scores trained models against their horizon's held-out partition.
type Evaluator struct {
	minTestRows int
	now         func() time.Time
}

// NewEvaluator creates an evaluator requiring at least minTestRows held-out rows.
func NewEvaluator(minTestRows int) *Evaluator {
	if minTestRows < 2 {
		minTestRows = 2
	}
	return &Evaluator{minTestRows: minTestRows, now: time.Now}
}

// Evaluate scores every trained model on its horizon's test partition and
// builds an evaluation record per model that produced valid metrics. Skips
// and per-unit failures are reported, never escalated.
func (e *Evaluator) Evaluate(runID string, trained []TrainOutcome, partitions map[dataset.Horizon]dataset.Partition) []EvalOutcome {
	var outcomes []EvalOutcome
	for _, tr := range trained {
		if tr.Status != TrainOK {
			continue
		}

		part, ok := partitions[tr.Horizon]
		if !ok || part.TestRows == 0 {
			outcomes = append(outcomes, EvalOutcome{
				Horizon:    tr.Horizon,
				Algorithm:  tr.Algorithm,
				Status:     EvalSkipped,
				SkipReason: "no test partition",
			})
			continue
		}
		if part.TestRows < e.minTestRows {
			outcomes = append(outcomes, EvalOutcome{
				Horizon:    tr.Horizon,
				Algorithm:  tr.Algorithm,
				Status:     EvalSkipped,
				SkipReason: fmt.Sprintf("%d test rows, need at least %d", part.TestRows, e.minTestRows),
			})
			log.Warn().
				Str("horizon", tr.Horizon.String()).
				Str("algorithm", tr.Algorithm).
				Int("test_rows", part.TestRows).
				Msg("insufficient test data, evaluation skipped")
			continue
		}

		outcomes = append(outcomes, e.evaluateOne(runID, tr, part))
	}
	return outcomes
}

func (e *Evaluator) evaluateOne(runID string, tr TrainOutcome, part dataset.Partition) EvalOutcome {
	outcome := EvalOutcome{Horizon: tr.Horizon, Algorithm: tr.Algorithm, Model: tr.Model}

	features := part.TestFeatures
	if tr.Model.Scaler != nil {
		features = tr.Model.Scaler.Transform(features)
	}

	pred, err := tr.Model.Model.Predict(features)
	if err != nil {
		outcome.Status = EvalFailed
		outcome.Err = fmt.Errorf("prediction failed: %w", err)
		log.Error().Err(err).
			Str("horizon", tr.Horizon.String()).
			Str("algorithm", tr.Algorithm).
			Msg("evaluation failed")
		return outcome
	}

	metrics := computeMetrics(part.TestTarget, pred)
	outcome.Status = EvalOK
	outcome.Record = &ledger.EvaluationRecord{
		RunID:       runID,
		Horizon:     tr.Horizon,
		Algorithm:   tr.Algorithm,
		Metrics:     metrics,
		TestSamples: part.TestRows,
		EvaluatedAt: e.now().UTC(),
	}

	evt := log.Info().
		Str("horizon", tr.Horizon.String()).
		Str("algorithm", tr.Algorithm).
		Float64("mae", metrics.MAE).
		Float64("rmse", metrics.RMSE).
		Float64("r2", metrics.R2)
	if metrics.MAPE != nil {
		evt = evt.Float64("mape", *metrics.MAPE)
	}
	evt.Msg("model evaluated")
	return outcome
}

// computeMetrics derives MAE, RMSE, R2 and MAPE from true and predicted
// values. MAPE is left unset when any true value is zero: the ratio is
// undefined there and an absent metric is more honest than +Inf.
func computeMetrics(yTrue, yPred []float64) ledger.Metrics {
	n := float64(len(yTrue))

	var sumAbs, sumSq float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sumAbs += math.Abs(d)
		sumSq += d * d
	}
	mae := sumAbs / n
	rmse := math.Sqrt(sumSq / n)

	var mean float64
	for _, y := range yTrue {
		mean += y
	}
	mean /= n

	var ssTot float64
	for _, y := range yTrue {
		d := y - mean
		ssTot += d * d
	}
	var r2 float64
	switch {
	case ssTot > 0:
		r2 = 1 - sumSq/ssTot
	case sumSq == 0:
		r2 = 1
	default:
		r2 = 0
	}

	metrics := ledger.Metrics{MAE: mae, RMSE: rmse, R2: r2}

	mapeDefined := true
	var sumPct float64
	for i := range yTrue {
		if yTrue[i] == 0 {
			mapeDefined = false
			break
		}
		sumPct += math.Abs((yTrue[i] - yPred[i]) / yTrue[i])
	}
	if mapeDefined {
		mape := sumPct / n * 100
		metrics.MAPE = &mape
	}

	return metrics
}
