package pipeline

import (
	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
)

// SelectBest picks the winning algorithm per horizon from this run's
// evaluation records: the one with the lowest MAE. MAE is deliberately the
// within-run selection criterion; the promotion gate compares RMSE across
// runs. A horizon with no records simply has no winner.
func SelectBest(outcomes []EvalOutcome) map[dataset.Horizon]ledger.EvaluationRecord {
	winners := make(map[dataset.Horizon]ledger.EvaluationRecord)
	for _, out := range outcomes {
		if out.Status != EvalOK || out.Record == nil {
			continue
		}
		best, ok := winners[out.Horizon]
		if !ok || out.Record.MAE < best.MAE {
			winners[out.Horizon] = *out.Record
		}
	}
	return winners
}
