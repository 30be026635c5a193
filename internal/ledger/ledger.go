package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/airwatch/aqicast/internal/dataset"
)

// ErrNotFound is returned when a query matches no records.
var ErrNotFound = errors.New("ledger: record not found")

// Metric selects the ranking criterion for Best queries.
type Metric string

const (
	MetricMAE  Metric = "mae"
	MetricRMSE Metric = "rmse"
)

// Metrics is the standard regression accuracy snapshot. MAPE is a pointer
// because it is undefined whenever a true value in the test window is zero;
// absent beats a silent +Inf.
type Metrics struct {
	MAE  float64  `json:"mae" db:"mae"`
	RMSE float64  `json:"rmse" db:"rmse"`
	R2   float64  `json:"r2" db:"r2"`
	MAPE *float64 `json:"mape,omitempty" db:"mape"`
}

// EvaluationRecord is one immutable evaluation result for a (horizon,
// algorithm, run) triple. Only the Deployed flag ever changes after creation,
// flipped at most once by the promotion gate.
type EvaluationRecord struct {
	ID        int64           `json:"id" db:"id"`
	RunID     string          `json:"run_id" db:"run_id"`
	Horizon   dataset.Horizon `json:"horizon" db:"horizon"`
	Algorithm string          `json:"algorithm" db:"algorithm"`

	Metrics

	TestSamples int       `json:"n_test_samples" db:"n_test_samples"`
	EvaluatedAt time.Time `json:"evaluated_at" db:"evaluated_at"`
	Deployed    bool      `json:"deployed" db:"deployed"`
}

// Ledger is the append-only evaluation history. Queries reflect every record
// appended so far within the process lifetime; there is no staleness window.
type Ledger interface {
	// Append stores a new record and assigns its ID.
	Append(ctx context.Context, rec *EvaluationRecord) error

	// Latest returns up to limit records for the horizon, newest first.
	// An empty algorithm matches any algorithm.
	Latest(ctx context.Context, horizon dataset.Horizon, algorithm string, limit int) ([]EvaluationRecord, error)

	// Best returns the record with the lowest value of the given metric
	// for the horizon, or ErrNotFound.
	Best(ctx context.Context, horizon dataset.Horizon, metric Metric) (*EvaluationRecord, error)

	// All returns every record, newest first.
	All(ctx context.Context) ([]EvaluationRecord, error)

	// CountByHorizon returns the number of records for the horizon.
	CountByHorizon(ctx context.Context, horizon dataset.Horizon) (int, error)

	// MarkDeployed flips the deployed flag of the identified record.
	// Reserved for the promotion gate.
	MarkDeployed(ctx context.Context, id int64) error
}

// TrendOf classifies the RMSE direction of the two most recent evaluations.
// It is a pure function over ledger query results, not stored state.
func TrendOf(newestFirst []EvaluationRecord) string {
	if len(newestFirst) < 2 {
		return "stable"
	}
	switch {
	case newestFirst[0].RMSE < newestFirst[1].RMSE:
		return "improving"
	case newestFirst[0].RMSE > newestFirst[1].RMSE:
		return "degrading"
	default:
		return "stable"
	}
}

func metricValue(rec EvaluationRecord, metric Metric) float64 {
	if metric == MetricRMSE {
		return rec.RMSE
	}
	return rec.MAE
}
