package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
)

// Schema creates the evaluation history table and its lookup indexes. The
// indexes mirror the hot query paths: latest-by-horizon, latest-by-pair, and
// best-by-metric scans.
const Schema = `
CREATE TABLE IF NOT EXISTS model_performance (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL,
	horizon        INTEGER NOT NULL,
	algorithm      TEXT NOT NULL,
	mae            DOUBLE PRECISION NOT NULL,
	rmse           DOUBLE PRECISION NOT NULL,
	r2             DOUBLE PRECISION NOT NULL,
	mape           DOUBLE PRECISION,
	n_test_samples INTEGER NOT NULL,
	evaluated_at   TIMESTAMPTZ NOT NULL,
	deployed       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_perf_horizon ON model_performance (horizon, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_perf_horizon_algorithm ON model_performance (horizon, algorithm, evaluated_at DESC);
`

// ledgerRepo implements ledger.Ledger on PostgreSQL.
type ledgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLedger creates a PostgreSQL-backed evaluation ledger.
func NewLedger(db *sqlx.DB, timeout time.Duration) ledger.Ledger {
	return &ledgerRepo{db: db, timeout: timeout}
}

// InitSchema applies the ledger schema. Safe to run repeatedly.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}

func (r *ledgerRepo) Append(ctx context.Context, rec *ledger.EvaluationRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO model_performance
		(run_id, horizon, algorithm, mae, rmse, r2, mape, n_test_samples, evaluated_at, deployed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		rec.RunID, int(rec.Horizon), rec.Algorithm,
		rec.MAE, rec.RMSE, rec.R2, rec.MAPE,
		rec.TestSamples, rec.EvaluatedAt, rec.Deployed).
		Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to append evaluation record: %w", err)
	}
	return nil
}

func (r *ledgerRepo) Latest(ctx context.Context, horizon dataset.Horizon, algorithm string, limit int) ([]ledger.EvaluationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 1
	}

	var rows []ledger.EvaluationRecord
	var err error
	if algorithm == "" {
		query := `
			SELECT id, run_id, horizon, algorithm, mae, rmse, r2, mape, n_test_samples, evaluated_at, deployed
			FROM model_performance
			WHERE horizon = $1
			ORDER BY evaluated_at DESC, id DESC
			LIMIT $2`
		err = r.db.SelectContext(ctx, &rows, query, int(horizon), limit)
	} else {
		query := `
			SELECT id, run_id, horizon, algorithm, mae, rmse, r2, mape, n_test_samples, evaluated_at, deployed
			FROM model_performance
			WHERE horizon = $1 AND algorithm = $2
			ORDER BY evaluated_at DESC, id DESC
			LIMIT $3`
		err = r.db.SelectContext(ctx, &rows, query, int(horizon), algorithm, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest evaluations: %w", err)
	}
	return rows, nil
}

func (r *ledgerRepo) Best(ctx context.Context, horizon dataset.Horizon, metric ledger.Metric) (*ledger.EvaluationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	column := "mae"
	if metric == ledger.MetricRMSE {
		column = "rmse"
	}

	query := fmt.Sprintf(`
		SELECT id, run_id, horizon, algorithm, mae, rmse, r2, mape, n_test_samples, evaluated_at, deployed
		FROM model_performance
		WHERE horizon = $1
		ORDER BY %s ASC, evaluated_at DESC
		LIMIT 1`, column)

	var rec ledger.EvaluationRecord
	if err := r.db.GetContext(ctx, &rec, query, int(horizon)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query best evaluation: %w", err)
	}
	return &rec, nil
}

func (r *ledgerRepo) All(ctx context.Context) ([]ledger.EvaluationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []ledger.EvaluationRecord
	query := `
		SELECT id, run_id, horizon, algorithm, mae, rmse, r2, mape, n_test_samples, evaluated_at, deployed
		FROM model_performance
		ORDER BY evaluated_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query evaluation history: %w", err)
	}
	return rows, nil
}

func (r *ledgerRepo) CountByHorizon(ctx context.Context, horizon dataset.Horizon) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM model_performance WHERE horizon = $1`, int(horizon)); err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", err)
	}
	return count, nil
}

func (r *ledgerRepo) MarkDeployed(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE model_performance SET deployed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %d deployed: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deployed update: %w", err)
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
