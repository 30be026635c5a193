package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
	"github.com/airwatch/aqicast/internal/promote"
	"github.com/airwatch/aqicast/internal/registry"
)

// pairKey identifies one (horizon, algorithm) unit within a run.
type pairKey struct {
	horizon   dataset.Horizon
	algorithm string
}

// RunSummary is the end-of-run report: what trained, what was promoted, and
// what was skipped. A run always ends with one, never with a silent no-op.
type RunSummary struct {
	RunID     string             `json:"run_id"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Rows      int                `json:"rows"`
	Trained   int                `json:"trained"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Evaluated int                `json:"evaluated"`
	Decisions []promote.Decision `json:"decisions"`
}

// Runner executes one sequential train-evaluate-promote batch. Failures are
// contained at the narrowest unit: one algorithm's fit error or one horizon's
// persistence error never aborts the rest of the run.
type Runner struct {
	splitter  *dataset.Splitter
	trainer   *Trainer
	evaluator *Evaluator
	store     *registry.FileStore
	ledger    ledger.Ledger
	gate      *promote.Gate
	horizons  []dataset.Horizon
}

// NewRunner wires a batch runner from its collaborators.
func NewRunner(splitter *dataset.Splitter, trainer *Trainer, evaluator *Evaluator,
	store *registry.FileStore, led ledger.Ledger, gate *promote.Gate, horizons []dataset.Horizon) *Runner {
	return &Runner{
		splitter:  splitter,
		trainer:   trainer,
		evaluator: evaluator,
		store:     store,
		ledger:    led,
		gate:      gate,
		horizons:  horizons,
	}
}

// Run executes the full cycle on one feature table:
// split per horizon, train every registered algorithm, persist every fitted
// artifact, evaluate on held-out data, append all records to the ledger,
// select the per-horizon winner by MAE, and pass each winner through the
// promotion gate.
func (r *Runner) Run(ctx context.Context, table *dataset.Table) (*RunSummary, error) {
	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Rows:      len(table.Rows),
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("rows", summary.Rows).
		Msg("training run started")

	partitions, err := r.splitter.Split(table, r.horizons)
	if err != nil {
		return nil, fmt.Errorf("failed to partition feature table: %w", err)
	}

	// Train.
	outcomes := r.trainer.Train(partitions)
	for _, out := range outcomes {
		switch out.Status {
		case TrainOK:
			summary.Trained++
			modelsTrained.Inc()
		case TrainSkipped:
			summary.Skipped++
			unitsSkipped.Inc()
		case TrainFailed:
			summary.Failed++
			fitFailures.Inc()
		}
	}

	// Persist every fitted model before any promotion decision references it.
	versions := make(map[pairKey]string)
	for i := range outcomes {
		out := &outcomes[i]
		if out.Status != TrainOK {
			continue
		}
		artifact := &registry.Artifact{
			Horizon:        out.Horizon,
			Algorithm:      out.Algorithm,
			RunID:          summary.RunID,
			FeatureColumns: dataset.FeatureColumns,
			TrainedAt:      summary.StartedAt,
			Model:          out.Model.Model,
			Scaler:         out.Model.Scaler,
		}
		version, err := r.store.Put(artifact)
		if err != nil {
			// The pair stays evaluable for trend history but can no
			// longer win promotion this run.
			log.Error().Err(err).
				Str("horizon", out.Horizon.String()).
				Str("algorithm", out.Algorithm).
				Msg("artifact persist failed, pair excluded from promotion")
			continue
		}
		versions[pairKey{out.Horizon, out.Algorithm}] = version
	}

	// Evaluate and append everything to the ledger, winners and losers alike.
	evals := r.evaluator.Evaluate(summary.RunID, outcomes, partitions)
	for _, ev := range evals {
		switch ev.Status {
		case EvalOK:
			summary.Evaluated++
		case EvalSkipped:
			summary.Skipped++
			unitsSkipped.Inc()
		case EvalFailed:
			summary.Failed++
			fitFailures.Inc()
		}
		if ev.Record != nil {
			if err := r.ledger.Append(ctx, ev.Record); err != nil {
				log.Error().Err(err).
					Str("horizon", ev.Horizon.String()).
					Str("algorithm", ev.Algorithm).
					Msg("ledger append failed, record lost for this run")
				ev.Record.ID = 0
			}
		}
	}

	// Select per-horizon winners and gate them, one horizon at a time.
	winners := SelectBest(evals)
	for _, h := range sortedWinnerHorizons(winners) {
		record := winners[h]
		version, ok := versions[pairKey{h, record.Algorithm}]
		if !ok {
			log.Error().
				Str("horizon", h.String()).
				Str("algorithm", record.Algorithm).
				Msg("winner has no persisted artifact, promotion aborted for horizon")
			continue
		}
		if record.ID == 0 {
			log.Error().
				Str("horizon", h.String()).
				Str("algorithm", record.Algorithm).
				Msg("winner record not in ledger, promotion aborted for horizon")
			continue
		}

		decision, err := r.gate.Decide(ctx, promote.Candidate{Record: record, Version: version})
		if err != nil {
			log.Error().Err(err).
				Str("horizon", h.String()).
				Msg("promotion failed, horizon left unchanged")
			continue
		}
		summary.Decisions = append(summary.Decisions, decision)
		if decision.Promoted {
			promotions.Inc()
		} else {
			holds.Inc()
		}
	}

	summary.Duration = time.Since(start)
	r.logSummary(summary)
	return summary, nil
}

func (r *Runner) logSummary(s *RunSummary) {
	promoted := 0
	held := 0
	for _, d := range s.Decisions {
		if d.Promoted {
			promoted++
		} else {
			held++
		}
	}
	log.Info().
		Str("run_id", s.RunID).
		Int("rows", s.Rows).
		Int("trained", s.Trained).
		Int("evaluated", s.Evaluated).
		Int("skipped", s.Skipped).
		Int("failed", s.Failed).
		Int("promoted", promoted).
		Int("held", held).
		Dur("duration", s.Duration).
		Msg("training run finished")
}

func sortedWinnerHorizons(winners map[dataset.Horizon]ledger.EvaluationRecord) []dataset.Horizon {
	horizons := make([]dataset.Horizon, 0, len(winners))
	for h := range winners {
		horizons = append(horizons, h)
	}
	sort.Slice(horizons, func(a, b int) bool { return horizons[a] < horizons[b] })
	return horizons
}
