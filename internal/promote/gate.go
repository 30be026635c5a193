package promote

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/airwatch/aqicast/internal/ledger"
	"github.com/airwatch/aqicast/internal/registry"
)

// Reason codes persisted with every deployment decision.
const (
	ReasonFirstModel = "first_model"
	ReasonImproved   = "improved"
	ReasonDegraded   = "degraded_no_promotion"
)

// HistoryErrorPolicy controls what happens when promotion history cannot be
// read. PolicyPromote keeps a model serving even after a storage glitch;
// PolicyHold refuses to promote anything it could not vet.
type HistoryErrorPolicy string

const (
	PolicyPromote HistoryErrorPolicy = "promote"
	PolicyHold    HistoryErrorPolicy = "hold"
)

// EventPublisher receives a notification after every successful promotion.
// Implementations must tolerate being called from concurrent horizon workers.
type EventPublisher interface {
	PublishPromotion(ctx context.Context, rec registry.DeploymentRecord) error
}

// Candidate is a horizon's selected model: its already-appended evaluation
// record and the version identifier its artifact was persisted under.
type Candidate struct {
	Record  ledger.EvaluationRecord
	Version string
}

// Decision is the gate's verdict for one horizon.
type Decision struct {
	Horizon      string   `json:"horizon"`
	Algorithm    string   `json:"algorithm"`
	Promoted     bool     `json:"promoted"`
	Reason       string   `json:"reason"`
	Version      string   `json:"version,omitempty"`
	NewRMSE      float64  `json:"new_rmse"`
	PreviousRMSE *float64 `json:"previous_rmse,omitempty"`
}

// Gate decides deploy-vs-hold per horizon and is the only writer of
// deployment records and of evaluation deployed flags.
type Gate struct {
	ledger      ledger.Ledger
	store       *registry.FileStore
	deployments *registry.DeploymentMetadata
	policy      HistoryErrorPolicy
	publisher   EventPublisher
	now         func() time.Time
}

// NewGate creates a promotion gate. publisher may be nil.
func NewGate(led ledger.Ledger, store *registry.FileStore, deployments *registry.DeploymentMetadata, policy HistoryErrorPolicy, publisher EventPublisher) *Gate {
	if policy != PolicyHold {
		policy = PolicyPromote
	}
	return &Gate{
		ledger:      led,
		store:       store,
		deployments: deployments,
		policy:      policy,
		publisher:   publisher,
		now:         time.Now,
	}
}

// Decide runs the promotion algorithm for one horizon's candidate:
// compare RMSE against the most recent prior evaluation of the same
// (horizon, algorithm) pair, promote on improvement or first appearance,
// hold otherwise. Unreadable history resolves via the configured policy.
func (g *Gate) Decide(ctx context.Context, candidate Candidate) (Decision, error) {
	rec := candidate.Record
	decision := Decision{
		Horizon:   rec.Horizon.String(),
		Algorithm: rec.Algorithm,
		NewRMSE:   rec.RMSE,
	}

	prior, err := g.priorEvaluation(ctx, candidate)
	if err != nil {
		log.Warn().Err(err).
			Str("horizon", rec.Horizon.String()).
			Str("algorithm", rec.Algorithm).
			Str("policy", string(g.policy)).
			Msg("promotion history unreadable, applying history-error policy")
		if g.policy == PolicyHold {
			decision.Promoted = false
			decision.Reason = ReasonDegraded
			return decision, nil
		}
		// No usable history: treat like a first deployment so a serving
		// model stays available.
		decision.Promoted = true
		decision.Reason = ReasonFirstModel
	} else if prior == nil {
		decision.Promoted = true
		decision.Reason = ReasonFirstModel
	} else {
		decision.PreviousRMSE = &prior.RMSE
		if rec.RMSE < prior.RMSE {
			decision.Promoted = true
			decision.Reason = ReasonImproved
		} else {
			decision.Promoted = false
			decision.Reason = ReasonDegraded
		}
	}

	if !decision.Promoted {
		log.Info().
			Str("horizon", decision.Horizon).
			Str("algorithm", decision.Algorithm).
			Float64("new_rmse", decision.NewRMSE).
			Str("reason", decision.Reason).
			Msg("holding current model")
		return decision, nil
	}

	if err := g.apply(ctx, candidate, &decision); err != nil {
		return decision, err
	}

	log.Info().
		Str("horizon", decision.Horizon).
		Str("algorithm", decision.Algorithm).
		Str("version", decision.Version).
		Str("reason", decision.Reason).
		Float64("new_rmse", decision.NewRMSE).
		Msg("model promoted")
	return decision, nil
}

// priorEvaluation finds the most recent ledger entry for the candidate's
// (horizon, algorithm) pair, excluding the candidate's own record. A nil
// result with nil error means no prior history exists.
func (g *Gate) priorEvaluation(ctx context.Context, candidate Candidate) (*ledger.EvaluationRecord, error) {
	recent, err := g.ledger.Latest(ctx, candidate.Record.Horizon, candidate.Record.Algorithm, 2)
	if err != nil {
		return nil, fmt.Errorf("latest lookup failed: %w", err)
	}
	for i := range recent {
		if recent[i].ID != candidate.Record.ID {
			return &recent[i], nil
		}
	}
	return nil, nil
}

// apply performs the promote side effects in durability order: the artifact
// is already on disk, so repoint the active slot first, then upsert the
// deployment record that references it, then flip the deployed flag.
func (g *Gate) apply(ctx context.Context, candidate Candidate, decision *Decision) error {
	rec := candidate.Record

	if err := g.store.SetActive(rec.Horizon, candidate.Version); err != nil {
		return fmt.Errorf("failed to activate version %s for %s: %w", candidate.Version, rec.Horizon, err)
	}
	decision.Version = candidate.Version

	deployment := registry.DeploymentRecord{
		Horizon:   rec.Horizon,
		Version:   candidate.Version,
		Algorithm: rec.Algorithm,
		Metrics:   rec.Metrics,
		Reason:    decision.Reason,
		DecidedAt: g.now().UTC(),
	}
	if err := g.deployments.Upsert(deployment); err != nil {
		return fmt.Errorf("failed to record deployment for %s: %w", rec.Horizon, err)
	}

	if err := g.ledger.MarkDeployed(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to flag evaluation %d deployed: %w", rec.ID, err)
	}

	if g.publisher != nil {
		if err := g.publisher.PublishPromotion(ctx, deployment); err != nil {
			// Promotion already took effect; the event is advisory.
			log.Warn().Err(err).
				Str("horizon", rec.Horizon.String()).
				Msg("failed to publish promotion event")
		}
	}
	return nil
}
