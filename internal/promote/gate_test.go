package promote

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
	"github.com/airwatch/aqicast/internal/model"
	"github.com/airwatch/aqicast/internal/registry"
)

type gateFixture struct {
	ledger      ledger.Ledger
	store       *registry.FileStore
	deployments *registry.DeploymentMetadata
}

func newFixture(t *testing.T) *gateFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := registry.NewFileStore(filepath.Join(dir, "models"))
	require.NoError(t, err)
	deployments, err := registry.OpenDeploymentMetadata(filepath.Join(dir, "deployment_metadata.json"))
	require.NoError(t, err)

	return &gateFixture{
		ledger:      ledger.NewMemoryLedger(),
		store:       store,
		deployments: deployments,
	}
}

// putArtifact stores a minimal fitted artifact and returns its version.
func (f *gateFixture) putArtifact(t *testing.T, horizon dataset.Horizon, algo string) string {
	t.Helper()

	m := model.NewLinear()
	features := [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 2}}
	target := []float64{1, 3, 2, 4, 7}
	require.NoError(t, m.Fit(features, target))

	version, err := f.store.Put(&registry.Artifact{
		Horizon:   horizon,
		Algorithm: algo,
		RunID:     "run-test",
		Model:     m,
		TrainedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return version
}

// appendRecord stores an evaluation and returns it with its assigned ID.
func (f *gateFixture) appendRecord(t *testing.T, horizon dataset.Horizon, algo string, rmse float64, at time.Time) ledger.EvaluationRecord {
	t.Helper()
	rec := ledger.EvaluationRecord{
		RunID:       "run-test",
		Horizon:     horizon,
		Algorithm:   algo,
		Metrics:     ledger.Metrics{MAE: rmse * 0.8, RMSE: rmse, R2: 0.9},
		TestSamples: 10,
		EvaluatedAt: at,
	}
	require.NoError(t, f.ledger.Append(context.Background(), &rec))
	return rec
}

func TestGateFirstModelPromotes(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.ledger, f.store, f.deployments, PolicyPromote, nil)
	ctx := context.Background()

	version := f.putArtifact(t, 24, "random_forest")
	rec := f.appendRecord(t, 24, "random_forest", 8.5, time.Now().UTC())

	decision, err := gate.Decide(ctx, Candidate{Record: rec, Version: version})
	require.NoError(t, err)
	assert.True(t, decision.Promoted)
	assert.Equal(t, ReasonFirstModel, decision.Reason)
	assert.Nil(t, decision.PreviousRMSE)

	active, err := f.store.ActiveVersion(24)
	require.NoError(t, err)
	assert.Equal(t, version, active)

	dep, err := f.deployments.Get(24)
	require.NoError(t, err)
	assert.Equal(t, ReasonFirstModel, dep.Reason)
	assert.Equal(t, "random_forest", dep.Algorithm)

	stored, err := f.ledger.Latest(ctx, 24, "random_forest", 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Deployed)
}

func TestGateImprovedPromotes(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.ledger, f.store, f.deployments, PolicyPromote, nil)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	f.appendRecord(t, 24, "random_forest", 10.0, base)
	version := f.putArtifact(t, 24, "random_forest")
	rec := f.appendRecord(t, 24, "random_forest", 8.5, base.Add(24*time.Hour))

	decision, err := gate.Decide(ctx, Candidate{Record: rec, Version: version})
	require.NoError(t, err)
	assert.True(t, decision.Promoted)
	assert.Equal(t, ReasonImproved, decision.Reason)
	require.NotNil(t, decision.PreviousRMSE)
	assert.Equal(t, 10.0, *decision.PreviousRMSE)
	assert.Equal(t, 8.5, decision.NewRMSE)
}

func TestGateDegradedHolds(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.ledger, f.store, f.deployments, PolicyPromote, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// A prior model is already serving.
	servingVersion := f.putArtifact(t, 24, "random_forest")
	prior := f.appendRecord(t, 24, "random_forest", 10.0, base)
	_, err := gate.Decide(ctx, Candidate{Record: prior, Version: servingVersion})
	require.NoError(t, err)

	// The new run regressed.
	newVersion := f.putArtifact(t, 24, "random_forest")
	rec := f.appendRecord(t, 24, "random_forest", 11.2, base.Add(24*time.Hour))

	decision, err := gate.Decide(ctx, Candidate{Record: rec, Version: newVersion})
	require.NoError(t, err)
	assert.False(t, decision.Promoted)
	assert.Equal(t, ReasonDegraded, decision.Reason)
	assert.Empty(t, decision.Version)

	// The serving model is untouched and the losing record is preserved
	// undeployed for trend history.
	active, err := f.store.ActiveVersion(24)
	require.NoError(t, err)
	assert.Equal(t, servingVersion, active)

	dep, err := f.deployments.Get(24)
	require.NoError(t, err)
	assert.Equal(t, servingVersion, dep.Version)

	stored, err := f.ledger.Latest(ctx, 24, "random_forest", 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Deployed)
}

func TestGateEqualRMSEHolds(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.ledger, f.store, f.deployments, PolicyPromote, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	f.appendRecord(t, 24, "random_forest", 10.0, base)
	version := f.putArtifact(t, 24, "random_forest")
	rec := f.appendRecord(t, 24, "random_forest", 10.0, base.Add(time.Hour))

	decision, err := gate.Decide(ctx, Candidate{Record: rec, Version: version})
	require.NoError(t, err)
	assert.False(t, decision.Promoted, "a tie is not an improvement")
	assert.Equal(t, ReasonDegraded, decision.Reason)
}

func TestGateComparesSameAlgorithmOnly(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.ledger, f.store, f.deployments, PolicyPromote, nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// A different algorithm's stellar history must not block this one.
	f.appendRecord(t, 24, "linear_regression", 2.0, base)
	version := f.putArtifact(t, 24, "random_forest")
	rec := f.appendRecord(t, 24, "random_forest", 9.0, base.Add(time.Hour))

	decision, err := gate.Decide(ctx, Candidate{Record: rec, Version: version})
	require.NoError(t, err)
	assert.True(t, decision.Promoted)
	assert.Equal(t, ReasonFirstModel, decision.Reason)
}

// brokenLedger fails every history read while keeping writes working.
type brokenLedger struct {
	ledger.Ledger
}

func (b *brokenLedger) Latest(context.Context, dataset.Horizon, string, int) ([]ledger.EvaluationRecord, error) {
	return nil, errors.New("connection refused")
}

func TestGateHistoryErrorPolicies(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("promote policy fails open", func(t *testing.T) {
		f := newFixture(t)
		broken := &brokenLedger{Ledger: f.ledger}
		gate := NewGate(broken, f.store, f.deployments, PolicyPromote, nil)

		version := f.putArtifact(t, 24, "random_forest")
		rec := f.appendRecord(t, 24, "random_forest", 9.0, base)

		decision, err := gate.Decide(context.Background(), Candidate{Record: rec, Version: version})
		require.NoError(t, err)
		assert.True(t, decision.Promoted)
		assert.Equal(t, ReasonFirstModel, decision.Reason)

		active, err := f.store.ActiveVersion(24)
		require.NoError(t, err)
		assert.Equal(t, version, active)
	})

	t.Run("hold policy fails closed", func(t *testing.T) {
		f := newFixture(t)
		broken := &brokenLedger{Ledger: f.ledger}
		gate := NewGate(broken, f.store, f.deployments, PolicyHold, nil)

		version := f.putArtifact(t, 24, "random_forest")
		rec := f.appendRecord(t, 24, "random_forest", 9.0, base)

		decision, err := gate.Decide(context.Background(), Candidate{Record: rec, Version: version})
		require.NoError(t, err)
		assert.False(t, decision.Promoted)
		assert.Equal(t, ReasonDegraded, decision.Reason)

		_, err = f.store.ActiveVersion(24)
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})
}

// stubPublisher records promotion events and can be made to fail.
type stubPublisher struct {
	events []registry.DeploymentRecord
	err    error
}

func (p *stubPublisher) PublishPromotion(_ context.Context, rec registry.DeploymentRecord) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, rec)
	return nil
}

func TestGatePublishesPromotionEvents(t *testing.T) {
	f := newFixture(t)
	pub := &stubPublisher{}
	gate := NewGate(f.ledger, f.store, f.deployments, PolicyPromote, pub)
	ctx := context.Background()

	version := f.putArtifact(t, 24, "random_forest")
	rec := f.appendRecord(t, 24, "random_forest", 9.0, time.Now().UTC())

	decision, err := gate.Decide(ctx, Candidate{Record: rec, Version: version})
	require.NoError(t, err)
	require.True(t, decision.Promoted)
	require.Len(t, pub.events, 1)
	assert.Equal(t, version, pub.events[0].Version)
}

func TestGatePublishFailureDoesNotUndoPromotion(t *testing.T) {
	f := newFixture(t)
	pub := &stubPublisher{err: errors.New("broker down")}
	gate := NewGate(f.ledger, f.store, f.deployments, PolicyPromote, pub)
	ctx := context.Background()

	version := f.putArtifact(t, 24, "random_forest")
	rec := f.appendRecord(t, 24, "random_forest", 9.0, time.Now().UTC())

	decision, err := gate.Decide(ctx, Candidate{Record: rec, Version: version})
	require.NoError(t, err)
	assert.True(t, decision.Promoted)

	active, err := f.store.ActiveVersion(24)
	require.NoError(t, err)
	assert.Equal(t, version, active)
}
