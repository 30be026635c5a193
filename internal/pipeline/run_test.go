package pipeline

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
	"github.com/airwatch/aqicast/internal/model"
	"github.com/airwatch/aqicast/internal/promote"
	"github.com/airwatch/aqicast/internal/registry"
)

func syntheticTable(n int) *dataset.Table {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]dataset.Row, n)
	for i := range rows {
		phase := float64(i) / 24 * 2 * math.Pi
		rows[i] = dataset.Row{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Station:   "islamabad",
			Temp:      15 + 8*math.Sin(phase),
			Humidity:  55 + 10*math.Cos(phase),
			Pressure:  1010 + 3*math.Sin(phase/7),
			WindSpeed: 2 + float64(i%5),
			Dew:       10 + 2*math.Sin(phase),
			PM25:      90 + 25*math.Sin(phase) + float64(i%11),
			AQI:       120 + 30*math.Sin(phase) + float64(i%7),
		}
	}
	return &dataset.Table{Station: "islamabad", Rows: rows}
}

type runFixture struct {
	runner      *Runner
	ledger      *ledger.MemoryLedger
	store       *registry.FileStore
	deployments *registry.DeploymentMetadata
}

func newRunFixture(t *testing.T, horizons []dataset.Horizon) *runFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := registry.NewFileStore(filepath.Join(dir, "models"))
	require.NoError(t, err)
	deployments, err := registry.OpenDeploymentMetadata(filepath.Join(dir, "deployment_metadata.json"))
	require.NoError(t, err)
	led := ledger.NewMemoryLedger()

	splitter, err := dataset.NewSplitter(0.7)
	require.NoError(t, err)

	gate := promote.NewGate(led, store, deployments, promote.PolicyPromote, nil)
	runner := NewRunner(
		splitter,
		NewTrainer(model.DefaultRegistry(42), 5),
		NewEvaluator(2),
		store, led, gate, horizons,
	)
	return &runFixture{runner: runner, ledger: led, store: store, deployments: deployments}
}

func TestRunnerFirstRunPromotesEveryHorizon(t *testing.T) {
	f := newRunFixture(t, []dataset.Horizon{24, 48, 72})
	ctx := context.Background()

	summary, err := f.runner.Run(ctx, syntheticTable(200))
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 200, summary.Rows)
	assert.Equal(t, 9, summary.Trained, "three algorithms on three horizons")
	assert.Equal(t, 9, summary.Evaluated)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Decisions, 3)

	for _, decision := range summary.Decisions {
		assert.True(t, decision.Promoted)
		assert.Equal(t, promote.ReasonFirstModel, decision.Reason)
		assert.NotEmpty(t, decision.Version)
	}

	for _, h := range []dataset.Horizon{24, 48, 72} {
		active, err := f.store.ActiveVersion(h)
		require.NoError(t, err)
		assert.NotEmpty(t, active)

		dep, err := f.deployments.Get(h)
		require.NoError(t, err)
		assert.Equal(t, active, dep.Version)

		n, err := f.ledger.CountByHorizon(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, 3, n, "every evaluated pair lands in the ledger")
	}

	// Exactly the winners carry the deployed flag.
	all, err := f.ledger.All(ctx)
	require.NoError(t, err)
	deployed := 0
	for _, rec := range all {
		if rec.Deployed {
			deployed++
		}
	}
	assert.Equal(t, 3, deployed)
}

func TestRunnerRetrainOnIdenticalDataHolds(t *testing.T) {
	f := newRunFixture(t, []dataset.Horizon{24})
	ctx := context.Background()
	table := syntheticTable(200)

	first, err := f.runner.Run(ctx, table)
	require.NoError(t, err)
	require.Len(t, first.Decisions, 1)
	require.True(t, first.Decisions[0].Promoted)

	servingVersion, err := f.store.ActiveVersion(24)
	require.NoError(t, err)

	// Seeded algorithms on identical data reproduce identical metrics, and
	// a tie is not an improvement.
	second, err := f.runner.Run(ctx, table)
	require.NoError(t, err)
	require.Len(t, second.Decisions, 1)
	assert.False(t, second.Decisions[0].Promoted)
	assert.Equal(t, promote.ReasonDegraded, second.Decisions[0].Reason)

	active, err := f.store.ActiveVersion(24)
	require.NoError(t, err)
	assert.Equal(t, servingVersion, active, "serving model unchanged after a hold")

	n, err := f.ledger.CountByHorizon(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestRunnerSkipsHorizonsWithoutLabels(t *testing.T) {
	f := newRunFixture(t, []dataset.Horizon{24, 48, 72})
	ctx := context.Background()

	// 40 hourly rows resolve labels for the 24h horizon only.
	summary, err := f.runner.Run(ctx, syntheticTable(40))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Trained)
	require.Len(t, summary.Decisions, 1)
	assert.Equal(t, "24h", summary.Decisions[0].Horizon)

	_, err = f.store.ActiveVersion(48)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
