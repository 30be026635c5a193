package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
)

func evalRecord(h dataset.Horizon, algo string, mae float64) EvalOutcome {
	return EvalOutcome{
		Horizon:   h,
		Algorithm: algo,
		Status:    EvalOK,
		Record: &ledger.EvaluationRecord{
			Horizon:   h,
			Algorithm: algo,
			Metrics:   ledger.Metrics{MAE: mae, RMSE: mae * 1.3},
		},
	}
}

func TestSelectBestLowestMAEPerHorizon(t *testing.T) {
	outcomes := []EvalOutcome{
		evalRecord(24, "linear_regression", 6.1),
		evalRecord(24, "random_forest", 4.2),
		evalRecord(24, "gradient_boost", 4.9),
		evalRecord(48, "linear_regression", 7.3),
		evalRecord(48, "random_forest", 8.0),
	}

	winners := SelectBest(outcomes)
	require.Len(t, winners, 2)
	assert.Equal(t, "random_forest", winners[24].Algorithm)
	assert.Equal(t, "linear_regression", winners[48].Algorithm)
}

func TestSelectBestIgnoresNonOK(t *testing.T) {
	outcomes := []EvalOutcome{
		{Horizon: 24, Algorithm: "a", Status: EvalSkipped},
		{Horizon: 24, Algorithm: "b", Status: EvalFailed},
	}
	assert.Empty(t, SelectBest(outcomes))
}

func TestSelectBestFirstWinsTies(t *testing.T) {
	outcomes := []EvalOutcome{
		evalRecord(24, "first", 5.0),
		evalRecord(24, "second", 5.0),
	}
	winners := SelectBest(outcomes)
	assert.Equal(t, "first", winners[24].Algorithm)
}
