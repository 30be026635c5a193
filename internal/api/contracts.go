package api

import (
	"time"

	"github.com/airwatch/aqicast/internal/ledger"
)

// ModelInfoResponse describes the active model for one horizon.
type ModelInfoResponse struct {
	Horizon    string         `json:"horizon"`
	Algorithm  string         `json:"algorithm"`
	Version    string         `json:"version"`
	Reason     string         `json:"reason"`
	DeployedAt time.Time      `json:"deployed_at"`
	Metrics    ledger.Metrics `json:"metrics"`
}

// OverviewEntry is one horizon's slice of the performance dashboard.
type OverviewEntry struct {
	CurrentMAE    float64  `json:"current_mae"`
	CurrentRMSE   float64  `json:"current_rmse"`
	CurrentR2     float64  `json:"current_r2"`
	CurrentMAPE   *float64 `json:"current_mape,omitempty"`
	Trend         string   `json:"trend"`
	TotalRuns     int      `json:"total_runs"`
	ActiveVersion string   `json:"active_version,omitempty"`
	Algorithm     string   `json:"algorithm,omitempty"`
	LastTrained   string   `json:"last_trained,omitempty"`
}

// OverviewResponse maps horizon name to its dashboard entry.
type OverviewResponse map[string]OverviewEntry

// HistoryResponse is the ordered evaluation history for one horizon.
type HistoryResponse struct {
	Horizon string                    `json:"horizon"`
	Count   int                       `json:"count"`
	History []ledger.EvaluationRecord `json:"history"`
}

// ComparisonSide is one run's metrics inside a comparison.
type ComparisonSide struct {
	Timestamp time.Time `json:"timestamp"`
	Algorithm string    `json:"algorithm"`
	RMSE      float64   `json:"rmse"`
	MAE       float64   `json:"mae"`
	R2        float64   `json:"r2"`
	Version   string    `json:"version,omitempty"`
}

// ComparisonResponse contrasts the two most recent runs for a horizon.
type ComparisonResponse struct {
	Horizon    string         `json:"horizon"`
	Current    ComparisonSide `json:"current"`
	Previous   ComparisonSide `json:"previous"`
	Comparison struct {
		RMSEChangePct  float64 `json:"rmse_change_pct"`
		AbsoluteChange float64 `json:"absolute_change"`
		Status         string  `json:"status"` // improved | degraded
	} `json:"comparison"`
}

// PredictionResponse is one horizon's forecast from the active model.
type PredictionResponse struct {
	Horizon      string    `json:"horizon"`
	PredictedAQI float64   `json:"predicted_aqi"`
	Algorithm    string    `json:"algorithm"`
	Version      string    `json:"version"`
	FeatureTime  time.Time `json:"feature_time"`
}

// PredictionsResponse bundles forecasts for every configured horizon.
type PredictionsResponse struct {
	Station     string                 `json:"station"`
	Predictions map[string]float64     `json:"predictions"`
	Errors      map[string]string      `json:"errors,omitempty"`
	Current     map[string]interface{} `json:"current,omitempty"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
