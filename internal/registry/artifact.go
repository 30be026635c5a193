package registry

import (
	"fmt"
	"time"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/model"
)

// Artifact is one immutable trained model: the fitted regressor, the scaler
// fitted alongside it when the algorithm needs standardized inputs, and the
// covariate order callers must reproduce at serving time.
type Artifact struct {
	Horizon        dataset.Horizon
	Algorithm      string
	RunID          string
	FeatureColumns []string
	TrainedAt      time.Time

	Model  model.Regressor
	Scaler *model.Scaler
}

// Predict scores covariate rows, applying the training-time scaler first when
// one was fitted.
func (a *Artifact) Predict(features [][]float64) ([]float64, error) {
	if a.Model == nil {
		return nil, fmt.Errorf("artifact %s/%s has no model", a.Horizon, a.Algorithm)
	}
	if a.Scaler != nil {
		features = a.Scaler.Transform(features)
	}
	return a.Model.Predict(features)
}
