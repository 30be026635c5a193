package dataset

import (
	"fmt"
	"time"
)

// FeatureColumns is the canonical covariate order used for both training and
// serving. Callers formatting live inputs must follow this order exactly.
var FeatureColumns = []string{
	"hour", "day_of_week", "month", "year",
	"temp", "humidity", "pressure", "wind_speed", "dew", "pm25",
}

// Row is one hourly observation for a single station: time-derived and
// environmental covariates plus the observed pollution index.
type Row struct {
	Timestamp time.Time `json:"ts" db:"ts"`
	Station   string    `json:"station" db:"station"`

	Temp      float64 `json:"temp" db:"temp"`
	Humidity  float64 `json:"humidity" db:"humidity"`
	Pressure  float64 `json:"pressure" db:"pressure"`
	WindSpeed float64 `json:"wind_speed" db:"wind_speed"`
	Dew       float64 `json:"dew" db:"dew"`
	PM25      float64 `json:"pm25" db:"pm25"`

	AQI float64 `json:"aqi" db:"aqi"`
}

// Features returns the covariate vector in FeatureColumns order. The
// time-derived columns are computed from the row timestamp in UTC.
func (r Row) Features() []float64 {
	ts := r.Timestamp.UTC()
	return []float64{
		float64(ts.Hour()),
		float64(ts.Weekday()),
		float64(ts.Month()),
		float64(ts.Year()),
		r.Temp,
		r.Humidity,
		r.Pressure,
		r.WindSpeed,
		r.Dew,
		r.PM25,
	}
}

// Table is a time-ordered feature table for one station.
type Table struct {
	Station string
	Rows    []Row
}

// Validate checks the single-entity, ascending, duplicate-free timestamp
// invariants a training run depends on.
func (t *Table) Validate() error {
	for i, row := range t.Rows {
		if t.Station != "" && row.Station != "" && row.Station != t.Station {
			return fmt.Errorf("row %d: station %q does not match table station %q", i, row.Station, t.Station)
		}
		if i == 0 {
			continue
		}
		prev := t.Rows[i-1].Timestamp
		if !row.Timestamp.After(prev) {
			return fmt.Errorf("row %d: timestamp %s not strictly after %s", i, row.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}

// Matrix extracts the covariate matrix for the given row indices.
func (t *Table) Matrix(indices []int) [][]float64 {
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		out[i] = t.Rows[idx].Features()
	}
	return out
}
