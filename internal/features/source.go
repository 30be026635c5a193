package features

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/airwatch/aqicast/internal/dataset"
)

// Source supplies the time-ordered training window the pipeline consumes.
// How the rows got there (collector, backfill, migration) is not its concern.
type Source interface {
	// GetTrainingWindow returns rows for one station with timestamps in
	// [start, end), sorted ascending.
	GetTrainingWindow(ctx context.Context, start, end time.Time) (*dataset.Table, error)
}

// RowWriter accepts newly collected observations.
type RowWriter interface {
	InsertRow(ctx context.Context, row dataset.Row) error
}

// Schema creates the hourly feature table.
const Schema = `
CREATE TABLE IF NOT EXISTS aqi_features (
	ts         TIMESTAMPTZ NOT NULL,
	station    TEXT NOT NULL,
	temp       DOUBLE PRECISION NOT NULL DEFAULT 0,
	humidity   DOUBLE PRECISION NOT NULL DEFAULT 0,
	pressure   DOUBLE PRECISION NOT NULL DEFAULT 0,
	wind_speed DOUBLE PRECISION NOT NULL DEFAULT 0,
	dew        DOUBLE PRECISION NOT NULL DEFAULT 0,
	pm25       DOUBLE PRECISION NOT NULL DEFAULT 0,
	aqi        DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (station, ts)
);
CREATE INDEX IF NOT EXISTS idx_aqi_features_ts ON aqi_features (ts);
`

// PostgresSource reads and writes the hourly feature table.
type PostgresSource struct {
	db      *sqlx.DB
	station string
	timeout time.Duration
}

// NewPostgresSource creates a feature source for one station.
func NewPostgresSource(db *sqlx.DB, station string, timeout time.Duration) *PostgresSource {
	return &PostgresSource{db: db, station: station, timeout: timeout}
}

// InitSchema applies the feature table schema. Safe to run repeatedly.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply feature schema: %w", err)
	}
	return nil
}

func (s *PostgresSource) GetTrainingWindow(ctx context.Context, start, end time.Time) (*dataset.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []dataset.Row
	query := `
		SELECT ts, station, temp, humidity, pressure, wind_speed, dew, pm25, aqi
		FROM aqi_features
		WHERE station = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`
	if err := s.db.SelectContext(ctx, &rows, query, s.station, start, end); err != nil {
		return nil, fmt.Errorf("failed to load training window: %w", err)
	}

	return &dataset.Table{Station: s.station, Rows: rows}, nil
}

// InsertRow upserts one hourly observation; re-collecting the same hour
// overwrites rather than duplicates.
func (s *PostgresSource) InsertRow(ctx context.Context, row dataset.Row) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO aqi_features (ts, station, temp, humidity, pressure, wind_speed, dew, pm25, aqi)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (station, ts) DO UPDATE SET
			temp = EXCLUDED.temp,
			humidity = EXCLUDED.humidity,
			pressure = EXCLUDED.pressure,
			wind_speed = EXCLUDED.wind_speed,
			dew = EXCLUDED.dew,
			pm25 = EXCLUDED.pm25,
			aqi = EXCLUDED.aqi`
	if _, err := s.db.ExecContext(ctx, query,
		row.Timestamp, row.Station, row.Temp, row.Humidity, row.Pressure,
		row.WindSpeed, row.Dew, row.PM25, row.AQI); err != nil {
		return fmt.Errorf("failed to insert feature row: %w", err)
	}
	return nil
}
