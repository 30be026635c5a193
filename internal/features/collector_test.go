package features

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/aqicast/internal/dataset"
)

type captureWriter struct {
	rows []dataset.Row
}

func (w *captureWriter) InsertRow(_ context.Context, row dataset.Row) error {
	w.rows = append(w.rows, row)
	return nil
}

const feedPayload = `{
	"status": "ok",
	"data": {
		"aqi": 156,
		"iaqi": {
			"t": {"v": 28.5},
			"h": {"v": 41},
			"p": {"v": 1006.2},
			"w": {"v": 2.1},
			"dew": {"v": 14},
			"pm25": {"v": 156}
		},
		"time": {"iso": "2026-08-27T14:37:00+05:00"}
	}
}`

func feedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCollector(baseURL string, writer RowWriter, retries int) *Collector {
	return NewCollector(CollectorConfig{
		BaseURL: baseURL,
		Token:   "test-token",
		Station: "islamabad",
		Retries: retries,
		Backoff: time.Millisecond,
		RateRPS: 1000,
	}, writer, nil)
}

func TestCollectStoresHourlyRow(t *testing.T) {
	srv := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feed/islamabad/", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		w.Write([]byte(feedPayload))
	})

	writer := &captureWriter{}
	c := newTestCollector(srv.URL, writer, 0)
	require.NoError(t, c.Collect(context.Background()))

	require.Len(t, writer.rows, 1)
	row := writer.rows[0]
	assert.Equal(t, "islamabad", row.Station)
	assert.Equal(t, 156.0, row.AQI)
	assert.Equal(t, 28.5, row.Temp)
	assert.Equal(t, 156.0, row.PM25)

	// The observation timestamp is normalized to UTC and the hour boundary.
	assert.Equal(t, time.UTC, row.Timestamp.Location())
	assert.Equal(t, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC), row.Timestamp)
}

func TestCollectRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(feedPayload))
	})

	writer := &captureWriter{}
	c := newTestCollector(srv.URL, writer, 3)
	require.NoError(t, c.Collect(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, writer.rows, 1)
}

func TestCollectGivesUpAfterRetryBudget(t *testing.T) {
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	writer := &captureWriter{}
	c := newTestCollector(srv.URL, writer, 1)
	assert.Error(t, c.Collect(context.Background()))
	assert.Empty(t, writer.rows)
}

func TestCollectRejectsFeedErrorStatus(t *testing.T) {
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status": "error", "data": {}}`))
	})

	c := newTestCollector(srv.URL, &captureWriter{}, 0)
	err := c.Collect(context.Background())
	assert.ErrorContains(t, err, "non-ok status")
}

func TestCollectRejectsEmptyObservation(t *testing.T) {
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status": "ok", "data": {"aqi": 0, "iaqi": {}, "time": {"iso": ""}}}`))
	})

	c := newTestCollector(srv.URL, &captureWriter{}, 0)
	err := c.Collect(context.Background())
	assert.ErrorIs(t, err, errMissingIndex)
}
