package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/features"
	"github.com/airwatch/aqicast/internal/ledger"
	"github.com/airwatch/aqicast/internal/registry"
)

// Server is the read-side query surface for dashboards and serving clients.
// It only ever reads: a training run in progress can never be corrupted from
// here, and its own reads see pre-run or post-run state per horizon, never a
// mix, because artifacts land before deployment records reference them.
type Server struct {
	station     string
	horizons    []dataset.Horizon
	ledger      ledger.Ledger
	store       *registry.FileStore
	deployments *registry.DeploymentMetadata
	online      *features.OnlineStore
}

// NewServer wires the query surface. online may be nil; prediction endpoints
// then report that no live features are available.
func NewServer(station string, horizons []dataset.Horizon, led ledger.Ledger,
	store *registry.FileStore, deployments *registry.DeploymentMetadata, online *features.OnlineStore) *Server {
	return &Server{
		station:     station,
		horizons:    horizons,
		ledger:      led,
		store:       store,
		deployments: deployments,
		online:      online,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/models/{horizon}", s.handleModelInfo).Methods(http.MethodGet)
	v1.HandleFunc("/models/{horizon}/compare", s.handleCompare).Methods(http.MethodGet)
	v1.HandleFunc("/performance/overview", s.handleOverview).Methods(http.MethodGet)
	v1.HandleFunc("/performance/{horizon}/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/predict/{horizon}", s.handlePredict).Methods(http.MethodGet)
	v1.HandleFunc("/predictions", s.handlePredictions).Methods(http.MethodGet)
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(mux.Vars(r)["horizon"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := s.deployments.Get(horizon)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no active model for horizon %s", horizon))
		return
	}

	writeJSON(w, http.StatusOK, ModelInfoResponse{
		Horizon:    horizon.String(),
		Algorithm:  rec.Algorithm,
		Version:    rec.Version,
		Reason:     rec.Reason,
		DeployedAt: rec.DecidedAt,
		Metrics:    rec.Metrics,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	out := make(OverviewResponse, len(s.horizons))
	for _, h := range s.horizons {
		entry, err := s.overviewEntry(r.Context(), h)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out[h.String()] = entry
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) overviewEntry(ctx context.Context, h dataset.Horizon) (OverviewEntry, error) {
	best, err := s.ledger.Best(ctx, h, ledger.MetricMAE)
	if err != nil {
		return OverviewEntry{}, err
	}

	recent, err := s.ledger.Latest(ctx, h, "", 2)
	if err != nil {
		return OverviewEntry{}, err
	}
	total, err := s.ledger.CountByHorizon(ctx, h)
	if err != nil {
		return OverviewEntry{}, err
	}

	entry := OverviewEntry{
		CurrentMAE:  best.MAE,
		CurrentRMSE: best.RMSE,
		CurrentR2:   best.R2,
		CurrentMAPE: best.MAPE,
		Trend:       ledger.TrendOf(recent),
		TotalRuns:   total,
		LastTrained: best.EvaluatedAt.UTC().Format(time.RFC3339),
	}
	if dep, err := s.deployments.Get(h); err == nil {
		entry.ActiveVersion = dep.Version
		entry.Algorithm = dep.Algorithm
	}
	return entry, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(mux.Vars(r)["horizon"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	recs, err := s.ledger.Latest(r.Context(), horizon, "", limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Horizon: horizon.String(),
		Count:   len(recs),
		History: recs,
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(mux.Vars(r)["horizon"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recent, err := s.ledger.Latest(r.Context(), horizon, "", 2)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(recent) < 2 {
		writeError(w, http.StatusNotFound, fmt.Errorf("need at least 2 runs for horizon %s", horizon))
		return
	}

	current, previous := recent[0], recent[1]
	resp := ComparisonResponse{
		Horizon: horizon.String(),
		Current: ComparisonSide{
			Timestamp: current.EvaluatedAt,
			Algorithm: current.Algorithm,
			RMSE:      current.RMSE,
			MAE:       current.MAE,
			R2:        current.R2,
		},
		Previous: ComparisonSide{
			Timestamp: previous.EvaluatedAt,
			Algorithm: previous.Algorithm,
			RMSE:      previous.RMSE,
			MAE:       previous.MAE,
			R2:        previous.R2,
		},
	}
	if dep, err := s.deployments.Get(horizon); err == nil {
		resp.Current.Version = dep.Version
	}

	improvement := (previous.RMSE - current.RMSE) / previous.RMSE * 100
	resp.Comparison.RMSEChangePct = improvement
	resp.Comparison.AbsoluteChange = previous.RMSE - current.RMSE
	if improvement > 0 {
		resp.Comparison.Status = "improved"
	} else {
		resp.Comparison.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(mux.Vars(r)["horizon"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.predictOne(r.Context(), horizon)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrNotFound) || errors.Is(err, features.ErrNoLatest) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	resp := PredictionsResponse{
		Station:     s.station,
		Predictions: make(map[string]float64, len(s.horizons)),
	}
	for _, h := range s.horizons {
		one, err := s.predictOne(r.Context(), h)
		if err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[h.String()] = err.Error()
			continue
		}
		resp.Predictions[h.String()] = one.PredictedAQI
	}
	writeJSON(w, http.StatusOK, resp)
}

// predictOne scores the freshest online observation with the horizon's
// active artifact. The artifact's stored feature column order guarantees the
// live input is formatted exactly like training-time inputs.
func (s *Server) predictOne(ctx context.Context, horizon dataset.Horizon) (*PredictionResponse, error) {
	if s.online == nil {
		return nil, fmt.Errorf("no online feature store configured")
	}

	row, err := s.online.GetLatest(ctx, s.station)
	if err != nil {
		return nil, err
	}

	artifact, version, err := s.store.GetActive(horizon)
	if err != nil {
		return nil, err
	}

	pred, err := artifact.Predict([][]float64{row.Features()})
	if err != nil {
		return nil, fmt.Errorf("prediction failed for %s: %w", horizon, err)
	}

	return &PredictionResponse{
		Horizon:      horizon.String(),
		PredictedAQI: pred[0],
		Algorithm:    artifact.Algorithm,
		Version:      version,
		FeatureTime:  row.Timestamp,
	}, nil
}

func parseHorizon(raw string) (dataset.Horizon, error) {
	trimmed := strings.TrimSuffix(raw, "h")
	n, err := strconv.Atoi(trimmed)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid horizon %q", raw)
	}
	return dataset.Horizon(n), nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
