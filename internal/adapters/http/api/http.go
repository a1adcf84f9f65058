// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/passwatch/internal/adapters/mq/queue"
	"github.com/okian/passwatch/internal/adapters/registry"
	"github.com/okian/passwatch/internal/adapters/repository"
	service "github.com/okian/passwatch/internal/app"
	"github.com/okian/passwatch/internal/domain/features"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/internal/domain/prediction"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CheckpointDependencies
	TrainingDependencies
	ModelDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	checkpointHandler *CheckpointHandler
	trainingHandler   *TrainingHandler
	modelHandler      *ModelHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(deps),
		statsHandler:      NewStatsHandler(statsProvider),
		checkpointHandler: NewCheckpointHandler(deps),
		trainingHandler:   NewTrainingHandler(deps),
		modelHandler:      NewModelHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /checkpoints", MetricsMiddleware(s.checkpointHandler.HandleList, "checkpoints"))
	mux.HandleFunc("GET /checkpoints/{id}", MetricsMiddleware(s.checkpointHandler.HandleGet, "checkpoint_get"))
	mux.HandleFunc("PUT /checkpoints/{id}", MetricsMiddleware(s.checkpointHandler.HandleUpsert, "checkpoint_upsert"))
	mux.HandleFunc("GET /checkpoints/{id}/history", MetricsMiddleware(s.checkpointHandler.HandleHistory, "history"))
	mux.HandleFunc("GET /checkpoints/{id}/social-media", MetricsMiddleware(s.checkpointHandler.HandleSocial, "social_media"))
	mux.HandleFunc("GET /checkpoints/{id}/predict", MetricsMiddleware(s.checkpointHandler.HandlePredict, "predict"))
	mux.HandleFunc("POST /checkpoints/{id}/status", MetricsMiddleware(s.checkpointHandler.HandleReportStatus, "report_status"))
	mux.HandleFunc("GET /predictions/recent", MetricsMiddleware(s.checkpointHandler.HandleRecent, "predictions_recent"))

	mux.HandleFunc("POST /training", MetricsMiddleware(s.trainingHandler.HandleSubmit, "training_submit"))
	mux.HandleFunc("GET /training", MetricsMiddleware(s.trainingHandler.HandleList, "training_list"))
	mux.HandleFunc("GET /training/{id}", MetricsMiddleware(s.trainingHandler.HandleGet, "training_get"))

	mux.HandleFunc("GET /model", MetricsMiddleware(s.modelHandler.HandleInfo, "model"))
	mux.HandleFunc("GET /model/importance", MetricsMiddleware(s.modelHandler.HandleImportance, "model_importance"))
	mux.HandleFunc("POST /model/load", MetricsMiddleware(s.modelHandler.HandleLoad, "model_load"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates upstream errors to a status and error code.
func writeDomainError(w http.ResponseWriter, err error) {
	var mismatch *features.MismatchError
	switch {
	case errors.Is(err, prediction.ErrModelNotTrained), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "model_not_trained", err)
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, registry.ErrArtifactNotFound),
		errors.Is(err, service.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, registry.ErrInvalidVersion),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidQuery),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err)
	case errors.As(err, &mismatch):
		writeError(w, http.StatusInternalServerError, "feature_mismatch", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func checkpointID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, errors.Join(ErrBadRequest, errors.New("checkpoint id must be an integer"))
	}
	return id, nil
}

// optionalTime parses an RFC3339 value; empty yields the zero time.
func optionalTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.Join(ErrBadRequest, errors.New("invalid time; must be RFC3339"))
	}
	return t, nil
}

// parseHorizon accepts the horizon name or its length in hours.
func parseHorizon(v string) (model.Horizon, error) {
	switch v {
	case "", "short", "2", string(model.HorizonShort):
		return model.HorizonShort, nil
	case "long", "18", string(model.HorizonLong):
		return model.HorizonLong, nil
	}
	return "", errors.Join(ErrBadRequest, errors.New("horizon must be short_term or long_term"))
}

// compile-time checks
var (
	_ Dependencies  = (*service.Service)(nil)
	_ StatsProvider = (*service.Service)(nil)
)
