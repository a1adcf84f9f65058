package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	service "github.com/okian/passwatch/internal/app"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/internal/domain/training"
)

const defaultImportanceTop = 20

// ModelDependencies defines the model operations the API needs.
type ModelDependencies interface {
	ModelReady() bool
	ModelInfo(ctx context.Context) (service.ModelInfo, error)
	Importance(ctx context.Context, h model.Horizon, n int) ([]training.FeatureImportance, error)
	LoadModel(ctx context.Context, version string) (string, error)
}

// ModelHandler handles model inspection and loading.
type ModelHandler struct {
	deps ModelDependencies
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps ModelDependencies) *ModelHandler {
	return &ModelHandler{deps: deps}
}

// HandleInfo handles GET /model requests.
func (h *ModelHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.ModelInfo(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type importanceResponse struct {
	Horizon  model.Horizon                `json:"horizon"`
	Features []training.FeatureImportance `json:"features"`
}

// HandleImportance handles GET /model/importance?horizon=&top=N requests.
func (h *ModelHandler) HandleImportance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	horizon, err := parseHorizon(q.Get("horizon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	top := defaultImportanceTop
	if v := q.Get("top"); v != "" {
		top, err = strconv.Atoi(v)
		if err != nil || top <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, errors.New("top must be a positive integer")))
			return
		}
	}
	feats, err := h.deps.Importance(r.Context(), horizon, top)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importanceResponse{Horizon: horizon, Features: feats})
}

type loadRequest struct {
	Version string `json:"version"`
}

type loadResponse struct {
	Version string `json:"version"`
}

// HandleLoad handles POST /model/load requests. An empty version loads the
// latest artifact.
func (h *ModelHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}
	version, err := h.deps.LoadModel(r.Context(), req.Version)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{Version: version})
}
