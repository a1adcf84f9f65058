package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/passwatch/internal/domain/model"
)

// TrainingDependencies defines the training job operations the API needs.
type TrainingDependencies interface {
	SubmitTraining(ctx context.Context, req model.TrainingRequest) (model.TrainingJob, error)
	Job(ctx context.Context, id string) (model.TrainingJob, error)
	Jobs(ctx context.Context) []model.TrainingJob
}

// TrainingHandler handles training job requests.
type TrainingHandler struct {
	deps TrainingDependencies
}

// NewTrainingHandler creates a new training handler.
func NewTrainingHandler(deps TrainingDependencies) *TrainingHandler {
	return &TrainingHandler{deps: deps}
}

// trainRequest mirrors the body of POST /training. Every field is optional.
type trainRequest struct {
	Start                   string `json:"start"`
	End                     string `json:"end"`
	MinSamplesPerCheckpoint int    `json:"min_samples_per_checkpoint"`
	Version                 string `json:"version"`
}

func (t trainRequest) toModel() (model.TrainingRequest, error) {
	start, err := optionalTime(t.Start)
	if err != nil {
		return model.TrainingRequest{}, err
	}
	end, err := optionalTime(t.End)
	if err != nil {
		return model.TrainingRequest{}, err
	}
	if t.MinSamplesPerCheckpoint < 0 {
		return model.TrainingRequest{}, errors.Join(ErrBadRequest, errors.New("min_samples_per_checkpoint must not be negative"))
	}
	return model.TrainingRequest{
		Start:                   start,
		End:                     end,
		MinSamplesPerCheckpoint: t.MinSamplesPerCheckpoint,
		Version:                 t.Version,
	}, nil
}

// HandleSubmit handles POST /training requests. An empty body trains over
// the configured lookback.
func (h *TrainingHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var body trainRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}
	req, err := body.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	job, err := h.deps.SubmitTraining(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// HandleList handles GET /training requests.
func (h *TrainingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	jobs := h.deps.Jobs(r.Context())
	if jobs == nil {
		jobs = []model.TrainingJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleGet handles GET /training/{id} requests.
func (h *TrainingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
