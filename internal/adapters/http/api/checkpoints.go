package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/passwatch/internal/adapters/publish"
	"github.com/okian/passwatch/internal/domain/model"
)

// CheckpointDependencies defines the checkpoint operations the API needs.
type CheckpointDependencies interface {
	Checkpoints(ctx context.Context) ([]model.CheckpointMeta, error)
	Predict(ctx context.Context, checkpointID int64, ref time.Time) (model.PredictionResult, error)
	ReportStatus(ctx context.Context, checkpointID int64, status model.Status, at time.Time, notes string) (model.StatusObservation, error)
	Checkpoint(ctx context.Context, id int64) (model.CheckpointMeta, error)
	UpsertCheckpoint(ctx context.Context, cp model.CheckpointMeta) error
	History(ctx context.Context, checkpointID int64, window time.Duration) ([]model.StatusObservation, error)
	SocialSignals(ctx context.Context, checkpointID int64, window time.Duration, limit int) ([]model.SocialSignal, error)
	RecentPredictions(ctx context.Context, window time.Duration, limit int) ([]publish.RecentPrediction, error)
}

// CheckpointHandler handles checkpoint listing, prediction and status reports.
type CheckpointHandler struct {
	deps CheckpointDependencies
}

// NewCheckpointHandler creates a new checkpoint handler.
func NewCheckpointHandler(deps CheckpointDependencies) *CheckpointHandler {
	return &CheckpointHandler{deps: deps}
}

type checkpointResponse struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	Type      model.CheckpointType `json:"type"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	Active    bool                 `json:"active"`
}

func toCheckpointResponse(cp model.CheckpointMeta) checkpointResponse {
	return checkpointResponse{
		ID: cp.ID, Name: cp.Name, Type: cp.Type,
		Latitude: cp.Latitude, Longitude: cp.Longitude, Active: cp.Active,
	}
}

// HandleList handles GET /checkpoints requests.
func (h *CheckpointHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cps, err := h.deps.Checkpoints(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]checkpointResponse, 0, len(cps))
	for _, cp := range cps {
		out = append(out, toCheckpointResponse(cp))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /checkpoints/{id} requests.
func (h *CheckpointHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	cp, err := h.deps.Checkpoint(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckpointResponse(cp))
}

// upsertRequest mirrors the body of PUT /checkpoints/{id}. Active defaults to true.
type upsertRequest struct {
	Name      string               `json:"name"`
	Type      model.CheckpointType `json:"type"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	Active    *bool                `json:"active"`
}

// HandleUpsert handles PUT /checkpoints/{id} requests.
func (h *CheckpointHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}
	cp := model.CheckpointMeta{
		ID: id, Name: strings.TrimSpace(req.Name), Type: req.Type,
		Latitude: req.Latitude, Longitude: req.Longitude, Active: true,
	}
	if req.Active != nil {
		cp.Active = *req.Active
	}
	if err := h.deps.UpsertCheckpoint(r.Context(), cp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckpointResponse(cp))
}

type historyResponse struct {
	Status     model.Status `json:"status"`
	Timestamp  time.Time    `json:"timestamp"`
	Source     model.Source `json:"source"`
	Confidence float64      `json:"confidence"`
	Verified   bool         `json:"verified"`
	Notes      string       `json:"notes,omitempty"`
}

// HandleHistory handles GET /checkpoints/{id}/history?hours=N requests.
func (h *CheckpointHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	window, err := hoursParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	obs, err := h.deps.History(r.Context(), id, window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]historyResponse, 0, len(obs))
	for _, o := range obs {
		out = append(out, historyResponse{
			Status: o.Status, Timestamp: o.Timestamp, Source: o.Source,
			Confidence: o.Confidence, Verified: o.Verified, Notes: o.Notes,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type signalResponse struct {
	SourceID       string        `json:"source_id,omitempty"`
	Source         model.Source  `json:"source"`
	PostedAt       time.Time     `json:"posted_at"`
	SentimentScore *float64      `json:"sentiment_score"`
	InferredStatus *model.Status `json:"inferred_status"`
	Confidence     *float64      `json:"confidence"`
	Likes          *int64        `json:"likes,omitempty"`
	Shares         *int64        `json:"shares,omitempty"`
	Comments       *int64        `json:"comments,omitempty"`
}

// HandleSocial handles GET /checkpoints/{id}/social-media?hours=N&limit=M requests.
func (h *CheckpointHandler) HandleSocial(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	window, err := hoursParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sigs, err := h.deps.SocialSignals(r.Context(), id, window, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]signalResponse, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, signalResponse{
			SourceID: s.SourceID, Source: s.Source, PostedAt: s.PostedAt,
			SentimentScore: s.SentimentScore, InferredStatus: s.InferredStatus, Confidence: s.Confidence,
			Likes: s.Likes, Shares: s.Shares, Comments: s.Comments,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRecent handles GET /predictions/recent?hours=N&limit=M requests.
func (h *CheckpointHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	window, err := hoursParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	preds, err := h.deps.RecentPredictions(r.Context(), window, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if preds == nil {
		preds = []publish.RecentPrediction{}
	}
	writeJSON(w, http.StatusOK, preds)
}

// hoursParam reads the optional positive hours query value. Absent yields zero.
func hoursParam(r *http.Request) (time.Duration, error) {
	n, err := positiveParam(r, "hours")
	return time.Duration(n) * time.Hour, err
}

// limitParam reads the optional positive limit query value. Absent yields zero.
func limitParam(r *http.Request) (int, error) {
	return positiveParam(r, "limit")
}

func positiveParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Join(ErrBadRequest, errors.New(name+" must be a positive integer"))
	}
	return n, nil
}

// HandlePredict handles GET /checkpoints/{id}/predict?at=RFC3339 requests.
// Without at the reference time is now.
func (h *CheckpointHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ref, err := optionalTime(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := h.deps.Predict(r.Context(), id, ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusRequest mirrors the body of POST /checkpoints/{id}/status.
type statusRequest struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Notes     string `json:"notes"`
}

type statusResponse struct {
	CheckpointID int64        `json:"checkpoint_id"`
	Status       model.Status `json:"status"`
	Timestamp    time.Time    `json:"timestamp"`
	Source       model.Source `json:"source"`
	Confidence   float64      `json:"confidence"`
	Verified     bool         `json:"verified"`
	Notes        string       `json:"notes,omitempty"`
}

// HandleReportStatus handles POST /checkpoints/{id}/status requests.
func (h *CheckpointHandler) HandleReportStatus(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, errors.New("missing status")))
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	at, err := optionalTime(req.Timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	obs, err := h.deps.ReportStatus(r.Context(), id, status, at, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{
		CheckpointID: obs.CheckpointID,
		Status:       obs.Status,
		Timestamp:    obs.Timestamp,
		Source:       obs.Source,
		Confidence:   obs.Confidence,
		Verified:     obs.Verified,
		Notes:        obs.Notes,
	})
}
