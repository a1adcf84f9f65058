package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/passwatch/internal/adapters/http/api"
	"github.com/okian/passwatch/internal/adapters/mq/queue"
	"github.com/okian/passwatch/internal/adapters/publish"
	"github.com/okian/passwatch/internal/adapters/registry"
	"github.com/okian/passwatch/internal/adapters/repository"
	service "github.com/okian/passwatch/internal/app"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/internal/domain/prediction"
	"github.com/okian/passwatch/internal/domain/training"
)

var ref = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// mockDeps implements api.Dependencies with canned answers.
type mockDeps struct {
	ready      bool
	predictErr error
	submitErr  error
	loadErr    error

	gotRef     time.Time
	gotStatus  model.Status
	gotRequest model.TrainingRequest
	gotTop     int
	gotHorizon model.Horizon
	gotWindow  time.Duration
	gotLimit   int
	upserted   []model.CheckpointMeta
}

func (m *mockDeps) Checkpoints(context.Context) ([]model.CheckpointMeta, error) {
	return []model.CheckpointMeta{{ID: 1, Name: "north", Type: model.CheckpointFlying, Active: true}}, nil
}

func (m *mockDeps) Predict(_ context.Context, id int64, at time.Time) (model.PredictionResult, error) {
	m.gotRef = at
	if m.predictErr != nil {
		return model.PredictionResult{}, m.predictErr
	}
	return model.PredictionResult{
		CheckpointID:  id,
		ReferenceTime: at,
		ModelVersion:  "v1",
		ShortTerm:     model.HorizonPrediction{Status: model.StatusClosed, Confidence: 0.8, PredictionFor: at.Add(2 * time.Hour), HorizonHours: 2},
		LongTerm:      model.HorizonPrediction{Status: model.StatusOpen, Confidence: 0.6, PredictionFor: at.Add(18 * time.Hour), HorizonHours: 18},
	}, nil
}

func (m *mockDeps) ReportStatus(_ context.Context, id int64, status model.Status, at time.Time, notes string) (model.StatusObservation, error) {
	if id != 1 {
		return model.StatusObservation{}, fmt.Errorf("%w: %d", repository.ErrNotFound, id)
	}
	m.gotStatus = status
	return model.StatusObservation{CheckpointID: id, Status: status, Timestamp: at, Source: model.SourceManual, Confidence: 1, Verified: true, Notes: notes}, nil
}

func (m *mockDeps) Checkpoint(_ context.Context, id int64) (model.CheckpointMeta, error) {
	if id != 1 {
		return model.CheckpointMeta{}, fmt.Errorf("%w: %d", repository.ErrNotFound, id)
	}
	return model.CheckpointMeta{ID: 1, Name: "north", Type: model.CheckpointFlying, Latitude: 31.9, Longitude: 35.2, Active: true}, nil
}

func (m *mockDeps) UpsertCheckpoint(_ context.Context, cp model.CheckpointMeta) error {
	if cp.Name == "" {
		return fmt.Errorf("%w: checkpoint name must not be empty", repository.ErrInvalidInput)
	}
	m.upserted = append(m.upserted, cp)
	return nil
}

func (m *mockDeps) History(_ context.Context, id int64, window time.Duration) ([]model.StatusObservation, error) {
	if id != 1 {
		return nil, fmt.Errorf("%w: %d", repository.ErrNotFound, id)
	}
	m.gotWindow = window
	return []model.StatusObservation{
		{CheckpointID: 1, Status: model.StatusClosed, Timestamp: ref, Source: model.SourceManual, Confidence: 1, Verified: true},
		{CheckpointID: 1, Status: model.StatusOpen, Timestamp: ref.Add(-time.Hour), Source: model.SourceTelegram, Confidence: 0.7},
	}, nil
}

func (m *mockDeps) SocialSignals(_ context.Context, id int64, window time.Duration, limit int) ([]model.SocialSignal, error) {
	m.gotWindow, m.gotLimit = window, limit
	score := -0.5
	status := model.StatusClosed
	return []model.SocialSignal{{SourceID: "tg-1", CheckpointID: &id, Source: model.SourceTelegram, PostedAt: ref, SentimentScore: &score, InferredStatus: &status}}, nil
}

func (m *mockDeps) RecentPredictions(_ context.Context, window time.Duration, limit int) ([]publish.RecentPrediction, error) {
	m.gotWindow, m.gotLimit = window, limit
	res, _ := m.Predict(context.Background(), 3, ref)
	return []publish.RecentPrediction{{PredictionResult: res, CreatedAt: ref}}, nil
}

func (m *mockDeps) SubmitTraining(_ context.Context, req model.TrainingRequest) (model.TrainingJob, error) {
	m.gotRequest = req
	if m.submitErr != nil {
		return model.TrainingJob{}, m.submitErr
	}
	return model.TrainingJob{ID: "job-1", Status: model.JobQueued, Start: req.Start, End: req.End}, nil
}

func (m *mockDeps) Job(_ context.Context, id string) (model.TrainingJob, error) {
	if id != "job-1" {
		return model.TrainingJob{}, service.ErrJobNotFound
	}
	return model.TrainingJob{ID: id, Status: model.JobCompleted}, nil
}

func (m *mockDeps) Jobs(context.Context) []model.TrainingJob { return nil }

func (m *mockDeps) ModelReady() bool { return m.ready }

func (m *mockDeps) ModelInfo(context.Context) (service.ModelInfo, error) {
	return service.ModelInfo{Loaded: m.ready, Version: "v1", Available: []string{"v1"}}, nil
}

func (m *mockDeps) Importance(_ context.Context, h model.Horizon, n int) ([]training.FeatureImportance, error) {
	m.gotHorizon, m.gotTop = h, n
	if !m.ready {
		return nil, prediction.ErrModelNotTrained
	}
	return []training.FeatureImportance{{Feature: "hour_of_day", Importance: 0.4}}, nil
}

func (m *mockDeps) LoadModel(_ context.Context, version string) (string, error) {
	if m.loadErr != nil {
		return "", m.loadErr
	}
	if version == "" {
		return "v1", nil
	}
	return version, nil
}

func (m *mockDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, deps).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body.Code
}

func TestCheckpointRoutes(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDeps{ready: true}
		mux := newMux(deps)

		Convey("When checkpoints are listed", func() {
			w := do(mux, http.MethodGet, "/checkpoints", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"type":"flying"`)
		})

		Convey("When a prediction is requested at a reference time", func() {
			w := do(mux, http.MethodGet, "/checkpoints/1/predict?at="+ref.Format(time.RFC3339), "")

			Convey("Then both horizons are returned with text statuses", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotRef.Equal(ref), ShouldBeTrue)
				var res model.PredictionResult
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.ShortTerm.Status, ShouldEqual, model.StatusClosed)
				So(res.LongTerm.HorizonHours, ShouldEqual, 18)
				So(w.Body.String(), ShouldContainSubstring, `"status":"closed"`)
			})
		})

		Convey("When a prediction omits the reference time", func() {
			w := do(mux, http.MethodGet, "/checkpoints/1/predict", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotRef.IsZero(), ShouldBeTrue)
		})

		Convey("When the request is malformed", func() {
			So(do(mux, http.MethodGet, "/checkpoints/abc/predict", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/checkpoints/1/predict?at=yesterday", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When prediction errors come back", func() {
			deps.predictErr = prediction.ErrModelNotTrained
			w := do(mux, http.MethodGet, "/checkpoints/1/predict", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(errorCode(w), ShouldEqual, "model_not_trained")

			deps.predictErr = fmt.Errorf("%w: 9", prediction.ErrCheckpointNotFound)
			So(do(mux, http.MethodGet, "/checkpoints/9/predict", "").Code, ShouldEqual, http.StatusNotFound)

			deps.predictErr = fmt.Errorf("read observations: %w", context.DeadlineExceeded)
			So(do(mux, http.MethodGet, "/checkpoints/1/predict", "").Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When a status is reported", func() {
			w := do(mux, http.MethodPost, "/checkpoints/1/status", `{"status":"PARTIAL","notes":"one lane"}`)

			Convey("Then a verified manual observation is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.gotStatus, ShouldEqual, model.StatusPartial)
				So(w.Body.String(), ShouldContainSubstring, `"source":"manual"`)
				So(w.Body.String(), ShouldContainSubstring, `"verified":true`)
			})
		})

		Convey("When a status report is invalid", func() {
			So(do(mux, http.MethodPost, "/checkpoints/1/status", `{"status":"shut"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/checkpoints/1/status", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/checkpoints/1/status", `not json`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/checkpoints/7/status", `{"status":"open"}`).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the wrong method is used", func() {
			So(do(mux, http.MethodPost, "/checkpoints/1/predict", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestCheckpointReadRoutes(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDeps{ready: true}
		mux := newMux(deps)

		Convey("When one checkpoint is requested", func() {
			w := do(mux, http.MethodGet, "/checkpoints/1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"name":"north"`)
			So(do(mux, http.MethodGet, "/checkpoints/2", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/checkpoints/x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a checkpoint is registered", func() {
			w := do(mux, http.MethodPut, "/checkpoints/12", `{"name":" gate ","type":"barrier","latitude":31.5,"longitude":35.1}`)

			Convey("Then it is stored active under the path id", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(deps.upserted), ShouldEqual, 1)
				cp := deps.upserted[0]
				So(cp.ID, ShouldEqual, 12)
				So(cp.Name, ShouldEqual, "gate")
				So(cp.Type, ShouldEqual, model.CheckpointBarrier)
				So(cp.Active, ShouldBeTrue)
			})
		})

		Convey("When a registration is invalid", func() {
			So(do(mux, http.MethodPut, "/checkpoints/12", `{"name":"gate","type":"moat"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPut, "/checkpoints/12", `{"name":""}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPut, "/checkpoints/12", `{"name":"gate","active":false}`).Code, ShouldEqual, http.StatusOK)
			So(deps.upserted[len(deps.upserted)-1].Active, ShouldBeFalse)
		})

		Convey("When history is requested", func() {
			w := do(mux, http.MethodGet, "/checkpoints/1/history?hours=48", "")

			Convey("Then observations come back with text enums", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotWindow, ShouldEqual, 48*time.Hour)
				var body []map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(len(body), ShouldEqual, 2)
				So(body[0]["status"], ShouldEqual, "closed")
				So(body[1]["source"], ShouldEqual, "telegram")
			})

			Convey("Then bad windows and unknown checkpoints are rejected", func() {
				So(do(mux, http.MethodGet, "/checkpoints/1/history?hours=0", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/checkpoints/1/history?hours=day", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/checkpoints/4/history", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When social media posts are requested", func() {
			w := do(mux, http.MethodGet, "/checkpoints/1/social-media?hours=6&limit=10", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotWindow, ShouldEqual, 6*time.Hour)
			So(deps.gotLimit, ShouldEqual, 10)
			So(w.Body.String(), ShouldContainSubstring, `"inferred_status":"closed"`)
			So(w.Body.String(), ShouldContainSubstring, `"sentiment_score":-0.5`)
			So(do(mux, http.MethodGet, "/checkpoints/1/social-media?limit=-1", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When recent predictions are requested", func() {
			w := do(mux, http.MethodGet, "/predictions/recent?limit=5", "")

			Convey("Then each carries its serve time", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotLimit, ShouldEqual, 5)
				So(deps.gotWindow, ShouldEqual, time.Duration(0))
				var body []publish.RecentPrediction
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(len(body), ShouldEqual, 1)
				So(body[0].CheckpointID, ShouldEqual, 3)
				So(body[0].CreatedAt.Equal(ref), ShouldBeTrue)
			})
		})
	})
}

func TestTrainingRoutes(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDeps{ready: true}
		mux := newMux(deps)

		Convey("When training is submitted with an empty body", func() {
			w := do(mux, http.MethodPost, "/training", "")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.gotRequest.Start.IsZero(), ShouldBeTrue)
			So(w.Body.String(), ShouldContainSubstring, `"status":"queued"`)
		})

		Convey("When training is submitted with a range and version", func() {
			body := `{"start":"2024-05-01T00:00:00Z","end":"2024-05-31T00:00:00Z","version":"v9","min_samples_per_checkpoint":20}`
			w := do(mux, http.MethodPost, "/training", body)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.gotRequest.Version, ShouldEqual, "v9")
			So(deps.gotRequest.MinSamplesPerCheckpoint, ShouldEqual, 20)
			So(deps.gotRequest.End.Equal(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("When submission fails", func() {
			So(do(mux, http.MethodPost, "/training", `{"start":"May"}`).Code, ShouldEqual, http.StatusBadRequest)

			deps.submitErr = queue.ErrFull
			w := do(mux, http.MethodPost, "/training", "{}")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(errorCode(w), ShouldEqual, "backpressure")

			deps.submitErr = fmt.Errorf("%w: bad", registry.ErrInvalidVersion)
			So(do(mux, http.MethodPost, "/training", "{}").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When jobs are read", func() {
			So(do(mux, http.MethodGet, "/training/job-1", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/training/other", "").Code, ShouldEqual, http.StatusNotFound)

			w := do(mux, http.MethodGet, "/training", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestModelRoutes(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDeps{ready: true}
		mux := newMux(deps)

		Convey("When model info is requested", func() {
			w := do(mux, http.MethodGet, "/model", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"version":"v1"`)
		})

		Convey("When importance is requested", func() {
			w := do(mux, http.MethodGet, "/model/importance?horizon=18&top=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotHorizon, ShouldEqual, model.HorizonLong)
			So(deps.gotTop, ShouldEqual, 5)
			So(w.Body.String(), ShouldContainSubstring, "hour_of_day")

			So(do(mux, http.MethodGet, "/model/importance?top=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/model/importance?horizon=weekly", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When no model is loaded", func() {
			deps.ready = false
			So(do(mux, http.MethodGet, "/model/importance", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When a model is loaded", func() {
			w := do(mux, http.MethodPost, "/model/load", `{"version":"v3"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"version":"v3"`)

			w = do(mux, http.MethodPost, "/model/load", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"version":"v1"`)

			deps.loadErr = registry.ErrArtifactNotFound
			So(do(mux, http.MethodPost, "/model/load", `{"version":"v4"}`).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When health is requested as JSON", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			req.Header.Set("Accept", "application/json")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"model_loaded":false`)
		})

		Convey("When health is requested by a scraper", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/plain")
		})

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler that panics", t, func() {
		h := api.MetricsMiddleware(func(http.ResponseWriter, *http.Request) { panic("boom") }, "panic")
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

		Convey("Then the client gets a JSON 500", func() {
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(rec.Body.String(), ShouldContainSubstring, `"code":"internal"`)
		})
	})

	Convey("Given a handler that writes its own status", t, func() {
		h := api.MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			w.WriteHeader(http.StatusTeapot)
		}, "accepted")
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/accepted", nil))

		Convey("Then the first status wins", func() {
			So(rec.Code, ShouldEqual, http.StatusAccepted)
		})
	})
}
