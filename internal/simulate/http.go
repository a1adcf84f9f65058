package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
)

// Remote run constants.
const (
	jobPollInterval = time.Second
	defaultWorkers  = 8
)

// HTTPClient wraps http.Client with the server base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for the server at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// do sends a request and decodes a 2xx JSON response into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type remoteCheckpoint struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	Type      model.CheckpointType `json:"type"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	Active    bool                 `json:"active"`
}

// Checkpoints lists the server's active checkpoints.
func (c *HTTPClient) Checkpoints(ctx context.Context) ([]model.CheckpointMeta, error) {
	var body []remoteCheckpoint
	if err := c.do(ctx, http.MethodGet, "/checkpoints", nil, &body); err != nil {
		return nil, err
	}
	out := make([]model.CheckpointMeta, 0, len(body))
	for _, cp := range body {
		out = append(out, model.CheckpointMeta{
			ID: cp.ID, Name: cp.Name, Type: cp.Type,
			Latitude: cp.Latitude, Longitude: cp.Longitude, Active: cp.Active,
		})
	}
	return out, nil
}

// UpsertCheckpoint registers checkpoint metadata on the server.
func (c *HTTPClient) UpsertCheckpoint(ctx context.Context, cp model.CheckpointMeta) error {
	body := remoteCheckpoint{
		ID: cp.ID, Name: cp.Name, Type: cp.Type,
		Latitude: cp.Latitude, Longitude: cp.Longitude, Active: cp.Active,
	}
	return c.do(ctx, http.MethodPut, "/checkpoints/"+strconv.FormatInt(cp.ID, 10), body, nil)
}

// ReportStatus posts one observation as a status report.
func (c *HTTPClient) ReportStatus(ctx context.Context, obs model.StatusObservation) error {
	body := map[string]string{
		"status":    obs.Status.String(),
		"timestamp": obs.Timestamp.Format(time.RFC3339),
		"notes":     "simulated",
	}
	return c.do(ctx, http.MethodPost, "/checkpoints/"+strconv.FormatInt(obs.CheckpointID, 10)+"/status", body, nil)
}

// SubmitTraining queues training over [start, end).
func (c *HTTPClient) SubmitTraining(ctx context.Context, start, end time.Time) (model.TrainingJob, error) {
	var job model.TrainingJob
	body := map[string]string{"start": start.Format(time.RFC3339), "end": end.Format(time.RFC3339)}
	err := c.do(ctx, http.MethodPost, "/training", body, &job)
	return job, err
}

// WaitForJob polls a training job until it leaves the queued/running states.
func (c *HTTPClient) WaitForJob(ctx context.Context, id string) (model.TrainingJob, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()
	for {
		var job model.TrainingJob
		if err := c.do(ctx, http.MethodGet, "/training/"+url.PathEscape(id), nil, &job); err != nil {
			return job, err
		}
		if job.Status == model.JobCompleted || job.Status == model.JobFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Predict asks for a prediction at ref.
func (c *HTTPClient) Predict(ctx context.Context, checkpointID int64, ref time.Time) (model.PredictionResult, error) {
	var res model.PredictionResult
	path := "/checkpoints/" + strconv.FormatInt(checkpointID, 10) + "/predict?at=" + url.QueryEscape(ref.Format(time.RFC3339))
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

// remoteWriter collects generated checkpoints and observations for upload.
// The API has no ingestion route for social signals, so those are counted
// and dropped.
type remoteWriter struct {
	mu      sync.Mutex
	cps     []model.CheckpointMeta
	obs     []model.StatusObservation
	dropped int
}

func (r *remoteWriter) UpsertCheckpoint(_ context.Context, cp model.CheckpointMeta) error {
	r.mu.Lock()
	r.cps = append(r.cps, cp)
	r.mu.Unlock()
	return nil
}

func (r *remoteWriter) AppendObservation(_ context.Context, obs model.StatusObservation) error {
	r.mu.Lock()
	r.obs = append(r.obs, obs)
	r.mu.Unlock()
	return nil
}

func (r *remoteWriter) AppendSignal(context.Context, model.SocialSignal) error {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
	return nil
}

// runRemote drives a running server: report the synthetic history, train,
// then score predictions inside the holdout.
func runRemote(ctx context.Context, cfg Config) (Stats, error) {
	log := logger.Named("simulate")
	started := time.Now()
	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := client.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}
	cps, err := client.Checkpoints(ctx)
	if err != nil {
		return Stats{}, err
	}
	register := len(cps) == 0
	if register {
		cps = Checkpoints()
	}

	w := &remoteWriter{}
	stats, err := NewGenerator(cfg).Generate(ctx, w, cps)
	if err != nil {
		return stats, err
	}
	stats.StartTime = started

	if register {
		for _, cp := range w.cps {
			if err := client.UpsertCheckpoint(ctx, cp); err != nil {
				return stats, fmt.Errorf("register checkpoint %d: %w", cp.ID, err)
			}
		}
		log.Info(ctx, "checkpoints registered", logger.Int("checkpoints", len(w.cps)))
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	var posted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, obs := range w.obs {
		g.Go(func() error {
			if err := client.ReportStatus(gctx, obs); err != nil {
				return err
			}
			posted.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("status upload failed after %d reports: %w", posted.Load(), err)
	}
	log.Info(ctx, "history uploaded",
		logger.Int64("reports", posted.Load()),
		logger.Int("signals_dropped", w.dropped),
	)

	end := cfg.End()
	cutoff := end.Add(-holdout)
	job, err := client.SubmitTraining(ctx, cfg.Start, cutoff)
	if err != nil {
		return stats, err
	}
	job, err = client.WaitForJob(ctx, job.ID)
	if err != nil {
		return stats, err
	}
	if job.Status == model.JobFailed {
		return stats, fmt.Errorf("training failed at %s: %s", job.Stage, job.Error)
	}

	for ref := cutoff; !ref.After(end.Add(-model.HorizonLong.Offset())); ref = ref.Add(predictEvery) {
		for _, cp := range cps {
			res, err := client.Predict(ctx, cp.ID, ref)
			if err != nil {
				return stats, err
			}
			if err := verifyPrediction(res, cp.ID, ref); err != nil {
				return stats, err
			}
			score(&stats, cp, res)
			if cfg.Verbose {
				logPrediction(ctx, log, res)
			}
		}
	}

	finish(ctx, log, &stats)
	return stats, nil
}
