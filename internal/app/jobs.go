package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/passwatch/internal/domain/model"
)

// Sentinel errors for training jobs.
var (
	ErrJobNotFound  = errors.New("training job not found")
	ErrJobAbandoned = errors.New("service stopped before the job ran")
)

// stageQueue marks jobs that never left the queue.
const stageQueue = "queue"

// ModelName is the model family every training job produces.
const ModelName = "dual_horizon_rf"

// JobRecorder persists training job transitions.
type JobRecorder interface {
	SaveTrainingJob(ctx context.Context, job model.TrainingJob) error
}

// jobTracker keeps every training job of this process in memory and mirrors
// transitions to an optional recorder.
type jobTracker struct {
	mu       sync.RWMutex
	jobs     map[string]*model.TrainingJob
	recorder JobRecorder
	now      func() time.Time
	onError  func(ctx context.Context, job model.TrainingJob, err error)
}

func newJobTracker(rec JobRecorder, now func() time.Time) *jobTracker {
	return &jobTracker{jobs: make(map[string]*model.TrainingJob), recorder: rec, now: now}
}

func (t *jobTracker) queue(ctx context.Context, req model.TrainingRequest) model.TrainingJob {
	job := model.TrainingJob{
		ID:        req.JobID,
		ModelName: ModelName,
		Version:   req.Version,
		Status:    model.JobQueued,
		Start:     req.Start,
		End:       req.End,
		QueuedAt:  t.now().UTC(),
	}
	t.mu.Lock()
	t.jobs[job.ID] = &job
	t.mu.Unlock()
	t.record(ctx, job)
	return job
}

func (t *jobTracker) update(ctx context.Context, id string, fn func(*model.TrainingJob)) (model.TrainingJob, error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return model.TrainingJob{}, ErrJobNotFound
	}
	fn(job)
	snapshot := copyJob(job)
	t.mu.Unlock()
	t.record(ctx, snapshot)
	return snapshot, nil
}

func (t *jobTracker) start(ctx context.Context, id string) (model.TrainingJob, error) {
	return t.update(ctx, id, func(j *model.TrainingJob) {
		now := t.now().UTC()
		j.Status = model.JobRunning
		j.StartedAt = &now
	})
}

func (t *jobTracker) complete(ctx context.Context, id string, fn func(*model.TrainingJob)) (model.TrainingJob, error) {
	return t.update(ctx, id, func(j *model.TrainingJob) {
		now := t.now().UTC()
		fn(j)
		j.Status = model.JobCompleted
		j.CompletedAt = &now
	})
}

func (t *jobTracker) fail(ctx context.Context, id, stage string, cause error) (model.TrainingJob, error) {
	return t.update(ctx, id, func(j *model.TrainingJob) {
		now := t.now().UTC()
		j.Status = model.JobFailed
		j.Stage = stage
		j.Error = cause.Error()
		j.CompletedAt = &now
	})
}

// abandon fails every job still queued and returns how many there were.
func (t *jobTracker) abandon(ctx context.Context) int {
	t.mu.RLock()
	ids := make([]string, 0)
	for id, j := range t.jobs {
		if j.Status == model.JobQueued {
			ids = append(ids, id)
		}
	}
	t.mu.RUnlock()
	n := 0
	for _, id := range ids {
		_, _ = t.update(ctx, id, func(j *model.TrainingJob) {
			if j.Status != model.JobQueued {
				return
			}
			n++
			now := t.now().UTC()
			j.Status = model.JobFailed
			j.Stage = stageQueue
			j.Error = ErrJobAbandoned.Error()
			j.CompletedAt = &now
		})
	}
	return n
}

func (t *jobTracker) get(id string) (model.TrainingJob, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return model.TrainingJob{}, ErrJobNotFound
	}
	return copyJob(job), nil
}

// list returns jobs newest first.
func (t *jobTracker) list() []model.TrainingJob {
	t.mu.RLock()
	out := make([]model.TrainingJob, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, copyJob(j))
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].QueuedAt.After(out[j].QueuedAt)
	})
	return out
}

func (t *jobTracker) counts() map[model.JobStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := map[model.JobStatus]int{}
	for _, j := range t.jobs {
		out[j.Status]++
	}
	return out
}

func (t *jobTracker) record(ctx context.Context, job model.TrainingJob) {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.SaveTrainingJob(ctx, job); err != nil && t.onError != nil {
		t.onError(ctx, job, err)
	}
}

func copyJob(j *model.TrainingJob) model.TrainingJob {
	out := *j
	if j.Metrics != nil {
		out.Metrics = make(map[model.Horizon]model.HorizonMetrics, len(j.Metrics))
		for k, v := range j.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}
