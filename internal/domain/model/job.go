package model

import "time"

// JobStatus is the lifecycle state of a training job.
type JobStatus string

// Training job states.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// TrainingRequest asks for one dual-horizon training run over [Start, End).
type TrainingRequest struct {
	JobID                   string
	Start                   time.Time
	End                     time.Time
	MinSamplesPerCheckpoint int
	Version                 string
}

// HorizonMetrics are held-out evaluation results for one horizon.
type HorizonMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	TestSize  int     `json:"test_size"`
	TrainSize int     `json:"train_size"`
}

// TrainingJob records one training run and its outcome.
type TrainingJob struct {
	ID           string                     `json:"id"`
	ModelName    string                     `json:"model_name"`
	Version      string                     `json:"version,omitempty"`
	Status       JobStatus                  `json:"status"`
	Stage        string                     `json:"stage,omitempty"`
	Error        string                     `json:"error,omitempty"`
	Start        time.Time                  `json:"train_start"`
	End          time.Time                  `json:"train_end"`
	NumSamples   int                        `json:"num_samples"`
	Metrics      map[Horizon]HorizonMetrics `json:"metrics,omitempty"`
	ArtifactPath string                     `json:"artifact_path,omitempty"`
	QueuedAt     time.Time                  `json:"queued_at"`
	StartedAt    *time.Time                 `json:"started_at,omitempty"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
}
