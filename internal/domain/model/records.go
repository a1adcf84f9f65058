package model

import "time"

// StatusObservation is one recorded checkpoint status at an instant.
type StatusObservation struct {
	CheckpointID int64
	Status       Status
	Timestamp    time.Time
	Confidence   float64 // 0..1
	Source       Source
	Verified     bool
	Notes        string
}

// SocialSignal is one social-media mention already scored upstream.
// Nullable fields are pointers; a nil CheckpointID means the mention was not
// matched to any checkpoint.
type SocialSignal struct {
	SourceID       string
	CheckpointID   *int64
	Source         Source
	PostedAt       time.Time
	SentimentScore *float64 // -1..1
	InferredStatus *Status
	Confidence     *float64
	Likes          *int64
	Shares         *int64
	Comments       *int64
}

// CheckpointMeta is the static identity and location of a checkpoint.
type CheckpointMeta struct {
	ID        int64
	Name      string
	Type      CheckpointType
	Latitude  float64
	Longitude float64
	Active    bool
}

// Horizon names a prediction horizon.
type Horizon string

// Fixed horizons.
const (
	HorizonShort Horizon = "short_term"
	HorizonLong  Horizon = "long_term"
)

// Hours returns the fixed horizon length.
func (h Horizon) Hours() int {
	if h == HorizonLong {
		return 18
	}
	return 2
}

// Offset returns the horizon length as a duration.
func (h Horizon) Offset() time.Duration { return time.Duration(h.Hours()) * time.Hour }

// ModelName is the name persisted alongside predictions for this horizon.
func (h Horizon) ModelName() string {
	if h == HorizonLong {
		return "long_term_rf"
	}
	return "short_term_rf"
}

// HorizonPrediction is the output of one horizon's classifier.
type HorizonPrediction struct {
	Status        Status    `json:"status"`
	Confidence    float64   `json:"confidence"`
	PredictionFor time.Time `json:"prediction_for"`
	HorizonHours  int       `json:"horizon_hours"`
}

// PredictionResult is one inference output for a checkpoint.
type PredictionResult struct {
	CheckpointID  int64             `json:"checkpoint_id"`
	ReferenceTime time.Time         `json:"reference_time"`
	ModelVersion  string            `json:"model_version"`
	ShortTerm     HorizonPrediction `json:"short_term"`
	LongTerm      HorizonPrediction `json:"long_term"`
}

// Horizon returns the prediction for h.
func (p PredictionResult) Horizon(h Horizon) HorizonPrediction {
	if h == HorizonLong {
		return p.LongTerm
	}
	return p.ShortTerm
}
