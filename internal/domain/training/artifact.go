package training

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/passwatch/internal/domain/features"
	"github.com/okian/passwatch/internal/domain/learn"
	"github.com/okian/passwatch/internal/domain/model"
)

// Artifact is a trained dual-horizon model. Once built it is never mutated;
// serving swaps whole artifacts.
type Artifact struct {
	Version      string                                 `json:"version"`
	TrainedAt    time.Time                              `json:"trained_at"`
	FeatureNames []string                               `json:"feature_names"`
	Scaler       *learn.Scaler                          `json:"scaler"`
	ShortTerm    *learn.Forest                          `json:"short_term"`
	LongTerm     *learn.Forest                          `json:"long_term"`
	Window       features.Window                        `json:"window"`
	Holidays     []time.Time                            `json:"holidays"`
	Samples      int                                    `json:"samples"`
	Metrics      map[model.Horizon]model.HorizonMetrics `json:"metrics,omitempty"`
	Reports      map[model.Horizon]learn.Report         `json:"reports,omitempty"`
}

// Classifier returns the forest for h.
func (a *Artifact) Classifier(h model.Horizon) *learn.Forest {
	if h == model.HorizonLong {
		return a.LongTerm
	}
	return a.ShortTerm
}

// Validate reports whether every part needed to predict is present and the
// dimensions agree.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil", ErrInvalidArtifact)
	}
	if a.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidArtifact)
	}
	if a.TrainedAt.IsZero() {
		return fmt.Errorf("%w: missing trained_at", ErrInvalidArtifact)
	}
	if len(a.FeatureNames) == 0 {
		return fmt.Errorf("%w: missing feature names", ErrInvalidArtifact)
	}
	if a.Scaler == nil || a.Scaler.Dim() != len(a.FeatureNames) || len(a.Scaler.Scale) != len(a.FeatureNames) {
		return fmt.Errorf("%w: scaler does not match %d features", ErrInvalidArtifact, len(a.FeatureNames))
	}
	for _, h := range []model.Horizon{model.HorizonShort, model.HorizonLong} {
		f := a.Classifier(h)
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%w: %s classifier: %v", ErrInvalidArtifact, h, err)
		}
		if f.NFeatures != len(a.FeatureNames) {
			return fmt.Errorf("%w: %s classifier expects %d features, have %d", ErrInvalidArtifact, h, f.NFeatures, len(a.FeatureNames))
		}
	}
	return nil
}

// FeatureImportance is one named importance score.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// TopFeatures returns the n most important features of the horizon's
// classifier, highest first. n <= 0 returns all of them.
func (a *Artifact) TopFeatures(h model.Horizon, n int) []FeatureImportance {
	f := a.Classifier(h)
	if f == nil || len(f.Importance) != len(a.FeatureNames) {
		return nil
	}
	out := make([]FeatureImportance, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		out[i] = FeatureImportance{Feature: name, Importance: f.Importance[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
