package simulate

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/passwatch/internal/domain/model"
)

// verifyPrediction checks the shape of one prediction made at ref.
func verifyPrediction(res model.PredictionResult, checkpointID int64, ref time.Time) error {
	var errs []error
	if res.CheckpointID != checkpointID {
		errs = append(errs, fmt.Errorf("checkpoint %d answered for %d", checkpointID, res.CheckpointID))
	}
	if !res.ReferenceTime.Equal(ref) {
		errs = append(errs, fmt.Errorf("reference time %s, want %s", res.ReferenceTime.Format(time.RFC3339), ref.Format(time.RFC3339)))
	}
	if res.ModelVersion == "" {
		errs = append(errs, errors.New("missing model version"))
	}
	for _, h := range []model.Horizon{model.HorizonShort, model.HorizonLong} {
		p := res.Horizon(h)
		if p.HorizonHours != h.Hours() {
			errs = append(errs, fmt.Errorf("%s: horizon %dh, want %dh", h, p.HorizonHours, h.Hours()))
		}
		if !p.PredictionFor.Equal(ref.Add(h.Offset())) {
			errs = append(errs, fmt.Errorf("%s: prediction_for %s is not ref+%dh", h, p.PredictionFor.Format(time.RFC3339), h.Hours()))
		}
		if p.Confidence <= 0 || p.Confidence > 1 {
			errs = append(errs, fmt.Errorf("%s: confidence %.3f outside (0, 1]", h, p.Confidence))
		}
		if !p.Status.Valid() {
			errs = append(errs, fmt.Errorf("%s: invalid status %d", h, p.Status))
		}
	}
	return errors.Join(errs...)
}

// score counts how many horizons agree with the ground-truth pattern.
func score(stats *Stats, cp model.CheckpointMeta, res model.PredictionResult) {
	stats.Predictions++
	if res.ShortTerm.Status == Pattern(cp, res.ShortTerm.PredictionFor) {
		stats.ShortHits++
	}
	if res.LongTerm.Status == Pattern(cp, res.LongTerm.PredictionFor) {
		stats.LongHits++
	}
}
