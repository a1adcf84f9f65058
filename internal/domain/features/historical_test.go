package features_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/passwatch/internal/domain/features"
	"github.com/okian/passwatch/internal/domain/model"
)

func obs(id int64, status model.Status, at time.Time) model.StatusObservation {
	return model.StatusObservation{CheckpointID: id, Status: status, Timestamp: at, Confidence: 1, Source: model.SourceManual}
}

func TestHistoricalAnalyzer(t *testing.T) {
	Convey("Given a historical analyzer with a 30 day lookback", t, func() {
		ctx := context.Background()
		// Wednesday 10:00 UTC.
		ref := time.Date(2025, 4, 9, 10, 0, 0, 0, time.UTC)
		src := &fakeSource{}
		an, err := features.NewHistoricalAnalyzer(src, 30*24*time.Hour)
		So(err, ShouldBeNil)

		Convey("When there is no history", func() {
			m, err := an.Build(ctx, 1, ref)

			Convey("Then it should return neutral priors", func() {
				So(err, ShouldBeNil)
				So(m, ShouldResemble, an.Empty())
				So(m["historical_closure_rate"], ShouldEqual, 0.5)
				So(m["closure_rate_weekend"], ShouldEqual, 0.5)
				So(m["hours_since_last_status"], ShouldEqual, 999.0)
				So(m["last_status_was_closed"], ShouldEqual, 0)
				So(m["total_historical_records"], ShouldEqual, 0)
			})
		})

		Convey("When the window holds observations", func() {
			src.observations = []model.StatusObservation{
				obs(1, model.StatusClosed, ref.Add(-time.Hour)),       // Wed 09:00
				obs(1, model.StatusOpen, ref.Add(-25*time.Hour)),      // Tue 09:00
				obs(1, model.StatusClosed, ref.Add(-48*time.Hour)),    // Mon 10:00
				obs(1, model.StatusClosed, ref.Add(-7*24*time.Hour)),  // Wed 10:00
				obs(1, model.StatusPartial, ref.Add(-4*24*time.Hour)), // Sat 10:00
				obs(1, model.StatusClosed, ref.Add(-31*24*time.Hour)), // outside
				obs(1, model.StatusOpen, ref),                         // at ref
				obs(1, model.StatusOpen, ref.Add(time.Hour)),          // future
			}

			check := func(m features.Map) {
				So(m["total_historical_records"], ShouldEqual, 5)
				So(m["historical_closure_rate"], ShouldAlmostEqual, 0.6, 1e-9)
				So(m["historical_open_rate"], ShouldAlmostEqual, 0.2, 1e-9)
				So(m["closure_rate_same_hour"], ShouldAlmostEqual, 2.0/3, 1e-9)
				So(m["closure_rate_same_dow"], ShouldEqual, 1.0)
				So(m["closure_rate_weekend"], ShouldEqual, 0.0)
				So(m["closures_last_3_days"], ShouldEqual, 2)
				So(m["closures_last_7_days"], ShouldEqual, 3)
				So(m["hours_since_last_status"], ShouldAlmostEqual, 1.0, 1e-9)
				So(m["last_status_was_closed"], ShouldEqual, 1)
				So(m["last_status_was_open"], ShouldEqual, 0)
				So(m["last_status_was_partial"], ShouldEqual, 0)
			}

			Convey("Then the statistics should use only records strictly before ref", func() {
				m, err := an.Build(ctx, 1, ref)
				So(err, ShouldBeNil)
				check(m)
			})

			Convey("Then a lax reader should not change the result", func() {
				src.lax = true
				m, err := an.Build(ctx, 1, ref)
				So(err, ShouldBeNil)
				check(m)
			})
		})

		Convey("When no record matches a conditioning subset", func() {
			src.observations = []model.StatusObservation{
				obs(1, model.StatusClosed, time.Date(2025, 4, 8, 3, 0, 0, 0, time.UTC)), // Tue 03:00
			}
			m, err := an.Build(ctx, 1, ref)

			Convey("Then the subset rates should be neutral, not zero", func() {
				So(err, ShouldBeNil)
				So(m["historical_closure_rate"], ShouldEqual, 1.0)
				So(m["closure_rate_same_hour"], ShouldEqual, 0.5)
				So(m["closure_rate_same_dow"], ShouldEqual, 0.5)
				So(m["closure_rate_weekend"], ShouldEqual, 0.5)
				So(m["hours_since_last_status"], ShouldAlmostEqual, 31.0, 1e-9)
			})
		})
	})

	Convey("Given a lookback that is not whole days", t, func() {
		_, err := features.NewHistoricalAnalyzer(&fakeSource{}, 36*time.Hour)
		So(errors.Is(err, features.ErrInvalidWindow), ShouldBeTrue)
	})
}
