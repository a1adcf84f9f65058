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

func TestAssembler(t *testing.T) {
	Convey("Given an assembler over a single flying checkpoint", t, func() {
		ctx := context.Background()
		ref := time.Date(2025, 4, 9, 10, 0, 0, 0, time.UTC)
		closed := model.StatusClosed
		src := &fakeSource{
			checkpoints: map[int64]model.CheckpointMeta{
				7: {ID: 7, Name: "Qalandiya", Type: model.CheckpointFlying, Latitude: 31.8653, Longitude: 35.2045, Active: true},
			},
			observations: []model.StatusObservation{
				obs(7, model.StatusOpen, ref.Add(-3*time.Hour)),
				obs(7, model.StatusClosed, ref.Add(-26*time.Hour)),
			},
			signals: []model.SocialSignal{
				signal(7, ref.Add(-90*time.Minute), ptr(-0.4), ptr(0.9), &closed, model.SourceTelegram),
			},
		}
		asm, err := features.NewAssembler(src, features.DefaultWindow())
		So(err, ShouldBeNil)

		Convey("When building a vector", func() {
			m, err := asm.Build(ctx, 7, ref)

			Convey("Then it should merge every builder and the static attributes", func() {
				So(err, ShouldBeNil)
				So(len(m), ShouldEqual, 22+19+12+6)
				So(m["is_flying_checkpoint"], ShouldEqual, 1)
				So(m["is_permanent_checkpoint"], ShouldEqual, 0)
				So(m["checkpoint_latitude"], ShouldEqual, 31.8653)
				So(m["mentions_last_24h"], ShouldEqual, 1)
				So(m["total_historical_records"], ShouldEqual, 2)
				So(m["hour"], ShouldEqual, 10)
			})

			Convey("Then records at or after ref should not change it", func() {
				src.observations = append(src.observations,
					obs(7, model.StatusPartial, ref),
					obs(7, model.StatusClosed, ref.Add(time.Minute)),
				)
				src.signals = append(src.signals,
					signal(7, ref, ptr(1.0), ptr(1.0), &closed, model.SourceReddit),
					signal(7, ref.Add(time.Hour), ptr(1.0), ptr(1.0), &closed, model.SourceReddit),
				)
				again, err := asm.Build(ctx, 7, ref)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, m)
			})
		})

		Convey("When the checkpoint is unknown", func() {
			_, err := asm.Build(ctx, 99, ref)

			Convey("Then the not-found condition should surface", func() {
				So(errors.Is(err, model.ErrCheckpointNotFound), ShouldBeTrue)
			})
		})

		Convey("When storage fails", func() {
			boom := errors.New("storage down")
			src.err = boom
			_, err := asm.Build(ctx, 7, ref)

			Convey("Then the whole build should fail", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})

		Convey("When a checkpoint has no history at all", func() {
			m, err := asm.BuildFor(ctx, model.CheckpointMeta{ID: 8, Type: model.CheckpointBarrier}, ref)

			Convey("Then it should still produce the full key set with cold-start values", func() {
				So(err, ShouldBeNil)
				So(len(m), ShouldEqual, 22+19+12+6)
				So(m["is_barrier_checkpoint"], ShouldEqual, 1)
				So(m["hours_since_last_status"], ShouldEqual, 999.0)
				So(m["mentions_last_24h"], ShouldEqual, 0)
			})
		})

		Convey("Then the window should be reported unchanged", func() {
			So(asm.Window(), ShouldResemble, features.DefaultWindow())
		})
	})

	Convey("Given an invalid window", t, func() {
		_, err := features.NewAssembler(&fakeSource{}, features.Window{SocialLookback: 0, HistoricalLookback: 24 * time.Hour})
		So(errors.Is(err, features.ErrInvalidWindow), ShouldBeTrue)
	})
}

func TestFeatureMap(t *testing.T) {
	Convey("Given a feature map and model feature names", t, func() {
		names := []string{"a", "b", "c"}

		Convey("When the key set matches exactly", func() {
			row, err := features.Map{"c": 3, "a": 1, "b": 2}.Reindex(names)

			Convey("Then values should follow the name order", func() {
				So(err, ShouldBeNil)
				So(row, ShouldResemble, []float64{1, 2, 3})
			})
		})

		Convey("When one key is missing and one is unexpected", func() {
			_, err := features.Map{"a": 1, "b": 2, "z": 9}.Reindex(names)

			Convey("Then the reindex should be rejected with both keys named", func() {
				So(errors.Is(err, features.ErrFeatureMismatch), ShouldBeTrue)
				var mm *features.MismatchError
				So(errors.As(err, &mm), ShouldBeTrue)
				So(mm.Missing, ShouldResemble, []string{"c"})
				So(mm.Extra, ShouldResemble, []string{"z"})
				So(err.Error(), ShouldContainSubstring, "missing c")
				So(err.Error(), ShouldContainSubstring, "unexpected z")
			})
		})

		Convey("When densifying for training", func() {
			row := features.Map{"a": 1, "z": 9}.Densify(names)

			Convey("Then missing keys should be 0 and extras ignored", func() {
				So(row, ShouldResemble, []float64{1, 0, 0})
			})
		})

		Convey("When collecting names across samples", func() {
			got := features.Names(features.Map{"b": 1, "a": 1}, features.Map{"c": 1, "a": 2})

			Convey("Then the union should be sorted", func() {
				So(got, ShouldResemble, []string{"a", "b", "c"})
				So(features.Map{"y": 1, "x": 1}.Keys(), ShouldResemble, []string{"x", "y"})
			})
		})
	})
}
