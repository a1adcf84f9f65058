package publish_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/passwatch/internal/adapters/publish"
	"github.com/okian/passwatch/internal/domain/model"
)

type recorder struct {
	got []model.PredictionResult
	err error
}

func (r *recorder) RecordPrediction(_ context.Context, res model.PredictionResult) error {
	r.got = append(r.got, res)
	return r.err
}

func result() model.PredictionResult {
	ref := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return model.PredictionResult{
		CheckpointID:  4,
		ReferenceTime: ref,
		ModelVersion:  "v1",
		ShortTerm:     model.HorizonPrediction{Status: model.StatusOpen, Confidence: 0.8, PredictionFor: ref.Add(2 * time.Hour), HorizonHours: 2},
		LongTerm:      model.HorizonPrediction{Status: model.StatusClosed, Confidence: 0.6, PredictionFor: ref.Add(18 * time.Hour), HorizonHours: 18},
	}
}

func TestFanout(t *testing.T) {
	Convey("Given a fanout with a failing and a healthy sink", t, func() {
		boom := errors.New("down")
		bad := &recorder{err: boom}
		good := &recorder{}
		f := publish.NewFanout(publish.WithSink("bad", bad), publish.WithSink("good", good), publish.WithSink("nil", nil))

		Convey("Then every sink is tried and the failure is reported", func() {
			So(f.Len(), ShouldEqual, 2)
			err := f.RecordPrediction(context.Background(), result())
			So(errors.Is(err, boom), ShouldBeTrue)
			So(len(bad.got), ShouldEqual, 1)
			So(len(good.got), ShouldEqual, 1)
		})
	})

	Convey("Given a fanout with no sinks", t, func() {
		So(publish.NewFanout().RecordPrediction(context.Background(), result()), ShouldBeNil)
	})
}

func TestRedisSink(t *testing.T) {
	url := os.Getenv("PASSWATCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PASSWATCH_TEST_REDIS_URL not set")
	}

	Convey("Given a connected Redis sink", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sink, err := publish.NewRedisSink(ctx, url, "passwatch:test:predictions", time.Minute)
		So(err, ShouldBeNil)
		defer sink.Close()

		sub := sink.Subscribe(ctx)
		defer sub.Close()
		_, err = sub.Receive(ctx)
		So(err, ShouldBeNil)

		Convey("When a prediction is recorded", func() {
			res := result()
			So(sink.RecordPrediction(ctx, res), ShouldBeNil)

			Convey("Then it is published and cached", func() {
				msg, err := sub.ReceiveMessage(ctx)
				So(err, ShouldBeNil)
				So(msg.Payload, ShouldContainSubstring, `"checkpoint_id":4`)

				cached, err := sink.Cached(ctx, 4)
				So(err, ShouldBeNil)
				So(cached.ModelVersion, ShouldEqual, "v1")
				So(cached.LongTerm.Status, ShouldEqual, model.StatusClosed)
			})
		})
	})
}
