package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/passwatch/internal/domain/model"
)

type memRecorder struct {
	mu   sync.Mutex
	last map[string]model.TrainingJob
}

func (m *memRecorder) SaveTrainingJob(_ context.Context, job model.TrainingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[job.ID] = job
	return nil
}

func TestJobTrackerAbandon(t *testing.T) {
	Convey("Given a tracker with queued, running and finished jobs", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
		rec := &memRecorder{last: map[string]model.TrainingJob{}}
		tr := newJobTracker(rec, func() time.Time { return now })

		for _, id := range []string{"q1", "q2", "run", "done", "bad"} {
			tr.queue(ctx, model.TrainingRequest{JobID: id})
		}
		_, _ = tr.start(ctx, "run")
		_, _ = tr.complete(ctx, "done", func(*model.TrainingJob) {})
		_, _ = tr.fail(ctx, "bad", "train", errors.New("boom"))

		Convey("When the pending jobs are abandoned", func() {
			n := tr.abandon(ctx)

			Convey("Then only the queued ones fail at the queue stage", func() {
				So(n, ShouldEqual, 2)
				for _, id := range []string{"q1", "q2"} {
					j, err := tr.get(id)
					So(err, ShouldBeNil)
					So(j.Status, ShouldEqual, model.JobFailed)
					So(j.Stage, ShouldEqual, stageQueue)
					So(j.Error, ShouldEqual, ErrJobAbandoned.Error())
					So(j.CompletedAt, ShouldNotBeNil)
					So(rec.last[id].Status, ShouldEqual, model.JobFailed)
				}
				run, _ := tr.get("run")
				So(run.Status, ShouldEqual, model.JobRunning)
				done, _ := tr.get("done")
				So(done.Status, ShouldEqual, model.JobCompleted)
				bad, _ := tr.get("bad")
				So(bad.Stage, ShouldEqual, "train")
				So(tr.counts()[model.JobQueued], ShouldEqual, 0)
			})

			Convey("And a second pass finds nothing", func() {
				So(tr.abandon(ctx), ShouldEqual, 0)
			})
		})
	})
}
