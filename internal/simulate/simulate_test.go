package simulate

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/passwatch/internal/adapters/repository"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/internal/domain/model"
)

var monday = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, days int) Config {
	cfg := DefaultConfig()
	cfg.Start = monday
	cfg.Days = days
	cfg.ModelDir = t.TempDir()
	return cfg
}

func smallForest() *config.Config {
	c := config.New()
	c.ForestTrees = 10
	c.ForestMaxDepth = 8
	c.ForestMinSamplesSplit = 4
	c.ForestMinSamplesLeaf = 2
	c.ExtractionWorkers = 4
	return c
}

func TestPattern(t *testing.T) {
	Convey("Given the ground-truth pattern", t, func() {
		cps := Checkpoints()
		friday := monday.AddDate(0, 0, 4)

		Convey("Then every checkpoint closes on Friday midday", func() {
			for _, cp := range cps {
				So(Pattern(cp, friday.Add(12*time.Hour)), ShouldEqual, model.StatusClosed)
			}
		})

		Convey("Then the morning rush depends on the id", func() {
			So(Pattern(cps[0], monday.Add(8*time.Hour)), ShouldEqual, model.StatusPartial)
			So(Pattern(cps[1], monday.Add(9*time.Hour)), ShouldEqual, model.StatusClosed)
			So(Pattern(cps[1], monday.Add(7*time.Hour)), ShouldEqual, model.StatusOpen)
			So(Pattern(cps[2], monday.Add(6*time.Hour)), ShouldEqual, model.StatusPartial)
			So(Pattern(cps[2], monday.Add(9*time.Hour)), ShouldEqual, model.StatusOpen)
		})

		Convey("Then ids divisible by four run partial in the evening", func() {
			So(Pattern(cps[3], monday.Add(18*time.Hour)), ShouldEqual, model.StatusPartial)
			So(Pattern(cps[4], monday.Add(18*time.Hour)), ShouldEqual, model.StatusOpen)
		})
	})
}

func TestGenerator(t *testing.T) {
	Convey("Given a noiseless generator over five days", t, func() {
		ctx := context.Background()
		cfg := testConfig(t, 5)
		cfg.Noise = 0
		store := repository.NewMemoryStore()

		stats, err := NewGenerator(cfg).Generate(ctx, store, Checkpoints())
		So(err, ShouldBeNil)

		Convey("Then every hour of every checkpoint is observed", func() {
			So(stats.Checkpoints, ShouldEqual, 8)
			So(stats.Observations, ShouldEqual, 8*5*24)
			So(stats.UnmatchedSignals, ShouldEqual, 5)

			sum, err := store.Summary(ctx)
			So(err, ShouldBeNil)
			So(sum.Observations, ShouldEqual, stats.Observations)
			So(sum.Signals, ShouldEqual, stats.Signals+stats.UnmatchedSignals)
		})

		Convey("Then observations follow the pattern exactly", func() {
			cp := Checkpoints()[1]
			obs, err := store.Observations(ctx, cp.ID, cfg.Start, cfg.End())
			So(err, ShouldBeNil)
			for _, o := range obs {
				So(o.Status, ShouldEqual, Pattern(cp, o.Timestamp))
				So(o.Confidence, ShouldBeBetweenOrEqual, 0.6, 1.0)
			}
		})

		Convey("Then signals stay in range", func() {
			sigs, err := store.Signals(ctx, 3, cfg.Start, cfg.End().Add(time.Hour))
			So(err, ShouldBeNil)
			for _, s := range sigs {
				So(*s.SentimentScore, ShouldBeBetweenOrEqual, -1.0, 1.0)
				So(s.SourceID, ShouldNotBeEmpty)
				So(s.Source, ShouldNotEqual, model.SourceManual)
			}
		})
	})

	Convey("Given two generators with the same seed", t, func() {
		ctx := context.Background()
		cfg := testConfig(t, 4)
		a, b := repository.NewMemoryStore(), repository.NewMemoryStore()
		_, err := NewGenerator(cfg).Generate(ctx, a, Checkpoints())
		So(err, ShouldBeNil)
		_, err = NewGenerator(cfg).Generate(ctx, b, Checkpoints())
		So(err, ShouldBeNil)

		Convey("Then the observation history is identical", func() {
			oa, _ := a.Observations(ctx, 5, cfg.Start, cfg.End())
			ob, _ := b.Observations(ctx, 5, cfg.Start, cfg.End())
			So(oa, ShouldResemble, ob)
		})
	})
}

func TestHistoryFile(t *testing.T) {
	Convey("Given a history dump path", t, func() {
		ctx := context.Background()
		cfg := testConfig(t, 4)
		path := filepath.Join(t.TempDir(), "out", "history.jsonl")
		store := repository.NewMemoryStore()

		hw, err := newHistoryWriter(store, path)
		So(err, ShouldBeNil)
		stats, err := NewGenerator(cfg).Generate(ctx, hw, Checkpoints())
		So(err, ShouldBeNil)
		So(hw.Close(), ShouldBeNil)

		Convey("Then every record is written as one line", func() {
			f, err := os.Open(path)
			So(err, ShouldBeNil)
			defer f.Close()
			lines := 0
			sc := bufio.NewScanner(f)
			sc.Buffer(make([]byte, 64*1024), 1024*1024)
			for sc.Scan() {
				lines++
			}
			So(sc.Err(), ShouldBeNil)
			So(lines, ShouldEqual, stats.Checkpoints+stats.Observations+stats.Signals+stats.UnmatchedSignals)
		})
	})
}

func TestRunLocal(t *testing.T) {
	Convey("Given a six day in-process simulation", t, func() {
		cfg := testConfig(t, 6)

		Convey("When it runs", func() {
			stats, err := runLocal(context.Background(), cfg, smallForest())

			Convey("Then predictions inside the holdout are well formed and mostly right", func() {
				So(err, ShouldBeNil)
				So(stats.Predictions, ShouldEqual, 8*11)
				So(stats.ShortAccuracy(), ShouldBeGreaterThanOrEqualTo, 0.5)
				So(stats.LongAccuracy(), ShouldBeGreaterThan, 0)
				So(stats.Duration, ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given settings that cannot train", t, func() {
		cfg := testConfig(t, 2)
		_, err := Run(context.Background(), cfg)
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)

		cfg = testConfig(t, 6)
		cfg.Noise = 1
		_, err = Run(context.Background(), cfg)
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})
}
