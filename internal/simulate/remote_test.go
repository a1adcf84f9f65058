package simulate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/passwatch/internal/adapters/http/api"
	"github.com/okian/passwatch/internal/adapters/repository"
	app "github.com/okian/passwatch/internal/app"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/internal/simulate"
)

func TestRunRemote(t *testing.T) {
	Convey("Given a server with the seeded checkpoints and no history", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.ModelDir = t.TempDir()
		cfg.ForestTrees = 10
		cfg.ForestMaxDepth = 8

		svc := app.New(
			app.WithConfig(cfg),
			app.WithStore(repository.NewMemoryStore(repository.WithCheckpoints(simulate.Checkpoints()...))),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When the simulator drives it over HTTP", func() {
			sim := simulate.DefaultConfig()
			sim.BaseURL = srv.URL
			sim.Start = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
			sim.Days = 5
			sim.Timeout = 10 * time.Second

			stats, err := simulate.Run(ctx, sim)

			Convey("Then the reported history trains a model that answers inside the holdout", func() {
				So(err, ShouldBeNil)
				So(stats.Observations, ShouldEqual, 8*5*24)
				So(stats.Predictions, ShouldEqual, 8*11)
				So(svc.ModelReady(), ShouldBeTrue)

				sum, err := svc.Store().Summary(ctx)
				So(err, ShouldBeNil)
				So(sum.Observations, ShouldEqual, 8*5*24)
			})
		})
	})
}

func TestRunRemoteRegistersCheckpoints(t *testing.T) {
	Convey("Given a server with an empty store", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.ModelDir = t.TempDir()
		cfg.ForestTrees = 10
		cfg.ForestMaxDepth = 8

		svc := app.New(app.WithConfig(cfg), app.WithStore(repository.NewMemoryStore()))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When the simulator drives it over HTTP", func() {
			sim := simulate.DefaultConfig()
			sim.BaseURL = srv.URL
			sim.Start = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
			sim.Days = 5
			sim.Timeout = 10 * time.Second

			stats, err := simulate.Run(ctx, sim)

			Convey("Then the default checkpoints are registered before the history", func() {
				So(err, ShouldBeNil)
				cps, err := svc.Checkpoints(ctx)
				So(err, ShouldBeNil)
				So(len(cps), ShouldEqual, len(simulate.Checkpoints()))
				So(cps[0].Name, ShouldEqual, simulate.Checkpoints()[0].Name)
				So(stats.Observations, ShouldEqual, 8*5*24)
				So(svc.ModelReady(), ShouldBeTrue)
			})
		})
	})
}
