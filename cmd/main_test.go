package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/passwatch/internal/app"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/pkg/logger"
)

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("PASSWATCH_ADDR", ":8088")
		t.Setenv("PASSWATCH_TRAIN_QUEUE_SIZE", "4")

		convey.Convey("Then configuration picks them up", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8088")
			convey.So(cfg.TrainQueueSize, convey.ShouldEqual, 4)
		})
	})

	convey.Convey("Given an empty listen address", t, func() {
		t.Setenv("PASSWATCH_ADDR", "")

		convey.Convey("Then configuration loading fails", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestServeMux(t *testing.T) {
	convey.Convey("Given a service built from the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.ModelDir = t.TempDir()

		svc, err := app.FromConfig(ctx, cfg, logger.Named("test"))
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := newMux(ctx, svc)

		convey.Convey("Then docs and API routes are both served", func() {
			for _, path := range []string{"/openapi.yaml", "/api-docs", "/stats", "/checkpoints", "/checkpoints/1", "/checkpoints/1/history", "/predictions/recent", "/model", "/training"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then predictions report the missing model", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkpoints/1/predict", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
	})
}
