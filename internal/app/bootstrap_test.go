package service

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/passwatch/internal/adapters/repository"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/pkg/logger"
)

type closeCounter struct {
	*repository.MemoryStore
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.MemoryStore.Close()
}

func TestAssembleClosesStoreOnSinkFailure(t *testing.T) {
	Convey("Given a store and an unusable redis url", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.ModelDir = t.TempDir()
		cfg.RedisURL = "://not-a-url"
		store := &closeCounter{MemoryStore: repository.NewMemoryStore()}

		Convey("When the service is assembled", func() {
			svc, err := assemble(ctx, cfg, logger.Named("test"), store)

			Convey("Then it fails and the store is closed", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "redis sink")
				So(svc, ShouldBeNil)
				So(store.closed, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a store and no optional sinks", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.ModelDir = t.TempDir()
		store := &closeCounter{MemoryStore: repository.NewMemoryStore()}

		Convey("Then assembly keeps the store open and seeds it", func() {
			svc, err := assemble(ctx, cfg, logger.Named("test"), store)
			So(err, ShouldBeNil)
			So(svc, ShouldNotBeNil)
			So(store.closed, ShouldEqual, 0)
			cps, _ := store.Checkpoints(ctx)
			So(len(cps), ShouldEqual, len(repository.SeedCheckpoints()))
		})
	})
}
