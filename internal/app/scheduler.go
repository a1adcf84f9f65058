package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/passwatch/pkg/logger"
)

// scheduler triggers periodic retraining. Specs include a seconds field.
type scheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
	logger  logger.Logger
}

func newScheduler(baseCtx context.Context, l logger.Logger) *scheduler {
	return &scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		baseCtx: baseCtx,
		logger:  l,
	}
}

func (s *scheduler) add(spec string, job func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() { job(s.baseCtx) })
	return err
}

func (s *scheduler) start() {
	s.cron.Start()
	s.logger.Info(s.baseCtx, "scheduler started", logger.Int("entries", len(s.cron.Entries())))
}

func (s *scheduler) stop() {
	<-s.cron.Stop().Done()
	s.logger.Info(context.Background(), "scheduler stopped")
}
