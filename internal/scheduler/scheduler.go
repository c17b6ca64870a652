// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron   *cron.Cron
	audit  *FallbackAudit
	spec   string
	logger *slog.Logger
}

func New(audit *FallbackAudit, spec string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{cron: c, audit: audit, spec: spec, logger: logger.With("component", "scheduler")}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runAudit); err != nil {
		s.logger.Error("failed to schedule fallback audit", "schedule", s.spec, "error", err)
		return err
	}
	s.logger.Info("scheduled fallback audit", "schedule", s.spec)
	s.cron.Start()
	return nil
}

// Stop stops the loop; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.audit.Run(ctx); err != nil {
		s.logger.Error("fallback audit failed", "error", err)
	}
}
