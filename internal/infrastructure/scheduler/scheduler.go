package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a unit of periodic work. Errors are logged, never fatal: the
// next tick runs regardless.
type Job func(ctx context.Context) error

// Scheduler drives the periodic pipeline stages (provider polling,
// attachment extraction) off cron expressions. Jobs scheduled on the
// same instant never overlap with themselves: cron skips a tick while
// the previous run of that entry is still in flight.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		logger: logger,
	}
}

// Register binds a job to a cron spec (standard 5-field or @every form).
func (s *Scheduler) Register(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := job(s.ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job completed", "job", name)
	})
	if err != nil {
		return fmt.Errorf("register job %s with spec %q: %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
