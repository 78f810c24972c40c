package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/pkg/jobs"
)

type enqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// Schedule lists the cron specs of the periodic jobs; an empty spec disables that job.
type Schedule struct {
	AutoLink string
	Cleanup  string
	Location *time.Location
}

// Scheduler enqueues the periodic auto-link and export cleanup jobs on the background queue.
type Scheduler struct {
	cron   *cron.Cron
	queue  enqueuer
	logger *zap.Logger
}

// New registers the jobs of schedule. It fails on a malformed spec.
func New(schedule Schedule, queue enqueuer, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := schedule.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{cron: cron.New(cron.WithLocation(loc)), queue: queue, logger: logger}

	for jobType, spec := range map[string]string{
		jobs.TypeAutoLink:      schedule.AutoLink,
		jobs.TypeExportCleanup: schedule.Cleanup,
	} {
		if spec == "" {
			continue
		}
		jobType := jobType
		if _, err := s.cron.AddFunc(spec, func() { s.enqueue(jobType) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", jobType, spec, err)
		}
		logger.Info("cron job registered", zap.String("type", jobType), zap.String("spec", spec))
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running callbacks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Jobs returns how many periodic jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// enqueue never blocks the cron goroutine. A run still pending from the previous
// tick is kept and the new one dropped.
func (s *Scheduler) enqueue(jobType string) {
	job := jobs.Job{ID: uuid.NewString(), Type: jobType, Key: jobType}
	if err := s.queue.TryEnqueue(job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			s.logger.Debug("cron job still pending, tick skipped", zap.String("type", jobType))
			return
		}
		s.logger.Warn("cron enqueue failed", zap.String("type", jobType), zap.Error(err))
		return
	}
	s.logger.Debug("cron job enqueued", zap.String("type", jobType), zap.String("job_id", job.ID))
}
