package scheduler

import (
	"context"
	"fmt"
	"time"

	"freelancer-bot/internal/logger"

	"github.com/go-co-op/gocron"
)

// Scheduler runs periodic background jobs in this process.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	ctx       context.Context
}

// NewScheduler creates a scheduler whose jobs never overlap themselves.
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels in-flight job contexts.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *Scheduler) IsRunning() bool {
	return s.scheduler.IsRunning()
}

// ScheduleInterval runs job every interval, first run immediately on start.
// Each run gets a context bounded by timeout and cancelled on Stop.
func (s *Scheduler) ScheduleInterval(
	tag string,
	interval time.Duration,
	timeout time.Duration,
	job func(ctx context.Context) error,
) error {
	_, err := s.scheduler.Every(interval).Tag(tag).Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			logger.Error("scheduled job failed", "job", tag, "error", err, "duration", time.Since(start).String())
			return
		}
		logger.Debug("scheduled job finished", "job", tag, "duration", time.Since(start).String())
	})
	if err != nil {
		return fmt.Errorf("scheduler: schedule %s: %w", tag, err)
	}
	return nil
}

// NextRun returns when the tagged job fires next.
func (s *Scheduler) NextRun(tag string) (time.Time, bool) {
	jobs, err := s.scheduler.FindJobsByTag(tag)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}

// RemoveJob removes a scheduled job by tag
func (s *Scheduler) RemoveJob(tag string) error {
	return s.scheduler.RemoveByTag(tag)
}
