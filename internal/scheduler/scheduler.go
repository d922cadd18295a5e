package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/altafino/invoice-fetcher/internal/types"
)

// Runner executes one batch over a date range (both dates YYYY-MM-DD).
type Runner interface {
	RunRange(dateFrom, dateTo string) error
}

// Scheduler periodically runs the fetch over a sliding date window.
type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	job       *gocron.Job
	mu        sync.Mutex
}

// New creates a new scheduler instance
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// UpdateJob replaces the scheduled fetch job with one built from cfg.
func (s *Scheduler) UpdateJob(cfg *types.Config, runner Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		s.scheduler.RemoveByReference(s.job)
		s.job = nil
	}

	if !cfg.Scheduling.Enabled {
		s.logger.Info("scheduling disabled")
		return nil
	}

	window := cfg.Scheduling.WindowDays
	jobFunc := func() {
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -window)
		dateFrom := from.Format("2006-01-02")
		dateTo := to.Format("2006-01-02")

		s.logger.Info("executing scheduled fetch",
			"from", dateFrom,
			"to", dateTo,
		)
		if err := runner.RunRange(dateFrom, dateTo); err != nil {
			s.logger.Error("scheduled fetch failed", "error", err)
		}
	}

	job := s.scheduler.Every(cfg.Scheduling.FrequencyAmount)

	if cfg.Scheduling.StartNow {
		s.logger.Info("running fetch immediately")
		jobFunc()
	}

	switch cfg.Scheduling.FrequencyEvery {
	case "minute":
		job = job.Minutes()
	case "hour":
		job = job.Hours()
	case "day":
		job = job.Days()
	case "week":
		job = job.Weeks()
	default:
		return fmt.Errorf("invalid frequency: %s", cfg.Scheduling.FrequencyEvery)
	}

	scheduledJob, err := job.Do(jobFunc)
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	s.job = scheduledJob

	s.logger.Info("scheduled job updated",
		"frequency", fmt.Sprintf("every %d %s", cfg.Scheduling.FrequencyAmount, cfg.Scheduling.FrequencyEvery),
		"window_days", window,
		"start_now", cfg.Scheduling.StartNow,
	)

	return nil
}
