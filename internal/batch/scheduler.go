package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 5 * time.Minute

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduled pairs a job with its cron spec.
type Scheduled struct {
	Spec string
	Job  Job
}

// NewScheduler registers every job on a new cron scheduler. It does not start
// it. A job whose spec does not parse is logged and skipped; the rest still run.
func NewScheduler(jobs []Scheduled, jobTimeout time.Duration, logger *slog.Logger) *cron.Cron {
	logger.Info("Initializing batch job scheduler...")
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	c := cron.New()

	for _, s := range jobs {
		job := s.Job
		jobLogger := logger.With("job_name", job.Name())

		jobID, err := c.AddJob(s.Spec, cron.FuncJob(func() {
			jobLogger.Debug("Cron triggered.")

			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			if runErr := job.Run(ctx); runErr != nil {
				jobLogger.Error("Batch job finished with error", slog.Any("error", runErr))
			}
		}))
		if err != nil {
			jobLogger.Error("Failed to schedule batch job", "schedule", s.Spec, slog.Any("error", err))
			continue
		}
		jobLogger.Info("Scheduled batch job", "schedule", s.Spec, "job_id", jobID)
	}

	return c
}

// Stop halts the scheduler and waits for running jobs up to timeout.
func Stop(c *cron.Cron, timeout time.Duration, logger *slog.Logger) {
	logger.Info("Stopping cron scheduler...")
	cronCtx := c.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(timeout):
		logger.Warn("Cron scheduler shutdown timed out.")
	}
}
