package batch

import (
	"context"
	"loan-simulator/internal/domain/workflow"
	"loan-simulator/internal/infrastructure/monitoring"
	"log/slog"
	"time"
)

const sessionSweepJobName = "SessionSweep"

// SessionSweepJob drops sessions nobody has touched for longer than the TTL.
type SessionSweepJob struct {
	service workflow.WorkflowService
	ttl     time.Duration
	logger  *slog.Logger
}

func NewSessionSweepJob(svc workflow.WorkflowService, ttl time.Duration, logger *slog.Logger) *SessionSweepJob {
	if svc == nil || logger == nil {
		panic("SessionSweepJob dependencies cannot be nil")
	}
	if ttl <= 0 {
		panic("SessionSweepJob ttl must be positive")
	}
	return &SessionSweepJob{
		service: svc,
		ttl:     ttl,
		logger:  logger.With("job", sessionSweepJobName),
	}
}

func (j *SessionSweepJob) Name() string {
	return sessionSweepJobName
}

func (j *SessionSweepJob) Run(ctx context.Context) error {
	startTime := time.Now()
	j.logger.DebugContext(ctx, "Starting idle session sweep.", slog.Duration("ttl", j.ttl))

	expired := j.service.SweepIdleSessions(ctx, j.ttl)

	duration := time.Since(startTime)
	monitoring.RecordBatchJob(sessionSweepJobName, duration)
	j.logger.InfoContext(ctx, "Idle session sweep finished.",
		slog.Duration("duration", duration),
		slog.Int("sessions_dropped", len(expired)),
	)
	return ctx.Err()
}
