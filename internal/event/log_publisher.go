package event

import (
	"context"
	"loan-simulator/internal/domain/workflow"
	"loan-simulator/internal/infrastructure/monitoring"
	"log/slog"
)

// LogPublisher writes lifecycle events to the log. It stands in for the
// broker when RabbitMQ is not configured or not reachable.
type LogPublisher struct {
	logger *slog.Logger
}

var _ workflow.Notifier = (*LogPublisher)(nil)

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "LogPublisher")}
}

func (p *LogPublisher) Notify(ctx context.Context, event workflow.Event) error {
	attrs := []any{
		"routingKey", string(event.Type),
		"sessionID", event.SessionID,
		"amount", event.Amount.StringFixed(2),
		"remainingBalance", event.RemainingBalance.StringFixed(2),
	}
	if event.Period > 0 {
		attrs = append(attrs, "period", event.Period)
	}
	if event.DueDate != nil {
		attrs = append(attrs, "dueDate", event.DueDate.Format("2006-01-02"))
	}
	p.logger.InfoContext(ctx, "Lifecycle event", attrs...)
	monitoring.RecordEventPublished(string(event.Type), "logged")
	return nil
}
