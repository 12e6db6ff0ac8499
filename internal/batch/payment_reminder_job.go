package batch

import (
	"context"
	"fmt"
	"loan-simulator/internal/domain/workflow"
	"loan-simulator/internal/infrastructure/monitoring"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const paymentReminderJobName = "PaymentReminder"

// PaymentReminderJob publishes an installment.due event for every plan whose
// next pending installment falls due within the window. Each installment is
// reminded at most once while it stays due.
type PaymentReminderJob struct {
	service  workflow.WorkflowService
	notifier workflow.Notifier
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	sent map[string]struct{}
}

func NewPaymentReminderJob(svc workflow.WorkflowService, notifier workflow.Notifier, window time.Duration, logger *slog.Logger) *PaymentReminderJob {
	if svc == nil || notifier == nil || logger == nil {
		panic("PaymentReminderJob dependencies cannot be nil")
	}
	return &PaymentReminderJob{
		service:  svc,
		notifier: notifier,
		window:   window,
		now:      time.Now,
		logger:   logger.With("job", paymentReminderJobName),
		sent:     make(map[string]struct{}),
	}
}

func (j *PaymentReminderJob) Name() string {
	return paymentReminderJobName
}

func reminderKey(d workflow.DueInstallment) string {
	return d.SessionID + "/" + strconv.Itoa(d.Period)
}

func (j *PaymentReminderJob) Run(ctx context.Context) error {
	startTime := time.Now()
	now := j.now()
	j.logger.InfoContext(ctx, "Starting payment reminder job.", slog.Duration("window", j.window))

	due := j.service.DueInstallments(ctx, now, j.window)
	pending := j.unsent(due)
	j.logger.InfoContext(ctx, "Found due installments.", slog.Int("due", len(due)), slog.Int("unsent", len(pending)))

	var wg sync.WaitGroup
	var sentCount, errorCount atomic.Int32

	for _, d := range pending {
		wg.Add(1)
		go func(d workflow.DueInstallment) {
			defer wg.Done()

			logCtx := j.logger.With(slog.String("sessionID", d.SessionID), slog.Int("period", d.Period))
			dueDate := d.DueDate
			event := workflow.Event{
				Type:             workflow.EventPaymentDue,
				SessionID:        d.SessionID,
				HolderName:       d.HolderName,
				AccountNumber:    d.AccountNumber,
				Period:           d.Period,
				Amount:           d.Amount,
				RemainingBalance: d.RemainingBalance,
				DueDate:          &dueDate,
				OccurredAt:       now,
			}
			if err := j.notifier.Notify(ctx, event); err != nil {
				logCtx.ErrorContext(ctx, "Failed to publish payment reminder", slog.Any("error", err))
				errorCount.Add(1)
				return
			}
			j.markSent(d)
			monitoring.RecordReminderSent()
			sentCount.Add(1)
			logCtx.DebugContext(ctx, "Payment reminder published.", slog.String("due_date", dueDate.Format("2006-01-02")))
		}(d)
	}

	wg.Wait()
	duration := time.Since(startTime)
	monitoring.RecordBatchJob(paymentReminderJobName, duration)
	summaryLog := j.logger.With(
		slog.Duration("duration", duration),
		slog.Int("installments_due", len(due)),
		slog.Int("reminders_sent", int(sentCount.Load())),
		slog.Int("errors_encountered", int(errorCount.Load())),
	)
	if errorCount.Load() > 0 {
		summaryLog.WarnContext(ctx, "Payment reminder job finished with errors.")
		return fmt.Errorf("job completed with %d errors", errorCount.Load())
	}
	summaryLog.InfoContext(ctx, "Payment reminder job finished successfully.")
	return nil
}

// unsent filters out installments already reminded and forgets reminders for
// installments that are no longer due.
func (j *PaymentReminderJob) unsent(due []workflow.DueInstallment) []workflow.DueInstallment {
	j.mu.Lock()
	defer j.mu.Unlock()

	current := make(map[string]struct{}, len(due))
	var out []workflow.DueInstallment
	for _, d := range due {
		key := reminderKey(d)
		current[key] = struct{}{}
		if _, ok := j.sent[key]; !ok {
			out = append(out, d)
		}
	}
	for key := range j.sent {
		if _, ok := current[key]; !ok {
			delete(j.sent, key)
		}
	}
	return out
}

func (j *PaymentReminderJob) markSent(d workflow.DueInstallment) {
	j.mu.Lock()
	j.sent[reminderKey(d)] = struct{}{}
	j.mu.Unlock()
}
