package event

import (
	"context"
	"encoding/json"
	"fmt"
	"loan-simulator/internal/domain/workflow"
	"loan-simulator/internal/infrastructure/monitoring"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notification is the message addressed to the account holder.
type Notification struct {
	AccountNumber string
	HolderName    string
	Subject       string
	Body          string
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender delivers notifications to the log.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "LogSender")}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "Notification sent",
		"accountNumber", n.AccountNumber, "subject", n.Subject, "body", n.Body)
	return nil
}

// Render turns a lifecycle event into the holder-facing notification.
func Render(e workflow.Event) (Notification, error) {
	n := Notification{AccountNumber: e.AccountNumber, HolderName: e.HolderName}
	switch e.Type {
	case workflow.EventLoanApproved:
		n.Subject = "Loan approved"
		n.Body = fmt.Sprintf("Dear %s, your loan of %s has been approved.", e.HolderName, e.Amount.StringFixed(2))
	case workflow.EventPlanReady:
		n.Subject = "Payment plan ready"
		n.Body = fmt.Sprintf("Dear %s, your payment plan is ready. Total to repay: %s.",
			e.HolderName, e.Amount.StringFixed(2))
	case workflow.EventInstallmentPaid:
		n.Subject = "Payment received"
		n.Body = fmt.Sprintf("Dear %s, we received installment %d of %s. Remaining balance: %s.",
			e.HolderName, e.Period, e.Amount.StringFixed(2), e.RemainingBalance.StringFixed(2))
	case workflow.EventLoanRepaid:
		n.Subject = "Loan repaid"
		n.Body = fmt.Sprintf("Dear %s, your loan is fully repaid. Total paid: %s.", e.HolderName, e.Amount.StringFixed(2))
	case workflow.EventPaymentDue:
		if e.DueDate == nil {
			return Notification{}, fmt.Errorf("installment.due event without due date")
		}
		n.Subject = "Payment reminder"
		n.Body = fmt.Sprintf("Dear %s, installment %d of %s is due on %s.",
			e.HolderName, e.Period, e.Amount.StringFixed(2), e.DueDate.Format("2006-01-02"))
	default:
		return Notification{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	return n, nil
}

// NotificationHandler acknowledges each delivery exactly once: Ack on
// success, Reject for unknown routing keys and Nack otherwise.
type NotificationHandler struct {
	sender Sender
	logger *slog.Logger
}

func NewNotificationHandler(sender Sender, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		sender: sender,
		logger: logger.With("component", "NotificationHandler"),
	}
}

func (h *NotificationHandler) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	logCtx := h.logger.With(slog.Uint64("deliveryTag", d.DeliveryTag), slog.String("routingKey", d.RoutingKey))

	if !knownRoutingKey(d.RoutingKey) {
		logCtx.WarnContext(ctx, "Received message with unknown routing key. Discarding.")
		monitoring.RecordEventConsumed(d.RoutingKey, "rejected")
		_ = d.Reject(false)
		return
	}

	var e workflow.Event
	if err := json.Unmarshal(d.Body, &e); err != nil {
		logCtx.ErrorContext(ctx, "Failed to unmarshal lifecycle event", "error", err, "body", string(d.Body))
		monitoring.RecordEventConsumed(d.RoutingKey, "malformed")
		_ = d.Nack(false, false)
		return
	}

	n, err := Render(e)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to render notification", "error", err)
		monitoring.RecordEventConsumed(d.RoutingKey, "malformed")
		_ = d.Nack(false, false)
		return
	}

	logCtx = logCtx.With(slog.String("sessionID", e.SessionID))
	if err := h.sender.Send(ctx, n); err != nil {
		logCtx.ErrorContext(ctx, "Failed to send notification", "error", err)
		monitoring.RecordEventConsumed(d.RoutingKey, "error")
		_ = d.Nack(false, false)
		return
	}

	monitoring.RecordEventConsumed(d.RoutingKey, "success")
	if err := d.Ack(false); err != nil {
		logCtx.ErrorContext(ctx, "Failed to acknowledge message after successful processing", "error", err)
	}
}

func knownRoutingKey(key string) bool {
	switch workflow.EventType(key) {
	case workflow.EventLoanApproved, workflow.EventPlanReady, workflow.EventInstallmentPaid,
		workflow.EventLoanRepaid, workflow.EventPaymentDue:
		return true
	}
	return false
}
