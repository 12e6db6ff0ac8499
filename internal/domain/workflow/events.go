package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType doubles as the routing key when events are published to a broker.
type EventType string

const (
	EventLoanApproved    EventType = "loan.approved"
	EventPlanReady       EventType = "loan.plan_ready"
	EventInstallmentPaid EventType = "installment.paid"
	EventLoanRepaid      EventType = "loan.repaid"
	EventPaymentDue      EventType = "installment.due"
)

type Event struct {
	Type             EventType       `json:"type"`
	SessionID        string          `json:"sessionId"`
	HolderName       string          `json:"holderName"`
	AccountNumber    string          `json:"accountNumber"`
	Period           int             `json:"period,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	DueDate          *time.Time      `json:"dueDate,omitempty"`
	OccurredAt       time.Time       `json:"occurredAt"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }
