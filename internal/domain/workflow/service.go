package workflow

import (
	"context"
	"errors"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/infrastructure/monitoring"
	"loan-simulator/internal/pkg/apperrors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

type SessionView struct {
	ID        string
	CreatedAt time.Time
	View
}

type PaymentOutcome struct {
	Session SessionView
	Payment PaymentResult
}

// DueInstallment is the next pending installment of a plan session.
type DueInstallment struct {
	SessionID        string
	HolderName       string
	AccountNumber    string
	Period           int
	Amount           decimal.Decimal
	RemainingBalance decimal.Decimal
	DueDate          time.Time
}

type WorkflowService interface {
	CreateSession(ctx context.Context) (*SessionView, error)

	GetSession(ctx context.Context, sessionID string) (*SessionView, error)

	SubmitRequest(ctx context.Context, sessionID string, req loan.LoanRequest) (*SessionView, error)

	ModifyRequest(ctx context.Context, sessionID string) (*SessionView, error)

	AcceptLoan(ctx context.Context, sessionID string) (*SessionView, error)

	PayInstallment(ctx context.Context, sessionID string, index int) (*PaymentOutcome, error)

	ResetSession(ctx context.Context, sessionID string) (*SessionView, error)

	DeleteSession(ctx context.Context, sessionID string) error

	SweepIdleSessions(ctx context.Context, idle time.Duration) []string

	// DueInstallments lists plan sessions whose next pending installment
	// falls due within window of now.
	DueInstallments(ctx context.Context, now time.Time, window time.Duration) []DueInstallment
}

type workflowServiceImpl struct {
	registry *Registry
	logger   *slog.Logger
}

func NewWorkflowService(registry *Registry, logger *slog.Logger) WorkflowService {
	return &workflowServiceImpl{registry: registry, logger: logger.With("component", "WorkflowService")}
}

func (s *workflowServiceImpl) CreateSession(ctx context.Context) (*SessionView, error) {
	session := s.registry.Create()
	monitoring.SetActiveSessions(s.registry.Len())
	s.logger.InfoContext(ctx, "Session created", "sessionID", session.ID)
	return s.view(session), nil
}

func (s *workflowServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "Session not found", "sessionID", sessionID)
		return nil, err
	}
	return s.view(session), nil
}

func (s *workflowServiceImpl) SubmitRequest(ctx context.Context, sessionID string, req loan.LoanRequest) (*SessionView, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("sessionID", sessionID)
	if err := session.Controller.Submit(ctx, req); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			monitoring.RecordSubmission("invalid")
			logger.InfoContext(ctx, "Loan request rejected", "error", err)
		case errors.Is(err, apperrors.ErrCalculationService):
			monitoring.RecordSubmission("calculation_failed")
			logger.ErrorContext(ctx, "Calculation service failed", "error", err)
		default:
			monitoring.RecordSubmission("refused")
			logger.WarnContext(ctx, "Loan request refused", "error", err)
		}
		return nil, err
	}

	monitoring.RecordSubmission("success")
	logger.InfoContext(ctx, "Loan request submitted")
	return s.view(session), nil
}

func (s *workflowServiceImpl) ModifyRequest(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Controller.Modify(); err != nil {
		s.logger.WarnContext(ctx, "Modify refused", "sessionID", sessionID, "error", err)
		return nil, err
	}
	return s.view(session), nil
}

func (s *workflowServiceImpl) AcceptLoan(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Controller.Accept(); err != nil {
		s.logger.WarnContext(ctx, "Accept refused", "sessionID", sessionID, "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "Loan accepted", "sessionID", sessionID)
	return s.view(session), nil
}

func (s *workflowServiceImpl) PayInstallment(ctx context.Context, sessionID string, index int) (*PaymentOutcome, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("sessionID", sessionID, "index", index)
	res, err := session.Controller.Pay(index)
	if err != nil {
		status := "failed"
		if errors.Is(err, apperrors.ErrOutOfOrderPayment) {
			status = "out_of_order"
		}
		monitoring.RecordPayment(status)
		logger.WarnContext(ctx, "Payment rejected", "error", err)
		return nil, err
	}

	monitoring.RecordPayment("success")
	logger.InfoContext(ctx, "Installment paid",
		"period", res.Installment.Period, "remainingBalance", res.RemainingBalance.StringFixed(2))
	if res.FullyRepaid {
		monitoring.RecordLoanRepaid()
		logger.InfoContext(ctx, "Loan fully repaid")
	}

	return &PaymentOutcome{Session: *s.view(session), Payment: res}, nil
}

func (s *workflowServiceImpl) ResetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	session.Controller.Reset()
	monitoring.RecordTransition(string(PhaseForm))
	s.logger.InfoContext(ctx, "Session reset", "sessionID", sessionID)
	return s.view(session), nil
}

func (s *workflowServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.registry.Delete(sessionID); err != nil {
		return err
	}
	monitoring.SetActiveSessions(s.registry.Len())
	s.logger.InfoContext(ctx, "Session deleted", "sessionID", sessionID)
	return nil
}

func (s *workflowServiceImpl) SweepIdleSessions(ctx context.Context, idle time.Duration) []string {
	expired := s.registry.Sweep(idle)
	monitoring.RecordSessionsExpired(len(expired))
	monitoring.SetActiveSessions(s.registry.Len())
	if len(expired) > 0 {
		s.logger.InfoContext(ctx, "Idle sessions dropped", "count", len(expired))
	}
	return expired
}

func (s *workflowServiceImpl) DueInstallments(ctx context.Context, now time.Time, window time.Duration) []DueInstallment {
	var due []DueInstallment
	deadline := now.Add(window)

	s.registry.Range(func(session *Session) bool {
		if ctx.Err() != nil {
			return false
		}
		plan := session.Controller.Snapshot().Plan
		if plan == nil {
			return true
		}
		idx, ok := plan.Schedule.FirstPendingIndex()
		if !ok {
			return true
		}
		inst := plan.Schedule.Installments()[idx]
		dueDate := plan.DueDate(inst.Period)
		if dueDate.Before(now) || dueDate.After(deadline) {
			return true
		}
		due = append(due, DueInstallment{
			SessionID:        session.ID,
			HolderName:       plan.Request.HolderName,
			AccountNumber:    plan.Request.AccountNumber,
			Period:           inst.Period,
			Amount:           inst.Payment,
			RemainingBalance: plan.Schedule.RemainingBalance(),
			DueDate:          dueDate,
		})
		return true
	})
	return due
}

func (s *workflowServiceImpl) view(session *Session) *SessionView {
	return &SessionView{ID: session.ID, CreatedAt: session.CreatedAt, View: session.Controller.Snapshot()}
}
