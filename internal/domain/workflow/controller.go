package workflow

import (
	"context"
	"errors"
	"fmt"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/infrastructure/monitoring"
	"loan-simulator/internal/pkg/apperrors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultApprovalDelay = 3 * time.Second
	DefaultPlanDelay     = 1500 * time.Millisecond
)

type Settings struct {
	ApprovalDelay time.Duration
	PlanDelay     time.Duration
	TermLimits    loan.TermLimits
}

func DefaultSettings() Settings {
	return Settings{
		ApprovalDelay: DefaultApprovalDelay,
		PlanDelay:     DefaultPlanDelay,
		TermLimits:    loan.DefaultTermLimits(),
	}
}

type Option func(*Controller)

func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// PaymentResult describes an accepted installment payment.
type PaymentResult struct {
	Installment      loan.Installment
	RemainingBalance decimal.Decimal
	FullyRepaid      bool
}

// Controller drives one loan request through form, confirmation, processing,
// approved and plan. All state changes happen under mu; the calculation call
// and event delivery run without it.
type Controller struct {
	id         string
	calculator loan.Calculator
	settings   Settings
	scheduler  Scheduler
	notifier   Notifier
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     Cancel
}

func NewController(id string, calculator loan.Calculator, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		id:         id,
		calculator: calculator,
		settings:   settings,
		scheduler:  NewRealScheduler(),
		notifier:   nopNotifier{},
		logger:     slog.Default(),
		state:      FormState{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "WorkflowController", "sessionID", id)
	return c
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return viewOf(c.state)
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase()
}

// Submit validates req and asks the calculator for an amortization plan. It
// blocks until the calculator answers. Validation failures never reach the
// calculator.
func (c *Controller) Submit(ctx context.Context, req loan.LoanRequest) error {
	req = req.Normalize()

	c.mu.Lock()
	form, ok := c.state.(FormState)
	if !ok {
		phase := c.state.Phase()
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot submit a request in %s", apperrors.ErrInvalidTransition, phase)
	}
	if form.Loading {
		c.mu.Unlock()
		return apperrors.ErrSubmissionInFlight
	}
	if err := req.Validate(c.settings.TermLimits); err != nil {
		c.state = FormState{Draft: &req, Error: apperrors.UserMessage(err)}
		c.mu.Unlock()
		return err
	}
	generation := c.generation
	c.state = FormState{Draft: &req, Loading: true}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Requesting amortization plan",
		"principal", req.Principal.String(), "termYears", req.TermYears.String(), "rateMode", req.RateMode)

	start := time.Now()
	result, err := c.calculator.Calculate(ctx, req.CalculationRequest())
	if err == nil {
		err = result.Check()
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	monitoring.RecordCalculation(status, time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.logger.WarnContext(ctx, "Discarding calculation result, workflow was restarted")
		return apperrors.ErrStaleCalculation
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "Calculation failed", "error", err)
		c.state = FormState{Draft: &req, Error: apperrors.ErrCalculationService.Error()}
		if !errors.Is(err, apperrors.ErrCalculationService) {
			err = apperrors.WrapCalculationError(err)
		}
		return err
	}

	c.state = ConfirmationState{Request: req, Result: result}
	monitoring.RecordTransition(string(PhaseConfirmation))
	c.logger.InfoContext(ctx, "Amortization plan received", "periods", len(result.AmortizationTable))
	return nil
}

// Modify returns to the form keeping the request as a draft and dropping the
// calculation result.
func (c *Controller) Modify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conf, ok := c.state.(ConfirmationState)
	if !ok {
		return fmt.Errorf("%w: cannot modify a request in %s", apperrors.ErrInvalidTransition, c.state.Phase())
	}
	draft := conf.Request
	c.state = FormState{Draft: &draft}
	monitoring.RecordTransition(string(PhaseForm))
	return nil
}

// Accept starts processing. Approval and the plan follow on their own after
// the configured delays.
func (c *Controller) Accept() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conf, ok := c.state.(ConfirmationState)
	if !ok {
		return fmt.Errorf("%w: cannot accept a loan in %s", apperrors.ErrInvalidTransition, c.state.Phase())
	}
	c.state = ProcessingState{Request: conf.Request, Result: conf.Result}
	generation := c.generation
	c.cancel = c.scheduler.After(c.settings.ApprovalDelay, func() { c.approve(generation) })
	monitoring.RecordTransition(string(PhaseProcessing))
	c.logger.Info("Loan accepted, processing")
	return nil
}

func (c *Controller) approve(generation uint64) {
	c.mu.Lock()
	proc, ok := c.state.(ProcessingState)
	if !ok || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.state = ApprovedState{Request: proc.Request, Result: proc.Result}
	c.cancel = c.scheduler.After(c.settings.PlanDelay, func() { c.enterPlan(generation) })
	event := c.event(EventLoanApproved, proc.Request)
	event.Amount = proc.Request.Principal
	c.mu.Unlock()

	monitoring.RecordTransition(string(PhaseApproved))
	c.logger.Info("Loan approved")
	c.notify(event)
}

func (c *Controller) enterPlan(generation uint64) {
	c.mu.Lock()
	appr, ok := c.state.(ApprovedState)
	if !ok || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.cancel = nil

	schedule, err := loan.NewPaymentSchedule(appr.Result, appr.Request.Principal)
	if err != nil {
		draft := appr.Request
		c.state = FormState{Draft: &draft, Error: apperrors.ErrCalculationService.Error()}
		c.mu.Unlock()
		c.logger.Error("Could not build payment schedule", "error", err)
		return
	}

	plan := PlanState{
		Request:        appr.Request,
		RateType:       appr.Result.RateType,
		MonthlyPayment: appr.Result.MonthlyPayment,
		TotalPayment:   appr.Result.TotalPayment,
		Schedule:       schedule,
		StartDate:      c.scheduler.Now(),
	}
	c.state = plan
	event := c.event(EventPlanReady, plan.Request)
	event.Amount = plan.TotalPayment
	event.RemainingBalance = schedule.RemainingBalance()
	c.mu.Unlock()

	monitoring.RecordTransition(string(PhasePlan))
	c.logger.Info("Payment plan ready", "installments", schedule.Len(), "basis", schedule.Basis())
	c.notify(event)
}

// Pay records the installment at index, which must be the first pending one.
func (c *Controller) Pay(index int) (PaymentResult, error) {
	c.mu.Lock()
	plan, ok := c.state.(PlanState)
	if !ok {
		phase := c.state.Phase()
		c.mu.Unlock()
		return PaymentResult{}, fmt.Errorf("%w: cannot pay an installment in %s", apperrors.ErrInvalidTransition, phase)
	}

	next, paid, err := plan.Schedule.RecordPayment(index)
	if err != nil {
		c.mu.Unlock()
		return PaymentResult{}, err
	}
	plan.Schedule = next
	c.state = plan

	res := PaymentResult{
		Installment:      paid,
		RemainingBalance: next.RemainingBalance(),
		FullyRepaid:      next.IsFullyRepaid(),
	}

	events := make([]Event, 0, 2)
	paidEvent := c.event(EventInstallmentPaid, plan.Request)
	paidEvent.Period = paid.Period
	paidEvent.Amount = paid.Payment
	paidEvent.RemainingBalance = res.RemainingBalance
	due := plan.DueDate(paid.Period)
	paidEvent.DueDate = &due
	events = append(events, paidEvent)
	if res.FullyRepaid {
		repaid := c.event(EventLoanRepaid, plan.Request)
		repaid.Amount = next.PaidTotal()
		events = append(events, repaid)
	}
	c.mu.Unlock()

	for _, e := range events {
		c.notify(e)
	}
	return res, nil
}

// Reset abandons whatever is in progress and starts over with an empty form.
// Pending delays are canceled and an in-flight calculation result will be
// discarded when it arrives.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.state = FormState{}
}

// Close cancels pending work. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) event(t EventType, req loan.LoanRequest) Event {
	return Event{
		Type:          t,
		SessionID:     c.id,
		HolderName:    req.HolderName,
		AccountNumber: req.AccountNumber,
		OccurredAt:    c.scheduler.Now().UTC(),
	}
}

func (c *Controller) notify(e Event) {
	if err := c.notifier.Notify(context.Background(), e); err != nil {
		c.logger.Warn("Failed to deliver lifecycle event", "event", e.Type, "error", err)
	}
}
