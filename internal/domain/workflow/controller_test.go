package workflow

import (
	"context"
	"errors"
	"io"
	"loan-simulator/internal/amortization"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/pkg/apperrors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCalculator struct {
	mock.Mock
}

func (m *mockCalculator) Calculate(ctx context.Context, req loan.CalculationRequest) (*loan.CalculationResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*loan.CalculationResult)
	return result, args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

var testStart = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func anaRequest() loan.LoanRequest {
	return loan.LoanRequest{
		HolderName:    "Ana",
		AccountNumber: "1234567890",
		Principal:     decimal.NewFromInt(50000),
		TermYears:     decimal.NewFromInt(3),
		PaymentDay:    6,
		RateMode:      loan.RateModeFixed,
	}
}

func twoRowResult() *loan.CalculationResult {
	return &loan.CalculationResult{
		RateType:       "Fixed rate 15.00%",
		MonthlyPayment: decimal.NewFromInt(550),
		TotalPayment:   decimal.NewFromInt(1100),
		TotalInterest:  decimal.NewFromInt(100),
		AmortizationTable: []loan.Installment{
			{Period: 1, Payment: decimal.NewFromInt(550), PrincipalComponent: decimal.NewNullDecimal(decimal.NewFromInt(500))},
			{Period: 2, Payment: decimal.NewFromInt(550), PrincipalComponent: decimal.NewNullDecimal(decimal.NewFromInt(500))},
		},
	}
}

func newTestController(t *testing.T, calc loan.Calculator) (*Controller, *ManualScheduler, *recordingNotifier) {
	t.Helper()
	sched := NewManualScheduler(testStart)
	notifier := &recordingNotifier{}
	ctrl := NewController("session-1", calc, DefaultSettings(),
		WithScheduler(sched),
		WithNotifier(notifier),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return ctrl, sched, notifier
}

func engineCalculator(t *testing.T) loan.Calculator {
	t.Helper()
	rates, err := amortization.ParseRates("0.15", "0.12", "0.18")
	require.NoError(t, err)
	return amortization.NewEngine(rates, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestControllerFullLifecycle(t *testing.T) {
	ctrl, sched, notifier := newTestController(t, engineCalculator(t))
	assert.Equal(t, PhaseForm, ctrl.Phase())

	require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))
	view := ctrl.Snapshot()
	require.Equal(t, PhaseConfirmation, view.Phase)
	require.NotNil(t, view.Result)
	assert.Len(t, view.Result.AmortizationTable, 36)

	require.NoError(t, ctrl.Accept())
	assert.Equal(t, PhaseProcessing, ctrl.Phase())

	sched.Advance(2999 * time.Millisecond)
	assert.Equal(t, PhaseProcessing, ctrl.Phase(), "approval must wait the full delay")
	sched.Advance(time.Millisecond)
	assert.Equal(t, PhaseApproved, ctrl.Phase())

	sched.Advance(1499 * time.Millisecond)
	assert.Equal(t, PhaseApproved, ctrl.Phase())
	sched.Advance(time.Millisecond)
	require.Equal(t, PhasePlan, ctrl.Phase())

	plan := ctrl.Snapshot().Plan
	require.NotNil(t, plan)
	assert.Equal(t, 36, plan.Schedule.Len())
	assert.Equal(t, "Fixed rate 15.00%", plan.RateType)
	assert.True(t, plan.Schedule.RemainingBalance().Equal(decimal.NewFromInt(50000)))
	for _, inst := range plan.Schedule.Installments() {
		assert.Equal(t, loan.InstallmentPending, inst.Status)
	}
	assert.Equal(t, time.Date(2026, time.April, 6, 0, 0, 0, 0, time.UTC), plan.DueDate(1))

	res, err := ctrl.Pay(0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Installment.Period)
	assert.False(t, res.FullyRepaid)

	_, err = ctrl.Pay(0)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrderPayment)
	_, err = ctrl.Pay(5)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrderPayment)
	assert.Equal(t, 1, ctrl.Snapshot().Plan.Schedule.PaidCount(), "rejected payments change nothing")

	for i := 1; i < 36; i++ {
		res, err = ctrl.Pay(i)
		require.NoError(t, err, "installment %d", i)
	}
	assert.True(t, res.FullyRepaid)
	assert.True(t, res.RemainingBalance.IsZero())

	assert.Equal(t, []EventType{EventLoanApproved, EventPlanReady}, notifier.Types()[:2])
	assert.Equal(t, EventLoanRepaid, notifier.Types()[len(notifier.Types())-1])
	assert.Len(t, notifier.Types(), 2+36+1)
}

func TestControllerSubmit(t *testing.T) {
	t.Run("should not call the calculator when validation fails", func(t *testing.T) {
		calc := new(mockCalculator)
		ctrl, _, _ := newTestController(t, calc)

		req := anaRequest()
		req.AccountNumber = "123"
		err := ctrl.Submit(context.Background(), req)

		assert.ErrorIs(t, err, apperrors.ErrValidation)
		view := ctrl.Snapshot()
		assert.Equal(t, PhaseForm, view.Phase)
		assert.False(t, view.Loading)
		assert.NotEmpty(t, view.Error)
		calc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything)
	})

	t.Run("should reject a fixed period filling a fractional term", func(t *testing.T) {
		ctrl, _, _ := newTestController(t, engineCalculator(t))

		req := anaRequest()
		req.TermYears = decimal.RequireFromString("1.05")
		req.RateMode = loan.RateModeVariable
		req.FixedPeriodMonths = 12
		err := ctrl.Submit(context.Background(), req)

		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.NotErrorIs(t, err, apperrors.ErrCalculationService)
		assert.Equal(t, PhaseForm, ctrl.Phase())

		req.FixedPeriodMonths = 11
		require.NoError(t, ctrl.Submit(context.Background(), req))
		assert.Equal(t, PhaseConfirmation, ctrl.Phase())
	})

	t.Run("should stay in form when the calculator fails", func(t *testing.T) {
		calc := new(mockCalculator)
		calc.On("Calculate", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()
		ctrl, _, _ := newTestController(t, calc)

		err := ctrl.Submit(context.Background(), anaRequest())

		assert.ErrorIs(t, err, apperrors.ErrCalculationService)
		view := ctrl.Snapshot()
		assert.Equal(t, PhaseForm, view.Phase)
		assert.False(t, view.Loading)
		assert.Equal(t, "could not reach calculation service", view.Error)
		require.NotNil(t, view.Request)
		assert.Equal(t, "Ana", view.Request.HolderName)
		calc.AssertExpectations(t)
	})

	t.Run("should reject an empty amortization table", func(t *testing.T) {
		calc := new(mockCalculator)
		calc.On("Calculate", mock.Anything, mock.Anything).Return(&loan.CalculationResult{}, nil).Once()
		ctrl, _, _ := newTestController(t, calc)

		err := ctrl.Submit(context.Background(), anaRequest())
		assert.ErrorIs(t, err, apperrors.ErrCalculationService)
		assert.Equal(t, PhaseForm, ctrl.Phase())
	})

	t.Run("should pass the normalized request to the calculator", func(t *testing.T) {
		calc := new(mockCalculator)
		req := anaRequest()
		req.RateMode = loan.RateModeVariable
		req.FixedPeriodMonths = 12
		calc.On("Calculate", mock.Anything, loan.CalculationRequest{
			Principal: req.Principal, TermYears: req.TermYears,
			RateMode: loan.RateModeVariable, FixedPeriodMonths: 12,
		}).Return(twoRowResult(), nil).Once()
		ctrl, _, _ := newTestController(t, calc)

		require.NoError(t, ctrl.Submit(context.Background(), req))
		calc.AssertExpectations(t)
	})

	t.Run("should refuse a second submission while one is in flight", func(t *testing.T) {
		release := make(chan struct{})
		calc := new(mockCalculator)
		calc.On("Calculate", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { <-release }).
			Return(twoRowResult(), nil).Once()
		ctrl, _, _ := newTestController(t, calc)

		done := make(chan error, 1)
		go func() { done <- ctrl.Submit(context.Background(), anaRequest()) }()
		require.Eventually(t, func() bool { return ctrl.Snapshot().Loading }, time.Second, time.Millisecond)

		err := ctrl.Submit(context.Background(), anaRequest())
		assert.ErrorIs(t, err, apperrors.ErrSubmissionInFlight)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, PhaseConfirmation, ctrl.Phase())
		calc.AssertNumberOfCalls(t, "Calculate", 1)
	})

	t.Run("should discard a result that arrives after a reset", func(t *testing.T) {
		release := make(chan struct{})
		calc := new(mockCalculator)
		calc.On("Calculate", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { <-release }).
			Return(twoRowResult(), nil).Once()
		ctrl, _, _ := newTestController(t, calc)

		done := make(chan error, 1)
		go func() { done <- ctrl.Submit(context.Background(), anaRequest()) }()
		require.Eventually(t, func() bool { return ctrl.Snapshot().Loading }, time.Second, time.Millisecond)

		ctrl.Reset()
		close(release)

		assert.ErrorIs(t, <-done, apperrors.ErrStaleCalculation)
		view := ctrl.Snapshot()
		assert.Equal(t, PhaseForm, view.Phase)
		assert.Nil(t, view.Request)
		assert.Nil(t, view.Result)
	})

	t.Run("should refuse to submit outside the form", func(t *testing.T) {
		calc := new(mockCalculator)
		calc.On("Calculate", mock.Anything, mock.Anything).Return(twoRowResult(), nil).Once()
		ctrl, _, _ := newTestController(t, calc)
		require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))

		err := ctrl.Submit(context.Background(), anaRequest())
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
		calc.AssertNumberOfCalls(t, "Calculate", 1)
	})
}

func TestControllerSnapshotIsolation(t *testing.T) {
	calc := new(mockCalculator)
	calc.On("Calculate", mock.Anything, mock.Anything).Return(twoRowResult(), nil)
	ctrl, _, _ := newTestController(t, calc)
	require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))

	first := ctrl.Snapshot()
	require.NotNil(t, first.Result)
	first.Result.RateType = "tampered"
	first.Result.AmortizationTable[0].Payment = decimal.Zero
	first.Request.HolderName = "Eve"

	second := ctrl.Snapshot()
	assert.Equal(t, "Fixed rate 15.00%", second.Result.RateType)
	assert.True(t, second.Result.AmortizationTable[0].Payment.Equal(decimal.NewFromInt(550)))
	assert.Equal(t, "Ana", second.Request.HolderName)

	require.NoError(t, ctrl.Accept())
	processing := ctrl.Snapshot()
	processing.Result.AmortizationTable[1].Payment = decimal.Zero
	assert.True(t, ctrl.Snapshot().Result.AmortizationTable[1].Payment.Equal(decimal.NewFromInt(550)))
}

func TestControllerModify(t *testing.T) {
	calc := new(mockCalculator)
	calc.On("Calculate", mock.Anything, mock.Anything).Return(twoRowResult(), nil)
	ctrl, _, _ := newTestController(t, calc)
	require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))

	require.NoError(t, ctrl.Modify())

	view := ctrl.Snapshot()
	assert.Equal(t, PhaseForm, view.Phase)
	assert.Nil(t, view.Result, "modify drops the calculation result")
	require.NotNil(t, view.Request)
	assert.Equal(t, anaRequest(), *view.Request)

	assert.ErrorIs(t, ctrl.Modify(), apperrors.ErrInvalidTransition)

	require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))
	assert.Equal(t, PhaseConfirmation, ctrl.Phase())
}

func TestControllerInvalidTransitions(t *testing.T) {
	calc := new(mockCalculator)
	calc.On("Calculate", mock.Anything, mock.Anything).Return(twoRowResult(), nil)
	ctrl, sched, _ := newTestController(t, calc)

	assert.ErrorIs(t, ctrl.Accept(), apperrors.ErrInvalidTransition)
	_, err := ctrl.Pay(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))
	_, err = ctrl.Pay(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	require.NoError(t, ctrl.Accept())
	assert.ErrorIs(t, ctrl.Accept(), apperrors.ErrInvalidTransition)
	assert.ErrorIs(t, ctrl.Modify(), apperrors.ErrInvalidTransition)

	sched.Advance(DefaultApprovalDelay)
	assert.Equal(t, PhaseApproved, ctrl.Phase())
	_, err = ctrl.Pay(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestControllerReset(t *testing.T) {
	t.Run("should cancel pending approval", func(t *testing.T) {
		calc := new(mockCalculator)
		calc.On("Calculate", mock.Anything, mock.Anything).Return(twoRowResult(), nil)
		ctrl, sched, notifier := newTestController(t, calc)
		require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))
		require.NoError(t, ctrl.Accept())

		ctrl.Reset()
		assert.Zero(t, sched.Pending())

		sched.Advance(10 * time.Second)
		assert.Equal(t, PhaseForm, ctrl.Phase())
		assert.Empty(t, notifier.Types())
	})

	t.Run("should start over from a plan", func(t *testing.T) {
		calc := new(mockCalculator)
		calc.On("Calculate", mock.Anything, mock.Anything).Return(twoRowResult(), nil)
		ctrl, sched, _ := newTestController(t, calc)
		require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))
		require.NoError(t, ctrl.Accept())
		sched.Advance(DefaultApprovalDelay + DefaultPlanDelay)
		require.Equal(t, PhasePlan, ctrl.Phase())

		ctrl.Reset()
		view := ctrl.Snapshot()
		assert.Equal(t, PhaseForm, view.Phase)
		assert.Nil(t, view.Plan)

		require.NoError(t, ctrl.Submit(context.Background(), anaRequest()))
		assert.Equal(t, PhaseConfirmation, ctrl.Phase())
	})
}

func TestControllerPlanUsesTotalPaymentBasis(t *testing.T) {
	result := twoRowResult()
	for i := range result.AmortizationTable {
		result.AmortizationTable[i].PrincipalComponent = decimal.NullDecimal{}
	}
	calc := new(mockCalculator)
	calc.On("Calculate", mock.Anything, mock.Anything).Return(result, nil)
	ctrl, sched, _ := newTestController(t, calc)

	req := anaRequest()
	req.Principal = decimal.NewFromInt(1000)
	require.NoError(t, ctrl.Submit(context.Background(), req))
	require.NoError(t, ctrl.Accept())
	sched.Advance(DefaultApprovalDelay + DefaultPlanDelay)

	plan := ctrl.Snapshot().Plan
	require.NotNil(t, plan)
	assert.Equal(t, loan.BasisTotalPayment, plan.Schedule.Basis())
	assert.True(t, plan.Schedule.RemainingBalance().Equal(decimal.NewFromInt(1100)))

	res, err := ctrl.Pay(0)
	require.NoError(t, err)
	assert.True(t, res.RemainingBalance.Equal(decimal.NewFromInt(550)))
}
