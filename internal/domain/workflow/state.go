package workflow

import (
	"loan-simulator/internal/domain/loan"
	"time"

	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseForm         Phase = "form"
	PhaseConfirmation Phase = "confirmation"
	PhaseProcessing   Phase = "processing"
	PhaseApproved     Phase = "approved"
	PhasePlan         Phase = "plan"
)

// State is one of FormState, ConfirmationState, ProcessingState,
// ApprovedState or PlanState. Each carries only the data valid in that phase.
type State interface {
	Phase() Phase
	isState()
}

// FormState collects the request. Draft holds the last submitted or modified
// request so it can be shown again; Error is the message of the last failure.
type FormState struct {
	Draft   *loan.LoanRequest
	Loading bool
	Error   string
}

type ConfirmationState struct {
	Request loan.LoanRequest
	Result  *loan.CalculationResult
}

type ProcessingState struct {
	Request loan.LoanRequest
	Result  *loan.CalculationResult
}

type ApprovedState struct {
	Request loan.LoanRequest
	Result  *loan.CalculationResult
}

// PlanState holds the payment schedule. The raw amortization table is not
// kept; Schedule is the only source of installment data from here on.
type PlanState struct {
	Request        loan.LoanRequest
	RateType       string
	MonthlyPayment decimal.Decimal
	TotalPayment   decimal.Decimal
	Schedule       loan.PaymentSchedule
	StartDate      time.Time
}

func (FormState) Phase() Phase         { return PhaseForm }
func (ConfirmationState) Phase() Phase { return PhaseConfirmation }
func (ProcessingState) Phase() Phase   { return PhaseProcessing }
func (ApprovedState) Phase() Phase     { return PhaseApproved }
func (PlanState) Phase() Phase         { return PhasePlan }

func (FormState) isState()         {}
func (ConfirmationState) isState() {}
func (ProcessingState) isState()   {}
func (ApprovedState) isState()     {}
func (PlanState) isState()         {}

// DueDate is the date installment period falls due.
func (p PlanState) DueDate(period int) time.Time {
	return loan.PaymentDate(p.StartDate, period, p.Request.PaymentDay)
}

// View is a point-in-time copy of a controller's state for rendering.
// Result and Plan are nil outside the phases that carry them.
type View struct {
	Phase   Phase
	Loading bool
	Error   string
	Request *loan.LoanRequest
	Result  *loan.CalculationResult
	Plan    *PlanState
}

func viewOf(s State) View {
	switch st := s.(type) {
	case FormState:
		v := View{Phase: PhaseForm, Loading: st.Loading, Error: st.Error}
		if st.Draft != nil {
			draft := *st.Draft
			v.Request = &draft
		}
		return v
	case ConfirmationState:
		return View{Phase: PhaseConfirmation, Request: &st.Request, Result: st.Result.Clone()}
	case ProcessingState:
		return View{Phase: PhaseProcessing, Request: &st.Request, Result: st.Result.Clone()}
	case ApprovedState:
		return View{Phase: PhaseApproved, Request: &st.Request, Result: st.Result.Clone()}
	case PlanState:
		return View{Phase: PhasePlan, Request: &st.Request, Plan: &st}
	default:
		return View{Phase: PhaseForm}
	}
}
