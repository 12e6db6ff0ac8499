package dto

import (
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/domain/workflow"
	"loan-simulator/internal/pkg/calcapi"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type SubmitLoanRequest struct {
	HolderName        string         `json:"holderName"`
	AccountNumber     string         `json:"accountNumber"`
	Principal         calcapi.Amount `json:"principal"`
	TermYears         calcapi.Amount `json:"termYears"`
	PaymentDay        int            `json:"paymentDay"`
	RateMode          string         `json:"rateMode"`
	FixedPeriodMonths *int           `json:"fixedPeriodMonths,omitempty"`
}

// ToDomain copies the body into a loan request. Field rules are enforced by
// the domain so the form shows the same messages whatever the client.
func (r *SubmitLoanRequest) ToDomain() loan.LoanRequest {
	req := loan.LoanRequest{
		HolderName:    r.HolderName,
		AccountNumber: r.AccountNumber,
		Principal:     r.Principal.Decimal,
		TermYears:     r.TermYears.Decimal,
		PaymentDay:    r.PaymentDay,
		RateMode:      loan.RateMode(r.RateMode),
	}
	if r.FixedPeriodMonths != nil {
		req.FixedPeriodMonths = *r.FixedPeriodMonths
	}
	return req
}

type LoanRequestResponse struct {
	HolderName        string `json:"holderName"`
	AccountNumber     string `json:"accountNumber"`
	Principal         string `json:"principal"`
	TermYears         string `json:"termYears"`
	PaymentDay        int    `json:"paymentDay"`
	RateMode          string `json:"rateMode"`
	FixedPeriodMonths *int   `json:"fixedPeriodMonths,omitempty"`
}

type CalculationSummaryResponse struct {
	RateType          string                `json:"rateType"`
	MonthlyPayment    string                `json:"monthlyPayment"`
	TotalPayment      string                `json:"totalPayment"`
	TotalInterest     string                `json:"totalInterest"`
	AmortizationTable []InstallmentResponse `json:"amortizationTable"`
}

type InstallmentResponse struct {
	Index              int     `json:"index"`
	Period             int     `json:"period"`
	DueDate            string  `json:"dueDate,omitempty"`
	Payment            string  `json:"payment"`
	PrincipalComponent *string `json:"principalComponent,omitempty"`
	Interest           *string `json:"interest,omitempty"`
	Status             string  `json:"status"`
}

type PlanResponse struct {
	RateType         string                `json:"rateType"`
	MonthlyPayment   string                `json:"monthlyPayment"`
	TotalPayment     string                `json:"totalPayment"`
	InitialBalance   string                `json:"initialBalance"`
	RemainingBalance string                `json:"remainingBalance"`
	BalanceBasis     string                `json:"balanceBasis"`
	PaidCount        int                   `json:"paidCount"`
	FullyRepaid      bool                  `json:"fullyRepaid"`
	NextIndex        *int                  `json:"nextIndex,omitempty"`
	StartDate        string                `json:"startDate"`
	Installments     []InstallmentResponse `json:"installments"`
}

type SessionResponse struct {
	SessionID   string                      `json:"sessionId"`
	State       string                      `json:"state"`
	Loading     bool                        `json:"loading"`
	Error       string                      `json:"error,omitempty"`
	CreatedAt   time.Time                   `json:"createdAt"`
	Request     *LoanRequestResponse        `json:"request,omitempty"`
	Calculation *CalculationSummaryResponse `json:"calculation,omitempty"`
	Plan        *PlanResponse               `json:"plan,omitempty"`
}

type PaymentResponse struct {
	Installment      InstallmentResponse `json:"installment"`
	RemainingBalance string              `json:"remainingBalance"`
	FullyRepaid      bool                `json:"fullyRepaid"`
	Session          SessionResponse     `json:"session"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatNullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func newInstallmentResponse(index int, inst loan.Installment, due *time.Time) InstallmentResponse {
	resp := InstallmentResponse{
		Index:              index,
		Period:             inst.Period,
		Payment:            formatMoney(inst.Payment),
		PrincipalComponent: formatNullMoney(inst.PrincipalComponent),
		Interest:           formatNullMoney(inst.Interest),
		Status:             string(inst.Status),
	}
	if due != nil {
		resp.DueDate = due.Format(dateLayout)
	}
	return resp
}

func NewInstallmentResponse(plan *workflow.PlanState, index int, inst loan.Installment) InstallmentResponse {
	due := plan.DueDate(inst.Period)
	return newInstallmentResponse(index, inst, &due)
}

func newLoanRequestResponse(req *loan.LoanRequest) *LoanRequestResponse {
	if req == nil {
		return nil
	}
	resp := &LoanRequestResponse{
		HolderName:    req.HolderName,
		AccountNumber: req.AccountNumber,
		Principal:     formatMoney(req.Principal),
		TermYears:     req.TermYears.String(),
		PaymentDay:    req.PaymentDay,
		RateMode:      string(req.RateMode),
	}
	if req.RateMode == loan.RateModeVariable {
		months := req.FixedPeriodMonths
		resp.FixedPeriodMonths = &months
	}
	return resp
}

func newCalculationSummary(result *loan.CalculationResult) *CalculationSummaryResponse {
	if result == nil {
		return nil
	}
	resp := &CalculationSummaryResponse{
		RateType:          result.RateType,
		MonthlyPayment:    formatMoney(result.MonthlyPayment),
		TotalPayment:      formatMoney(result.TotalPayment),
		TotalInterest:     formatMoney(result.TotalInterest),
		AmortizationTable: make([]InstallmentResponse, len(result.AmortizationTable)),
	}
	for i, row := range result.AmortizationTable {
		resp.AmortizationTable[i] = newInstallmentResponse(i, row, nil)
	}
	return resp
}

func newPlanResponse(plan *workflow.PlanState) *PlanResponse {
	if plan == nil {
		return nil
	}
	schedule := plan.Schedule
	resp := &PlanResponse{
		RateType:         plan.RateType,
		MonthlyPayment:   formatMoney(plan.MonthlyPayment),
		TotalPayment:     formatMoney(plan.TotalPayment),
		InitialBalance:   formatMoney(schedule.InitialBalance()),
		RemainingBalance: formatMoney(schedule.RemainingBalance()),
		BalanceBasis:     string(schedule.Basis()),
		PaidCount:        schedule.PaidCount(),
		FullyRepaid:      schedule.IsFullyRepaid(),
		StartDate:        plan.StartDate.Format(dateLayout),
	}
	if idx, ok := schedule.FirstPendingIndex(); ok {
		resp.NextIndex = &idx
	}
	installments := schedule.Installments()
	resp.Installments = make([]InstallmentResponse, len(installments))
	for i, inst := range installments {
		resp.Installments[i] = NewInstallmentResponse(plan, i, inst)
	}
	return resp
}

func NewSessionResponse(s *workflow.SessionView) SessionResponse {
	if s == nil {
		return SessionResponse{}
	}
	return SessionResponse{
		SessionID:   s.ID,
		State:       string(s.Phase),
		Loading:     s.Loading,
		Error:       s.Error,
		CreatedAt:   s.CreatedAt,
		Request:     newLoanRequestResponse(s.Request),
		Calculation: newCalculationSummary(s.Result),
		Plan:        newPlanResponse(s.Plan),
	}
}

func NewPaymentResponse(outcome *workflow.PaymentOutcome) PaymentResponse {
	session := outcome.Session
	resp := PaymentResponse{
		RemainingBalance: formatMoney(outcome.Payment.RemainingBalance),
		FullyRepaid:      outcome.Payment.FullyRepaid,
		Session:          NewSessionResponse(&session),
	}
	index := outcome.Payment.Installment.Period - 1
	if session.Plan != nil {
		resp.Installment = NewInstallmentResponse(session.Plan, index, outcome.Payment.Installment)
	} else {
		resp.Installment = newInstallmentResponse(index, outcome.Payment.Installment, nil)
	}
	return resp
}
