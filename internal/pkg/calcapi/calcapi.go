// Package calcapi holds the JSON contract of the calculation service, shared
// by the HTTP handler that serves it and the client that calls it.
package calcapi

import (
	"fmt"
	"loan-simulator/internal/domain/loan"

	"github.com/shopspring/decimal"
)

// Amount is a decimal written to JSON as a bare number. It reads both numbers
// and quoted numeric strings.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func nullAmount(d decimal.NullDecimal) *Amount {
	if !d.Valid {
		return nil
	}
	return &Amount{Decimal: d.Decimal}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// CalculateRequest is the body POSTed to the calculation service.
type CalculateRequest struct {
	Principal         Amount `json:"principal"`
	TermYears         Amount `json:"termYears"`
	RateMode          string `json:"rateMode"`
	FixedPeriodMonths *int   `json:"fixedPeriodMonths,omitempty"`
}

func NewCalculateRequest(req loan.CalculationRequest) CalculateRequest {
	out := CalculateRequest{
		Principal: NewAmount(req.Principal),
		TermYears: NewAmount(req.TermYears),
		RateMode:  string(req.RateMode),
	}
	if req.RateMode == loan.RateModeVariable {
		months := req.FixedPeriodMonths
		out.FixedPeriodMonths = &months
	}
	return out
}

func (r *CalculateRequest) Validate() error {
	if !r.Principal.IsPositive() {
		return fmt.Errorf("principal must be greater than zero")
	}
	if !r.TermYears.IsPositive() {
		return fmt.Errorf("termYears must be greater than zero")
	}
	switch loan.RateMode(r.RateMode) {
	case loan.RateModeFixed:
	case loan.RateModeVariable:
		if r.FixedPeriodMonths == nil {
			return fmt.Errorf("fixedPeriodMonths is required for variable rate loans")
		}
	default:
		return fmt.Errorf("rateMode must be fixed or variable")
	}
	return nil
}

func (r *CalculateRequest) ToDomain() loan.CalculationRequest {
	out := loan.CalculationRequest{
		Principal: r.Principal.Decimal,
		TermYears: r.TermYears.Decimal,
		RateMode:  loan.RateMode(r.RateMode),
	}
	if out.RateMode == loan.RateModeVariable && r.FixedPeriodMonths != nil {
		out.FixedPeriodMonths = *r.FixedPeriodMonths
	}
	return out
}

type AmortizationRow struct {
	Period             int     `json:"period"`
	StartingBalance    *Amount `json:"startingBalance,omitempty"`
	Payment            Amount  `json:"payment"`
	Interest           *Amount `json:"interest,omitempty"`
	PrincipalComponent *Amount `json:"principalComponent,omitempty"`
	// Principal is accepted as an alias of PrincipalComponent.
	Principal     *Amount `json:"principal,omitempty"`
	EndingBalance *Amount `json:"endingBalance,omitempty"`
}

type CalculateResponse struct {
	RateType          string            `json:"rateType"`
	MonthlyPayment    Amount            `json:"monthlyPayment"`
	TotalPayment      Amount            `json:"totalPayment"`
	TotalInterest     *Amount           `json:"totalInterest,omitempty"`
	AmortizationTable []AmortizationRow `json:"amortizationTable"`
}

func NewCalculateResponse(result *loan.CalculationResult) CalculateResponse {
	interest := NewAmount(result.TotalInterest)
	resp := CalculateResponse{
		RateType:          result.RateType,
		MonthlyPayment:    NewAmount(result.MonthlyPayment),
		TotalPayment:      NewAmount(result.TotalPayment),
		TotalInterest:     &interest,
		AmortizationTable: make([]AmortizationRow, len(result.AmortizationTable)),
	}
	for i, row := range result.AmortizationTable {
		resp.AmortizationTable[i] = AmortizationRow{
			Period:             row.Period,
			StartingBalance:    nullAmount(row.StartingBalance),
			Payment:            NewAmount(row.Payment),
			Interest:           nullAmount(row.Interest),
			PrincipalComponent: nullAmount(row.PrincipalComponent),
			EndingBalance:      nullAmount(row.EndingBalance),
		}
	}
	return resp
}

func (r *CalculateResponse) ToDomain() *loan.CalculationResult {
	result := &loan.CalculationResult{
		RateType:          r.RateType,
		MonthlyPayment:    r.MonthlyPayment.Decimal,
		TotalPayment:      r.TotalPayment.Decimal,
		AmortizationTable: make([]loan.Installment, len(r.AmortizationTable)),
	}
	if r.TotalInterest != nil {
		result.TotalInterest = r.TotalInterest.Decimal
	}
	for i, row := range r.AmortizationTable {
		principal := row.PrincipalComponent
		if principal == nil {
			principal = row.Principal
		}
		result.AmortizationTable[i] = loan.Installment{
			Period:             row.Period,
			Payment:            row.Payment.Decimal,
			PrincipalComponent: toNull(principal),
			Interest:           toNull(row.Interest),
			StartingBalance:    toNull(row.StartingBalance),
			EndingBalance:      toNull(row.EndingBalance),
			Status:             loan.InstallmentPending,
		}
	}
	return result
}

func toNull(a *Amount) decimal.NullDecimal {
	if a == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.Decimal)
}
