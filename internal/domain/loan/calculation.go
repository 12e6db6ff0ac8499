package loan

import (
	"context"
	"fmt"
	"loan-simulator/internal/pkg/apperrors"
	"time"

	"github.com/shopspring/decimal"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

// CalculationRequest is what the calculation service needs to build a plan.
// FixedPeriodMonths is zero unless RateMode is variable.
type CalculationRequest struct {
	Principal         decimal.Decimal
	TermYears         decimal.Decimal
	RateMode          RateMode
	FixedPeriodMonths int
}

// Calculator is the external amortization service.
type Calculator interface {
	Calculate(ctx context.Context, req CalculationRequest) (*CalculationResult, error)
}

type CalculationResult struct {
	RateType          string
	MonthlyPayment    decimal.Decimal
	TotalPayment      decimal.Decimal
	TotalInterest     decimal.Decimal
	AmortizationTable []Installment
}

// Installment is one row of the amortization table. The calculation service
// may omit the breakdown columns, so they are nullable.
type Installment struct {
	Period             int
	Payment            decimal.Decimal
	PrincipalComponent decimal.NullDecimal
	Interest           decimal.NullDecimal
	StartingBalance    decimal.NullDecimal
	EndingBalance      decimal.NullDecimal
	Status             InstallmentStatus
}

// Clone returns a copy whose amortization table does not share storage with r.
func (r *CalculationResult) Clone() *CalculationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.AmortizationTable = append([]Installment(nil), r.AmortizationTable...)
	return &out
}

// Check rejects tables that cannot back a payment schedule: empty, periods
// not numbered 1..N in order, or negative amounts.
func (r *CalculationResult) Check() error {
	if r == nil || len(r.AmortizationTable) == 0 {
		return fmt.Errorf("%w: amortization table is empty", apperrors.ErrCalculationService)
	}
	for i, row := range r.AmortizationTable {
		if row.Period != i+1 {
			return fmt.Errorf("%w: row %d has period %d, expected %d",
				apperrors.ErrCalculationService, i, row.Period, i+1)
		}
		if row.Payment.IsNegative() {
			return fmt.Errorf("%w: period %d has a negative payment", apperrors.ErrCalculationService, row.Period)
		}
		if row.PrincipalComponent.Valid && row.PrincipalComponent.Decimal.IsNegative() {
			return fmt.Errorf("%w: period %d has a negative principal component", apperrors.ErrCalculationService, row.Period)
		}
	}
	return nil
}

// PaymentDate is the due date of period, counted in months from start and
// falling on paymentDay.
func PaymentDate(start time.Time, period, paymentDay int) time.Time {
	return time.Date(start.Year(), start.Month()+time.Month(period), paymentDay, 0, 0, 0, 0, start.Location())
}
