package loan

import (
	"fmt"
	"loan-simulator/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// BalanceBasis names the quantity the remaining balance is seeded from and
// decremented by. It never changes for the life of a schedule.
type BalanceBasis string

const (
	// BasisPrincipal seeds from the requested principal and subtracts each
	// installment's principal component.
	BasisPrincipal BalanceBasis = "principal"
	// BasisTotalPayment seeds from the total payment and subtracts each
	// installment's full payment.
	BasisTotalPayment BalanceBasis = "totalPayment"
)

type OutOfOrderPaymentError struct {
	Requested   int
	Expected    int
	FullyRepaid bool
}

func (e *OutOfOrderPaymentError) Error() string {
	if e.FullyRepaid {
		return fmt.Sprintf("%s: installment %d cannot be paid, schedule is fully repaid", apperrors.ErrOutOfOrderPayment, e.Requested)
	}
	return fmt.Sprintf("%s: requested installment %d, next payable is %d", apperrors.ErrOutOfOrderPayment, e.Requested, e.Expected)
}

func (e *OutOfOrderPaymentError) Unwrap() error {
	return apperrors.ErrOutOfOrderPayment
}

// PaymentSchedule is an immutable value: RecordPayment returns a new schedule
// and leaves the receiver untouched.
type PaymentSchedule struct {
	installments []Installment
	seed         decimal.Decimal
	remaining    decimal.Decimal
	basis        BalanceBasis
}

// NewPaymentSchedule copies the amortization table of result. Every copied
// installment starts pending whatever status the source carried.
func NewPaymentSchedule(result *CalculationResult, principal decimal.Decimal) (PaymentSchedule, error) {
	if err := result.Check(); err != nil {
		return PaymentSchedule{}, err
	}

	basis := BasisPrincipal
	for _, row := range result.AmortizationTable {
		if !row.PrincipalComponent.Valid {
			basis = BasisTotalPayment
			break
		}
	}

	seed := principal
	if basis == BasisTotalPayment {
		seed = result.TotalPayment
	}

	installments := make([]Installment, len(result.AmortizationTable))
	for i, row := range result.AmortizationTable {
		installments[i] = row
		installments[i].Status = InstallmentPending
	}

	return PaymentSchedule{
		installments: installments,
		seed:         seed,
		remaining:    seed,
		basis:        basis,
	}, nil
}

func (s PaymentSchedule) Len() int {
	return len(s.installments)
}

func (s PaymentSchedule) Basis() BalanceBasis {
	return s.basis
}

func (s PaymentSchedule) InitialBalance() decimal.Decimal {
	return s.seed
}

func (s PaymentSchedule) RemainingBalance() decimal.Decimal {
	return s.remaining
}

// Installments returns a copy of the installment list.
func (s PaymentSchedule) Installments() []Installment {
	out := make([]Installment, len(s.installments))
	copy(out, s.installments)
	return out
}

// FirstPendingIndex returns the position of the lowest-period pending
// installment, or false when every installment is paid.
func (s PaymentSchedule) FirstPendingIndex() (int, bool) {
	for i, inst := range s.installments {
		if inst.Status == InstallmentPending {
			return i, true
		}
	}
	return -1, false
}

func (s PaymentSchedule) PaidCount() int {
	// Paid installments form a prefix.
	if idx, ok := s.FirstPendingIndex(); ok {
		return idx
	}
	return len(s.installments)
}

func (s PaymentSchedule) IsFullyRepaid() bool {
	_, pending := s.FirstPendingIndex()
	return len(s.installments) > 0 && !pending
}

// PaidTotal sums the payments of every paid installment.
func (s PaymentSchedule) PaidTotal() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range s.installments[:s.PaidCount()] {
		total = total.Add(inst.Payment)
	}
	return total
}

// Contribution is the amount paying inst takes off the remaining balance.
func (s PaymentSchedule) Contribution(inst Installment) decimal.Decimal {
	if s.basis == BasisPrincipal {
		return inst.PrincipalComponent.Decimal
	}
	return inst.Payment
}

// RecordPayment marks the installment at index as paid. index must be the
// first pending position, otherwise an *OutOfOrderPaymentError is returned
// and nothing changes.
func (s PaymentSchedule) RecordPayment(index int) (PaymentSchedule, Installment, error) {
	first, ok := s.FirstPendingIndex()
	if !ok {
		return s, Installment{}, &OutOfOrderPaymentError{Requested: index, Expected: -1, FullyRepaid: true}
	}
	if index != first {
		return s, Installment{}, &OutOfOrderPaymentError{Requested: index, Expected: first}
	}

	next := PaymentSchedule{
		installments: s.Installments(),
		seed:         s.seed,
		basis:        s.basis,
	}
	paid := next.installments[index]
	paid.Status = InstallmentPaid
	next.installments[index] = paid
	next.remaining = s.remaining.Sub(s.Contribution(paid))

	return next, paid, nil
}
