package amortization

import (
	"context"
	"fmt"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/pkg/apperrors"
	"log/slog"

	"github.com/shopspring/decimal"
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// Rates are annual rates expressed as fractions (0.15 is 15%).
type Rates struct {
	Fixed    decimal.Decimal
	Initial  decimal.Decimal
	Variable decimal.Decimal
}

func ParseRates(fixed, initial, variable string) (Rates, error) {
	var r Rates
	var err error
	if r.Fixed, err = decimal.NewFromString(fixed); err != nil {
		return Rates{}, fmt.Errorf("%w: fixed rate %q: %v", apperrors.ErrInvalidArgument, fixed, err)
	}
	if r.Initial, err = decimal.NewFromString(initial); err != nil {
		return Rates{}, fmt.Errorf("%w: initial rate %q: %v", apperrors.ErrInvalidArgument, initial, err)
	}
	if r.Variable, err = decimal.NewFromString(variable); err != nil {
		return Rates{}, fmt.Errorf("%w: variable rate %q: %v", apperrors.ErrInvalidArgument, variable, err)
	}
	if r.Fixed.IsNegative() || r.Initial.IsNegative() || r.Variable.IsNegative() {
		return Rates{}, fmt.Errorf("%w: rates must not be negative", apperrors.ErrInvalidArgument)
	}
	return r, nil
}

// Engine builds French-annuity amortization tables. Variable loans pay the
// initial rate during the fixed period and the variable rate afterwards, with
// the installment recomputed over the remaining months at the switch.
type Engine struct {
	rates  Rates
	logger *slog.Logger
}

var _ loan.Calculator = (*Engine)(nil)

func NewEngine(rates Rates, logger *slog.Logger) *Engine {
	return &Engine{rates: rates, logger: logger.With("component", "AmortizationEngine")}
}

type phase struct {
	annualRate decimal.Decimal
	periods    int
}

func (e *Engine) Calculate(ctx context.Context, req loan.CalculationRequest) (*loan.CalculationResult, error) {
	if !req.Principal.IsPositive() || !req.TermYears.IsPositive() {
		return nil, fmt.Errorf("%w: principal and term must be greater than zero", apperrors.ErrInvalidArgument)
	}
	months := int(req.TermYears.Mul(twelve).IntPart())
	if months < 1 {
		return nil, fmt.Errorf("%w: term must cover at least one month", apperrors.ErrInvalidArgument)
	}

	var phases []phase
	var rateType string
	switch req.RateMode {
	case loan.RateModeFixed:
		phases = []phase{{annualRate: e.rates.Fixed, periods: months}}
		rateType = fmt.Sprintf("Fixed rate %s%%", percent(e.rates.Fixed))
	case loan.RateModeVariable:
		if req.FixedPeriodMonths <= 0 || req.FixedPeriodMonths >= months {
			return nil, fmt.Errorf("%w: fixed period must be between 1 and %d months", apperrors.ErrInvalidArgument, months-1)
		}
		phases = []phase{
			{annualRate: e.rates.Initial, periods: req.FixedPeriodMonths},
			{annualRate: e.rates.Variable, periods: months - req.FixedPeriodMonths},
		}
		rateType = fmt.Sprintf("Fixed %s%% for %d months, then variable %s%%",
			percent(e.rates.Initial), req.FixedPeriodMonths, percent(e.rates.Variable))
	default:
		return nil, fmt.Errorf("%w: unknown rate mode %q", apperrors.ErrInvalidArgument, req.RateMode)
	}

	table := build(req.Principal, months, phases)

	total := decimal.Zero
	for _, row := range table {
		total = total.Add(row.Payment)
	}

	e.logger.DebugContext(ctx, "Amortization table built",
		"rateMode", req.RateMode, "periods", months, "totalPayment", total.StringFixed(2))

	return &loan.CalculationResult{
		RateType:          rateType,
		MonthlyPayment:    table[0].Payment,
		TotalPayment:      total,
		TotalInterest:     total.Sub(req.Principal),
		AmortizationTable: table,
	}, nil
}

func build(principal decimal.Decimal, months int, phases []phase) []loan.Installment {
	table := make([]loan.Installment, 0, months)
	balance := principal
	period := 0

	for _, ph := range phases {
		rate := ph.annualRate.Div(twelve)
		// The installment is sized to retire the outstanding balance over
		// every remaining month, not just this phase.
		payment := Payment(balance, rate, months-period)

		for k := 0; k < ph.periods; k++ {
			period++
			starting := balance
			interest := balance.Mul(rate).Round(2)
			principalPart := payment.Sub(interest)
			if period == months || principalPart.GreaterThan(balance) {
				principalPart = balance
			}
			balance = balance.Sub(principalPart)

			table = append(table, loan.Installment{
				Period:             period,
				Payment:            principalPart.Add(interest),
				PrincipalComponent: decimal.NewNullDecimal(principalPart),
				Interest:           decimal.NewNullDecimal(interest),
				StartingBalance:    decimal.NewNullDecimal(starting),
				EndingBalance:      decimal.NewNullDecimal(balance),
				Status:             loan.InstallmentPending,
			})
		}
	}
	return table
}

// Payment is the level monthly installment retiring principal over n periods
// at monthly rate i, rounded to cents.
func Payment(principal, i decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	if i.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(n))).Round(2)
	}
	factor := decimal.NewFromInt(1).Add(i).Pow(decimal.NewFromInt(int64(n)))
	return principal.Mul(i).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))).Round(2)
}

func percent(rate decimal.Decimal) string {
	return rate.Mul(hundred).StringFixed(2)
}
