package amortization

import (
	"context"
	"io"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/pkg/apperrors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	rates, err := ParseRates("0.15", "0.12", "0.18")
	require.NoError(t, err)
	return NewEngine(rates, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sumPrincipal(table []loan.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, row := range table {
		total = total.Add(row.PrincipalComponent.Decimal)
	}
	return total
}

func TestPayment(t *testing.T) {
	t.Run("matches the annuity formula", func(t *testing.T) {
		// 50,000 over 36 months at 15% a year.
		got := Payment(decimal.NewFromInt(50000), decimal.RequireFromString("0.0125"), 36)
		assert.Equal(t, "1733.27", got.StringFixed(2))
	})

	t.Run("splits evenly at zero interest", func(t *testing.T) {
		got := Payment(decimal.NewFromInt(1200), decimal.Zero, 12)
		assert.True(t, got.Equal(decimal.NewFromInt(100)))
	})

	t.Run("returns zero without periods", func(t *testing.T) {
		assert.True(t, Payment(decimal.NewFromInt(1200), decimal.Zero, 0).IsZero())
	})
}

func TestEngineCalculateFixed(t *testing.T) {
	engine := testEngine(t)
	principal := decimal.NewFromInt(50000)

	result, err := engine.Calculate(context.Background(), loan.CalculationRequest{
		Principal: principal,
		TermYears: decimal.NewFromInt(3),
		RateMode:  loan.RateModeFixed,
	})
	require.NoError(t, err)
	require.NoError(t, result.Check())

	assert.Len(t, result.AmortizationTable, 36)
	assert.Equal(t, "Fixed rate 15.00%", result.RateType)
	assert.Equal(t, "1733.27", result.MonthlyPayment.StringFixed(2))
	assert.True(t, sumPrincipal(result.AmortizationTable).Equal(principal), "principal components must retire the loan")
	assert.True(t, result.TotalInterest.Equal(result.TotalPayment.Sub(principal)))

	for _, row := range result.AmortizationTable {
		assert.True(t, row.Payment.Equal(row.PrincipalComponent.Decimal.Add(row.Interest.Decimal)), "period %d", row.Period)
		assert.Equal(t, loan.InstallmentPending, row.Status)
	}
}

func TestEngineCalculateVariable(t *testing.T) {
	engine := testEngine(t)
	principal := decimal.NewFromInt(100000)

	result, err := engine.Calculate(context.Background(), loan.CalculationRequest{
		Principal:         principal,
		TermYears:         decimal.NewFromInt(5),
		RateMode:          loan.RateModeVariable,
		FixedPeriodMonths: 24,
	})
	require.NoError(t, err)
	require.Len(t, result.AmortizationTable, 60)

	assert.Equal(t, "Fixed 12.00% for 24 months, then variable 18.00%", result.RateType)
	assert.True(t, result.MonthlyPayment.Equal(result.AmortizationTable[0].Payment))
	assert.True(t, sumPrincipal(result.AmortizationTable).Equal(principal))

	fixedPhase := result.AmortizationTable[23].Payment
	variablePhase := result.AmortizationTable[24].Payment
	assert.True(t, variablePhase.GreaterThan(fixedPhase), "installment rises when the higher rate applies")
}

func TestEngineCalculateRejectsInvalidRequests(t *testing.T) {
	engine := testEngine(t)
	tests := map[string]loan.CalculationRequest{
		"zero principal": {Principal: decimal.Zero, TermYears: decimal.NewFromInt(1), RateMode: loan.RateModeFixed},
		"zero term":      {Principal: decimal.NewFromInt(1000), TermYears: decimal.Zero, RateMode: loan.RateModeFixed},
		"fixed period equals term": {
			Principal: decimal.NewFromInt(1000), TermYears: decimal.NewFromInt(1),
			RateMode: loan.RateModeVariable, FixedPeriodMonths: 12,
		},
		"unknown mode": {Principal: decimal.NewFromInt(1000), TermYears: decimal.NewFromInt(1), RateMode: "floating"},
	}

	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Calculate(context.Background(), req)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		})
	}
}

func TestParseRates(t *testing.T) {
	_, err := ParseRates("abc", "0.1", "0.1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = ParseRates("0.1", "-0.1", "0.1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
