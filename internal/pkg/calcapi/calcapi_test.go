package calcapi

import (
	"encoding/json"
	"loan-simulator/internal/domain/loan"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountJSON(t *testing.T) {
	t.Run("should marshal as a bare number", func(t *testing.T) {
		b, err := json.Marshal(struct {
			V Amount `json:"v"`
		}{V: NewAmount(decimal.RequireFromString("1733.27"))})
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1733.27}`, string(b))
	})

	t.Run("should read numbers and quoted strings", func(t *testing.T) {
		var a, b Amount
		require.NoError(t, json.Unmarshal([]byte(`50000`), &a))
		require.NoError(t, json.Unmarshal([]byte(`"50000.50"`), &b))
		assert.True(t, a.Equal(decimal.NewFromInt(50000)))
		assert.True(t, b.Equal(decimal.RequireFromString("50000.50")))
	})
}

func TestCalculateRequest(t *testing.T) {
	t.Run("should omit the fixed period for fixed loans", func(t *testing.T) {
		req := NewCalculateRequest(loan.CalculationRequest{
			Principal: decimal.NewFromInt(50000),
			TermYears: decimal.NewFromInt(3),
			RateMode:  loan.RateModeFixed,
		})
		b, err := json.Marshal(req)
		require.NoError(t, err)
		assert.JSONEq(t, `{"principal":50000,"termYears":3,"rateMode":"fixed"}`, string(b))
	})

	t.Run("should carry the fixed period for variable loans", func(t *testing.T) {
		req := NewCalculateRequest(loan.CalculationRequest{
			Principal:         decimal.NewFromInt(50000),
			TermYears:         decimal.NewFromInt(3),
			RateMode:          loan.RateModeVariable,
			FixedPeriodMonths: 12,
		})
		require.NotNil(t, req.FixedPeriodMonths)
		assert.Equal(t, 12, *req.FixedPeriodMonths)
		assert.NoError(t, req.Validate())
		assert.Equal(t, 12, req.ToDomain().FixedPeriodMonths)
	})

	t.Run("should reject invalid bodies", func(t *testing.T) {
		months := 12
		for name, req := range map[string]CalculateRequest{
			"zero principal":   {Principal: NewAmount(decimal.Zero), TermYears: NewAmount(decimal.NewFromInt(1)), RateMode: "fixed"},
			"zero term":        {Principal: NewAmount(decimal.NewFromInt(1)), TermYears: NewAmount(decimal.Zero), RateMode: "fixed"},
			"unknown mode":     {Principal: NewAmount(decimal.NewFromInt(1)), TermYears: NewAmount(decimal.NewFromInt(1)), RateMode: "x", FixedPeriodMonths: &months},
			"variable no term": {Principal: NewAmount(decimal.NewFromInt(1)), TermYears: NewAmount(decimal.NewFromInt(1)), RateMode: "variable"},
		} {
			assert.Error(t, req.Validate(), name)
		}
	})
}

func TestCalculateResponseToDomain(t *testing.T) {
	body := `{
		"rateType": "Fixed rate 15.00%",
		"monthlyPayment": 550,
		"totalPayment": 1100,
		"amortizationTable": [
			{"period": 1, "payment": 550, "principalComponent": 500, "interest": 50},
			{"period": 2, "payment": 550, "principal": 500}
		]
	}`
	var resp CalculateResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	result := resp.ToDomain()
	require.Len(t, result.AmortizationTable, 2)
	assert.True(t, result.TotalInterest.IsZero())
	assert.True(t, result.AmortizationTable[0].PrincipalComponent.Valid)
	assert.True(t, result.AmortizationTable[1].PrincipalComponent.Decimal.Equal(decimal.NewFromInt(500)), "principal is an alias")
	assert.False(t, result.AmortizationTable[1].Interest.Valid)
	assert.NoError(t, result.Check())
}
