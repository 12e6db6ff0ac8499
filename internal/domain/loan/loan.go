package loan

import (
	"errors"
	"fmt"
	"loan-simulator/internal/pkg/apperrors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type RateMode string

const (
	RateModeFixed    RateMode = "fixed"
	RateModeVariable RateMode = "variable"
)

const (
	MinAccountDigits = 10
	MaxAccountDigits = 18
	MinPaymentDay    = 1
	MaxPaymentDay    = 28
)

const (
	msgRequiredFields = "all fields are required"
	msgAccountNumber  = "account number must have between 10 and 18 digits"
	msgPrincipal      = "principal must be greater than zero"
	msgTermYears      = "term must be greater than zero"
	msgPaymentDay     = "payment day must be between 1 and 28"
	msgRateMode       = "rate mode must be fixed or variable"
	msgFixedPeriod    = "fixed period must be greater than zero and shorter than the loan term"
)

// LoanRequest is the user's input. It is not modified once submitted.
type LoanRequest struct {
	HolderName        string          `json:"holderName" validate:"required"`
	AccountNumber     string          `json:"accountNumber" validate:"required,number,min=10,max=18"`
	Principal         decimal.Decimal `json:"principal" validate:"required,gt=0"`
	TermYears         decimal.Decimal `json:"termYears" validate:"required,gt=0"`
	PaymentDay        int             `json:"paymentDay" validate:"required,min=1,max=28"`
	RateMode          RateMode        `json:"rateMode" validate:"required,oneof=fixed variable"`
	FixedPeriodMonths int             `json:"fixedPeriodMonths"`
}

// TermLimits bounds the accepted loan term in years.
type TermLimits struct {
	MinYears decimal.Decimal
	MaxYears decimal.Decimal
}

func DefaultTermLimits() TermLimits {
	return TermLimits{MinYears: decimal.NewFromInt(1), MaxYears: decimal.NewFromInt(10)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims surrounding whitespace from the text fields.
func (r LoanRequest) Normalize() LoanRequest {
	r.HolderName = strings.TrimSpace(r.HolderName)
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
	r.RateMode = RateMode(strings.ToLower(strings.TrimSpace(string(r.RateMode))))
	if r.RateMode != RateModeVariable {
		r.FixedPeriodMonths = 0
	}
	return r
}

// TermMonths is the number of monthly periods covered by the term.
func (r LoanRequest) TermMonths() int {
	return int(r.TermYears.Mul(decimal.NewFromInt(12)).IntPart())
}

// Validate checks every precondition for requesting a calculation. The
// returned error wraps apperrors.ErrValidation and carries the offending field.
func (r LoanRequest) Validate(limits TermLimits) error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return translate(fieldErrs)
		}
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	if r.TermYears.LessThan(limits.MinYears) || r.TermYears.GreaterThan(limits.MaxYears) {
		return apperrors.NewValidationError("termYears",
			fmt.Sprintf("term must be between %s and %s years", limits.MinYears, limits.MaxYears))
	}

	if r.RateMode == RateModeVariable {
		// Compared against whole months, the same count the table is built from.
		if r.FixedPeriodMonths <= 0 || r.FixedPeriodMonths >= r.TermMonths() {
			return apperrors.NewValidationError("fixedPeriodMonths", msgFixedPeriod)
		}
	}

	return nil
}

func translate(fieldErrs validator.ValidationErrors) error {
	// Missing fields are reported before malformed ones.
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return apperrors.NewValidationError(fe.Field(), msgRequiredFields)
		}
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "accountNumber":
		return apperrors.NewValidationError(fe.Field(), msgAccountNumber)
	case "principal":
		return apperrors.NewValidationError(fe.Field(), msgPrincipal)
	case "termYears":
		return apperrors.NewValidationError(fe.Field(), msgTermYears)
	case "paymentDay":
		return apperrors.NewValidationError(fe.Field(), msgPaymentDay)
	case "rateMode":
		return apperrors.NewValidationError(fe.Field(), msgRateMode)
	default:
		return apperrors.NewValidationError(fe.Field(), fmt.Sprintf("failed on '%s'", fe.Tag()))
	}
}

// CalculationRequest builds the outbound request. The fixed period is only
// sent for variable-rate loans.
func (r LoanRequest) CalculationRequest() CalculationRequest {
	req := CalculationRequest{
		Principal: r.Principal,
		TermYears: r.TermYears,
		RateMode:  r.RateMode,
	}
	if r.RateMode == RateModeVariable {
		req.FixedPeriodMonths = r.FixedPeriodMonths
	}
	return req
}
