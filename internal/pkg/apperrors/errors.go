package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("resource not found")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrValidation = errors.New("validation failed")

	ErrCalculationService = errors.New("could not reach calculation service")

	ErrOutOfOrderPayment = errors.New("installments must be paid in order")

	ErrInvalidTransition = errors.New("operation not allowed in current state")

	ErrSubmissionInFlight = errors.New("a calculation request is already in progress")

	ErrStaleCalculation = errors.New("calculation result discarded, workflow was restarted")
)

type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func NewValidationError(field, message string) error {
	return fmt.Errorf("%w: %w", ErrValidation, &ValidationError{Field: field, Message: message})
}

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WrapCalculationError hides the transport detail behind the single user-facing
// calculation failure while keeping the cause for logs.
func WrapCalculationError(cause error) error {
	return &AppError{
		Code:    "CALCULATION_UNAVAILABLE",
		Message: ErrCalculationService.Error(),
		Cause:   fmt.Errorf("%w: %w", ErrCalculationService, cause),
	}
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, ErrCalculationService):
		return ErrCalculationService.Error()
	case errors.Is(err, ErrOutOfOrderPayment):
		return ErrOutOfOrderPayment.Error()
	default:
		return err.Error()
	}
}
