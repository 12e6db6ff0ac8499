package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"loan-simulator/internal/api/handler/dto"
	"loan-simulator/internal/pkg/apperrors"
	"log/slog"
	"net/http"
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code, message, field := http.StatusInternalServerError, "", "An unexpected error occurred.", ""
	var validationError *apperrors.ValidationError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "Resource not found."
	case errors.As(err, &validationError):
		status, code, message, field = http.StatusBadRequest, "VALIDATION_FAILED", validationError.Message, validationError.Field
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status, code, message = http.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case errors.Is(err, apperrors.ErrOutOfOrderPayment):
		status, code, message = http.StatusConflict, "OUT_OF_ORDER_PAYMENT", err.Error()
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status, code, message = http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, apperrors.ErrSubmissionInFlight):
		status, code, message = http.StatusConflict, "SUBMISSION_IN_FLIGHT", err.Error()
	case errors.Is(err, apperrors.ErrStaleCalculation):
		status, code, message = http.StatusConflict, "STALE_CALCULATION", err.Error()
	case errors.Is(err, apperrors.ErrCalculationService):
		status, code, message = http.StatusBadGateway, "CALCULATION_UNAVAILABLE", apperrors.ErrCalculationService.Error()
	case errors.As(err, &appErr):
		code, message = appErr.Code, appErr.Message
		logger.Error("Application error", "error", err)
	default:
		logger.Error("Unhandled internal error", "error", err)
	}

	resp := dto.ErrorResponse{
		Error: dto.ErrorDetail{
			Code:    code,
			Message: message,
			Field:   field,
		},
	}
	respondJSON(w, status, resp)
}

// Health reports liveness.
//
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Router /health [get]
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}
