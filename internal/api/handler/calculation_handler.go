package handler

import (
	"fmt"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/pkg/apperrors"
	"loan-simulator/internal/pkg/calcapi"
	"log/slog"
	"net/http"
)

type CalculationHandler struct {
	calculator loan.Calculator
	logger     *slog.Logger
}

func NewCalculationHandler(c loan.Calculator, l *slog.Logger) *CalculationHandler {
	return &CalculationHandler{
		calculator: c,
		logger:     l.With("component", "CalculationHandler"),
	}
}

// Calculate builds an amortization table.
//
// @Summary Calculate an amortization plan
// @Description Fixed loans use the fixed annual rate over the whole term. Variable loans use the initial rate for fixedPeriodMonths and the variable rate afterwards.
// @Tags Calculation
// @Accept json
// @Produce json
// @Param request body calcapi.CalculateRequest true "Calculation request"
// @Success 200 {object} calcapi.CalculateResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid request"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /api/calculate [post]
func (h *CalculationHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calcapi.CalculateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	result, err := h.calculator.Calculate(r.Context(), req.ToDomain())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Amortization plan calculated",
		"rateMode", req.RateMode, "periods", len(result.AmortizationTable))
	respondJSON(w, http.StatusOK, calcapi.NewCalculateResponse(result))
}
