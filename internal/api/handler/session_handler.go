package handler

import (
	"fmt"
	"loan-simulator/internal/api/handler/dto"
	"loan-simulator/internal/domain/workflow"
	"loan-simulator/internal/pkg/apperrors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type SessionHandler struct {
	service workflow.WorkflowService
	logger  *slog.Logger
}

func NewSessionHandler(s workflow.WorkflowService, l *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: s,
		logger:  l.With("component", "SessionHandler"),
	}
}

func sessionIDFromURL(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// CreateSession starts a new loan request workflow.
//
// @Summary Start a loan request session
// @Description Creates a workflow session in the form state. Every other endpoint addresses it by the returned sessionId.
// @Tags Sessions
// @Produce json
// @Success 201 {object} dto.SessionResponse "Session created"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CreateSession(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.NewSessionResponse(session))
}

// GetSession renders the current state of a session.
//
// @Summary Get session state
// @Description Returns the state, the request, the calculation result in confirmation and the payment plan once approved.
// @Tags Sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Router /sessions/{sessionID} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), sessionIDFromURL(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewSessionResponse(session))
}

// DeleteSession discards a session and any pending work.
//
// @Summary Discard a session
// @Tags Sessions
// @Param sessionID path string true "Session ID"
// @Success 204 "Session discarded"
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Router /sessions/{sessionID} [delete]
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), sessionIDFromURL(r)); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitRequest validates the loan request and fetches its amortization plan.
//
// @Summary Submit a loan request
// @Description Validates the form and calls the calculation service. On success the session moves to confirmation.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID"
// @Param request body dto.SubmitLoanRequest true "Loan request"
// @Success 200 {object} dto.SessionResponse "Session in confirmation"
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Failure 409 {object} dto.ErrorResponse "Not in form or a submission is in flight"
// @Failure 502 {object} dto.ErrorResponse "Calculation service unavailable"
// @Router /sessions/{sessionID}/request [post]
func (h *SessionHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	session, err := h.service.SubmitRequest(r.Context(), sessionIDFromURL(r), req.ToDomain())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewSessionResponse(session))
}

// ModifyRequest returns to the form keeping the submitted values.
//
// @Summary Modify the request
// @Tags Sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} dto.SessionResponse "Session back in form"
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Failure 409 {object} dto.ErrorResponse "Not in confirmation"
// @Router /sessions/{sessionID}/modify [post]
func (h *SessionHandler) ModifyRequest(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ModifyRequest(r.Context(), sessionIDFromURL(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewSessionResponse(session))
}

// AcceptLoan accepts the calculated plan.
//
// @Summary Accept the loan
// @Description Moves to processing. Approval and the payment plan follow after fixed delays; poll the session to observe them.
// @Tags Sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 202 {object} dto.SessionResponse "Session processing"
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Failure 409 {object} dto.ErrorResponse "Not in confirmation"
// @Router /sessions/{sessionID}/accept [post]
func (h *SessionHandler) AcceptLoan(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.AcceptLoan(r.Context(), sessionIDFromURL(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, dto.NewSessionResponse(session))
}

// PayInstallment pays one installment of the plan.
//
// @Summary Pay an installment
// @Description Installments are paid strictly in order; only the first pending index is accepted.
// @Tags Sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Param index path int true "Zero-based installment index"
// @Success 200 {object} dto.PaymentResponse "Installment paid"
// @Failure 400 {object} dto.ErrorResponse "Malformed index"
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Failure 409 {object} dto.ErrorResponse "Out of order payment or no plan yet"
// @Router /sessions/{sessionID}/installments/{index}/pay [post]
func (h *SessionHandler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: installment index must be an integer", apperrors.ErrInvalidArgument))
		return
	}

	outcome, err := h.service.PayInstallment(r.Context(), sessionIDFromURL(r), index)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewPaymentResponse(outcome))
}

// ResetSession starts the workflow over.
//
// @Summary Restart the workflow
// @Description Returns to an empty form from any state, canceling pending approval and discarding any calculation still in flight.
// @Tags Sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} dto.SessionResponse "Session in form"
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Router /sessions/{sessionID}/reset [post]
func (h *SessionHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ResetSession(r.Context(), sessionIDFromURL(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewSessionResponse(session))
}
