package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/payflow/internal/adapter/http/dto"
	"github.com/iho/payflow/internal/usecase"
)

// PaymentHandler handles payment-related HTTP requests.
type PaymentHandler struct {
	paymentUC *usecase.PaymentUseCase
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentUC *usecase.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{paymentUC: paymentUC}
}

// Create creates a new payment intent. The response is the only place the
// client secret ever appears.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	intent, err := h.paymentUC.CreatePayment(r.Context(), req.ToUseCaseInput())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to create payment", err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, dto.PaymentFromDomain(intent))
}

// Authorize confirms the intent with the processor. A transient processor
// outcome schedules a retry and answers 202; the caller polls the intent.
func (h *PaymentHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payment ID", "")
		return
	}

	intent, err := h.paymentUC.Authorize(r.Context(), id)
	if errors.Is(err, usecase.ErrAuthorizationPending) {
		current, getErr := h.paymentUC.GetPayment(r.Context(), id)
		if getErr != nil {
			writeError(w, mapDomainError(getErr), "failed to load payment", getErr.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, dto.PaymentFromDomain(current))

		return
	}
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to authorize payment", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(intent))
}

// Cancel cancels an intent that has not been authorized yet.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payment ID", "")
		return
	}

	intent, err := h.paymentUC.Cancel(r.Context(), id)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to cancel payment", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(intent))
}

// Get retrieves a payment intent by ID.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payment ID", "")
		return
	}

	intent, err := h.paymentUC.GetPayment(r.Context(), id)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get payment", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(intent))
}

// ListOrders lists the payment orders fanned out under an intent.
func (h *PaymentHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payment ID", "")
		return
	}

	orders, err := h.paymentUC.ListOrders(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list orders", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentOrdersFromDomain(orders))
}

// ClientSecret re-fetches the client secret from the processor.
func (h *PaymentHandler) ClientSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payment ID", "")
		return
	}

	secret, err := h.paymentUC.RetrieveClientSecret(r.Context(), id)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to retrieve client secret", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"client_secret": secret})
}
