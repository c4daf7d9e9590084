package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/payflow/internal/usecase"
)

// LedgerHandler handles ledger-wide operations.
type LedgerHandler struct {
	ledgerUC *usecase.LedgerUseCase
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC *usecase.LedgerUseCase) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC}
}

// CheckConsistency checks that ledger-wide debits equal credits.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	consistent, err := h.ledgerUC.CheckConsistency(r.Context())
	if err != nil {
		if errors.Is(err, usecase.ErrInconsistentLedger) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"status":     "inconsistent",
				"consistent": false,
				"message":    err.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to check consistency", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "consistent",
		"consistent": consistent,
	})
}

// AccountBalance returns the balance for one account code. With ?approx=1
// it is served from the cache (snapshot plus pending deltas) and the
// response marks the figure as approximate.
func (h *LedgerHandler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing account code", "")
		return
	}

	var (
		balance     int64
		approximate bool
		err         error
	)
	if r.URL.Query().Get("approx") == "1" {
		balance, approximate, err = h.ledgerUC.BalanceApprox(r.Context(), code)
	} else {
		balance, err = h.ledgerUC.Balance(r.Context(), code)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_code": code,
		"balance":      balance,
		"approximate":  approximate,
	})
}
