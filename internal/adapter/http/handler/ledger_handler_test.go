package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/usecase"
	"github.com/iho/payflow/internal/usecase/mocks"
)

func newLedgerHandlerFixture(t *testing.T) (*LedgerHandler, *mocks.MockLedgerRepository) {
	t.Helper()

	ledgerRepo := mocks.NewMockLedgerRepository()
	uc := usecase.NewLedgerUseCase(
		mocks.NewMockTransactionManager(),
		ledgerRepo,
		mocks.NewMockOutboxRepository(),
		mocks.NewMockBalanceCache(),
		mocks.NewMockIDGenerator(),
		zerolog.Nop(),
	)

	return NewLedgerHandler(uc), ledgerRepo
}

func TestLedgerHandler_CheckConsistency_OK(t *testing.T) {
	h, _ := newLedgerHandlerFixture(t)

	rec := httptest.NewRecorder()
	h.CheckConsistency(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/consistency", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["consistent"] != true {
		t.Errorf("expected consistent=true, got %#v", body)
	}
}

func TestLedgerHandler_CheckConsistency_Inconsistent(t *testing.T) {
	h, ledgerRepo := newLedgerHandlerFixture(t)
	ledgerRepo.CheckConsistencyFunc = func(ctx context.Context) (int64, int64, error) {
		return 100, 90, nil
	}

	rec := httptest.NewRecorder()
	h.CheckConsistency(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/consistency", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLedgerHandler_AccountBalance(t *testing.T) {
	h, ledgerRepo := newLedgerHandlerFixture(t)
	ledgerRepo.BalanceForFunc = func(ctx context.Context, accountCode string) (int64, error) {
		if accountCode != "MERCHANT_PAYABLE.seller-1.USD" {
			t.Errorf("unexpected account code %s", accountCode)
		}
		return -10000, nil
	}

	req := withURLParam(
		httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts/MERCHANT_PAYABLE.seller-1.USD/balance", nil),
		"code", "MERCHANT_PAYABLE.seller-1.USD")
	rec := httptest.NewRecorder()
	h.AccountBalance(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["balance"] != float64(-10000) {
		t.Errorf("unexpected balance: %#v", body["balance"])
	}
	if body["approximate"] != false {
		t.Errorf("authoritative read marked approximate: %#v", body)
	}
}

func TestLedgerHandler_AccountBalance_Approx(t *testing.T) {
	ledgerRepo := mocks.NewMockLedgerRepository()
	ledgerRepo.BalanceForFunc = func(ctx context.Context, accountCode string) (int64, error) {
		t.Errorf("approximate read hit the ledger for %s", accountCode)
		return 0, nil
	}

	cache := mocks.NewMockBalanceCache()
	cache.Snapshots["PSP_RECEIVABLE.USD"] = 5000
	cache.Deltas["PSP_RECEIVABLE.USD"] = 250

	uc := usecase.NewLedgerUseCase(
		mocks.NewMockTransactionManager(),
		ledgerRepo,
		mocks.NewMockOutboxRepository(),
		cache,
		mocks.NewMockIDGenerator(),
		zerolog.Nop(),
	)
	h := NewLedgerHandler(uc)

	req := withURLParam(
		httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts/PSP_RECEIVABLE.USD/balance?approx=1", nil),
		"code", "PSP_RECEIVABLE.USD")
	rec := httptest.NewRecorder()
	h.AccountBalance(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["balance"] != float64(5250) {
		t.Errorf("expected snapshot+delta 5250, got %#v", body["balance"])
	}
	if body["approximate"] != true {
		t.Errorf("expected approximate=true, got %#v", body)
	}
}
