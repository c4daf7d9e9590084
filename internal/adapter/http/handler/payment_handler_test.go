package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/adapter/http/dto"
	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/usecase"
	"github.com/iho/payflow/internal/usecase/mocks"
)

type paymentHandlerFixture struct {
	handler    *PaymentHandler
	intentRepo *mocks.MockPaymentIntentRepository
	gateway    *mocks.MockGateway
}

func newPaymentHandlerFixture(t *testing.T) *paymentHandlerFixture {
	t.Helper()

	f := &paymentHandlerFixture{
		intentRepo: mocks.NewMockPaymentIntentRepository(),
		gateway:    mocks.NewMockGateway(),
	}

	uc := usecase.NewPaymentUseCase(
		mocks.NewMockTransactionManager(),
		f.intentRepo,
		mocks.NewMockPaymentOrderRepository(),
		mocks.NewMockOutboxRepository(),
		mocks.NewMockRetryQueue(),
		f.gateway,
		mocks.NewMockIDGenerator(),
		zerolog.Nop(),
		usecase.PaymentConfig{},
	)
	f.handler = NewPaymentHandler(uc)

	return f
}

func createPaymentBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(dto.CreatePaymentRequest{
		BuyerID:  "buyer-1",
		OrderID:  "order-1",
		Quantity: 10000,
		Currency: "USD",
		OrderLines: []dto.OrderLineItem{
			{SellerID: "seller-1", Quantity: 6000},
			{SellerID: "seller-2", Quantity: 4000},
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewBuffer(body)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestPaymentHandler_Create_Success(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(domain.IntentCreated) {
		t.Errorf("expected status CREATED, got %s", resp.Status)
	}
	if resp.ClientSecret == "" {
		t.Error("create response must carry the client secret")
	}
	if resp.Amount.Display != "100.00 USD" {
		t.Errorf("unexpected display amount %s", resp.Amount.Display)
	}
	if len(resp.OrderLines) != 2 {
		t.Errorf("expected 2 order lines, got %d", len(resp.OrderLines))
	}
}

func TestPaymentHandler_Create_InvalidBody(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentHandler_Create_MismatchedLines(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	body, _ := json.Marshal(dto.CreatePaymentRequest{
		BuyerID:  "buyer-1",
		OrderID:  "order-1",
		Quantity: 10000,
		Currency: "USD",
		OrderLines: []dto.OrderLineItem{
			{SellerID: "seller-1", Quantity: 100},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched lines, got %d", rec.Code)
	}
}

func TestPaymentHandler_Get(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	var created dto.PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	getReq := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+created.ID, nil), "id", created.ID)
	getRec := httptest.NewRecorder()
	f.handler.Get(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}

	var fetched dto.PaymentResponse
	if err := json.Unmarshal(getRec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fetched.ID != created.ID {
		t.Errorf("expected id %s, got %s", created.ID, fetched.ID)
	}
	if fetched.ClientSecret != "" {
		t.Error("stored intent must not expose a client secret")
	}
}

func TestPaymentHandler_Get_NotFound(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/missing", nil), "id", "missing")
	rec := httptest.NewRecorder()
	f.handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPaymentHandler_Authorize_Success(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	var created dto.PaymentResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	authReq := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+created.ID+"/authorize", nil), "id", created.ID)
	authRec := httptest.NewRecorder()
	f.handler.Authorize(authRec, authReq)

	if authRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", authRec.Code, authRec.Body.String())
	}

	var resp dto.PaymentResponse
	json.Unmarshal(authRec.Body.Bytes(), &resp)
	if resp.Status != string(domain.IntentAuthorized) {
		t.Errorf("expected status AUTHORIZED, got %s", resp.Status)
	}
}

func TestPaymentHandler_Authorize_TransientAnswers202(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	var created dto.PaymentResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	f.gateway.ConfirmIntentFunc = func(ctx context.Context, idempotencyKey, pspReference string) (domain.GatewayResultCode, error) {
		return domain.GatewayCodeUnavailable, nil
	}

	authReq := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+created.ID+"/authorize", nil), "id", created.ID)
	authRec := httptest.NewRecorder()
	f.handler.Authorize(authRec, authReq)

	if authRec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for transient outcome, got %d", authRec.Code)
	}

	var resp dto.PaymentResponse
	json.Unmarshal(authRec.Body.Bytes(), &resp)
	if resp.Status != string(domain.IntentPendingAuth) {
		t.Errorf("expected status PENDING_AUTH, got %s", resp.Status)
	}
}

func TestPaymentHandler_Cancel_Conflict(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	var created dto.PaymentResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	cancelReq := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+created.ID+"/cancel", nil), "id", created.ID)
	cancelRec := httptest.NewRecorder()
	f.handler.Cancel(cancelRec, cancelReq)
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", cancelRec.Code)
	}

	// Cancelling again is an illegal transition.
	againRec := httptest.NewRecorder()
	f.handler.Cancel(againRec, withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+created.ID+"/cancel", nil), "id", created.ID))
	if againRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double cancel, got %d", againRec.Code)
	}
}

func TestPaymentHandler_ListOrders_Empty(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/pay-1/orders", nil), "id", "pay-1")
	rec := httptest.NewRecorder()
	f.handler.ListOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("expected empty array, got %q", got)
	}
}

func TestPaymentHandler_ClientSecret(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	now := time.Now().UTC()
	total, _ := domain.NewAmount(5000, "USD")
	intent, err := domain.NewPaymentIntent("pay-1", "buyer-1", "order-1", total,
		[]domain.OrderLine{{SellerID: "seller-1", Amount: total}}, now)
	if err != nil {
		t.Fatalf("build intent: %v", err)
	}
	intent.PSPReference = "pi_ref"
	f.intentRepo.Create(context.Background(), nil, intent)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/pay-1/client-secret", nil), "id", "pay-1")
	rec := httptest.NewRecorder()
	f.handler.ClientSecret(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["client_secret"] == "" {
		t.Error("expected a client secret in the response")
	}
}
