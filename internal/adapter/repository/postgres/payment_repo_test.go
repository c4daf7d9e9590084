package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/payflow/internal/domain"
)

func TestPaymentIntentRepositoryGetByID(t *testing.T) {
	mockPool := newMockPool(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "buyer_id", "order_id", "quantity", "currency",
		"order_lines", "status", "psp_reference", "created_at", "updated_at",
	}).AddRow(
		"pay-1", "buyer-1", "order-1", int64(10000), "USD",
		[]byte(`[{"seller_id":"seller-1","quantity":6000},{"seller_id":"seller-2","quantity":4000}]`),
		string(domain.IntentCreated), "pi_ref", now, now,
	)

	mockPool.ExpectQuery("FROM payment_intents").WithArgs("pay-1").WillReturnRows(rows)

	repo := &PaymentIntentRepository{pool: mockPool}
	intent, err := repo.GetByID(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if intent.Status != domain.IntentCreated {
		t.Fatalf("expected CREATED, got %s", intent.Status)
	}
	if len(intent.OrderLines) != 2 {
		t.Fatalf("expected 2 order lines, got %d", len(intent.OrderLines))
	}
	if intent.OrderLines[0].Amount.Currency != "USD" {
		t.Fatalf("expected line currency from intent, got %s", intent.OrderLines[0].Amount.Currency)
	}
	if intent.ClientSecret != "" {
		t.Fatal("client secret must never come from storage")
	}
}

func TestPaymentIntentRepositoryGetByIDNotFound(t *testing.T) {
	mockPool := newMockPool(t)

	mockPool.ExpectQuery("FROM payment_intents").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	repo := &PaymentIntentRepository{pool: mockPool}
	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestPaymentOrderRepositoryGetByIDNotFound(t *testing.T) {
	mockPool := newMockPool(t)

	mockPool.ExpectQuery("FROM payment_orders").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	repo := &PaymentOrderRepository{pool: mockPool}
	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrPaymentOrderNotFound) {
		t.Fatalf("expected ErrPaymentOrderNotFound, got %v", err)
	}
}

func TestPaymentOrderRepositoryUpdate(t *testing.T) {
	mockPool := newMockPool(t)

	amount, err := domain.NewAmount(6000, "USD")
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	order, err := domain.NewPaymentOrder("po-1", "pay-1", "seller-1", amount, time.Now().UTC())
	if err != nil {
		t.Fatalf("order: %v", err)
	}

	mockPool.ExpectBegin()
	mockPool.ExpectExec("UPDATE payment_orders").
		WithArgs(order.ID, string(order.Status), order.RetryCount, order.RetryReason, order.LastErrorMessage, order.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := &PaymentOrderRepository{pool: mockPool}
	manager := newTxManagerWithPool(mockPool)
	tx, err := manager.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := repo.Update(context.Background(), tx, order); err != nil {
		t.Fatalf("update: %v", err)
	}

	assertExpectations(t, mockPool)
}
