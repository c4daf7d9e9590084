package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/usecase"
)

// PaymentOrderRepository implements usecase.PaymentOrderRepository.
type PaymentOrderRepository struct {
	pool poolDB
}

// NewPaymentOrderRepository creates a new PaymentOrderRepository.
func NewPaymentOrderRepository(pool *pgxpool.Pool) *PaymentOrderRepository {
	return &PaymentOrderRepository{pool: pool}
}

// CreateBatch inserts the orders of one authorized payment in a single
// batch, within the transaction that authorized the payment.
func (r *PaymentOrderRepository) CreateBatch(ctx context.Context, tx usecase.Transaction, orders []*domain.PaymentOrder) error {
	batch := &pgx.Batch{}
	for _, order := range orders {
		batch.Queue(`
			INSERT INTO payment_orders (id, payment_id, seller_id, quantity, currency, status, retry_count, retry_reason, last_error, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			order.ID, order.PaymentID, order.SellerID,
			order.Amount.Quantity, order.Amount.Currency,
			string(order.Status), order.RetryCount, order.RetryReason, order.LastErrorMessage,
			order.CreatedAt, order.UpdatedAt,
		)
	}

	results := pgxTxOf(tx).SendBatch(ctx, batch)
	defer results.Close()

	for range orders {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return results.Close()
}

// GetByID retrieves an order by id.
func (r *PaymentOrderRepository) GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves an order by id with a row lock. Capture
// transitions for one order are serialized on this lock.
func (r *PaymentOrderRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentOrder, error) {
	return scanOrder(pgxTxOf(tx).QueryRow(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, id))
}

// ListByPayment lists the orders under one payment, oldest first.
func (r *PaymentOrderRepository) ListByPayment(ctx context.Context, paymentID string) ([]*domain.PaymentOrder, error) {
	rows, err := r.pool.Query(ctx, selectOrder+` WHERE payment_id = $1 ORDER BY created_at, id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.PaymentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// Update persists the mutable order fields within a transaction.
func (r *PaymentOrderRepository) Update(ctx context.Context, tx usecase.Transaction, order *domain.PaymentOrder) error {
	_, err := pgxTxOf(tx).Exec(ctx, `
		UPDATE payment_orders
		SET status = $2, retry_count = $3, retry_reason = $4, last_error = $5, updated_at = $6
		WHERE id = $1`,
		order.ID, string(order.Status), order.RetryCount, order.RetryReason, order.LastErrorMessage, order.UpdatedAt,
	)

	return err
}

const selectOrder = `
	SELECT id, payment_id, seller_id, quantity, currency, status, retry_count, retry_reason, last_error, created_at, updated_at
	FROM payment_orders`

func scanOrder(row pgx.Row) (*domain.PaymentOrder, error) {
	var (
		order  domain.PaymentOrder
		status string
	)

	err := row.Scan(
		&order.ID, &order.PaymentID, &order.SellerID,
		&order.Amount.Quantity, &order.Amount.Currency,
		&status, &order.RetryCount, &order.RetryReason, &order.LastErrorMessage,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentOrderNotFound
		}
		return nil, err
	}

	order.Status = domain.PaymentOrderStatus(status)

	return &order, nil
}
