package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/usecase"
)

// PaymentIntentRepository implements usecase.PaymentIntentRepository.
// The client secret is deliberately absent from the column list.
type PaymentIntentRepository struct {
	pool poolDB
}

// NewPaymentIntentRepository creates a new PaymentIntentRepository.
func NewPaymentIntentRepository(pool *pgxpool.Pool) *PaymentIntentRepository {
	return &PaymentIntentRepository{pool: pool}
}

// orderLineRecord is the JSONB form of one order line.
type orderLineRecord struct {
	SellerID string `json:"seller_id"`
	Quantity int64  `json:"quantity"`
}

// Create inserts a new intent within a transaction.
func (r *PaymentIntentRepository) Create(ctx context.Context, tx usecase.Transaction, intent *domain.PaymentIntent) error {
	lines, err := marshalOrderLines(intent.OrderLines)
	if err != nil {
		return err
	}

	_, err = pgxTxOf(tx).Exec(ctx, `
		INSERT INTO payment_intents (id, buyer_id, order_id, quantity, currency, order_lines, status, psp_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		intent.ID, intent.BuyerID, intent.OrderID,
		intent.TotalAmount.Quantity, intent.TotalAmount.Currency,
		lines, string(intent.Status), intent.PSPReference,
		intent.CreatedAt, intent.UpdatedAt,
	)

	return err
}

// GetByID retrieves an intent by id.
func (r *PaymentIntentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	return scanIntent(r.pool.QueryRow(ctx, selectIntent+` WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves an intent by id with a row lock, serializing
// concurrent transitions on the same intent.
func (r *PaymentIntentRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentIntent, error) {
	return scanIntent(pgxTxOf(tx).QueryRow(ctx, selectIntent+` WHERE id = $1 FOR UPDATE`, id))
}

// Update persists the mutable intent fields within a transaction.
func (r *PaymentIntentRepository) Update(ctx context.Context, tx usecase.Transaction, intent *domain.PaymentIntent) error {
	_, err := pgxTxOf(tx).Exec(ctx, `
		UPDATE payment_intents
		SET status = $2, psp_reference = $3, updated_at = $4
		WHERE id = $1`,
		intent.ID, string(intent.Status), intent.PSPReference, intent.UpdatedAt,
	)

	return err
}

const selectIntent = `
	SELECT id, buyer_id, order_id, quantity, currency, order_lines, status, psp_reference, created_at, updated_at
	FROM payment_intents`

func scanIntent(row pgx.Row) (*domain.PaymentIntent, error) {
	var (
		intent   domain.PaymentIntent
		status   string
		rawLines []byte
	)

	err := row.Scan(
		&intent.ID, &intent.BuyerID, &intent.OrderID,
		&intent.TotalAmount.Quantity, &intent.TotalAmount.Currency,
		&rawLines, &status, &intent.PSPReference,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	intent.Status = domain.PaymentIntentStatus(status)

	var records []orderLineRecord
	if err := json.Unmarshal(rawLines, &records); err != nil {
		return nil, err
	}
	for _, rec := range records {
		intent.OrderLines = append(intent.OrderLines, domain.OrderLine{
			SellerID: rec.SellerID,
			Amount:   domain.Amount{Quantity: rec.Quantity, Currency: intent.TotalAmount.Currency},
		})
	}

	return &intent, nil
}

func marshalOrderLines(lines []domain.OrderLine) ([]byte, error) {
	records := make([]orderLineRecord, 0, len(lines))
	for _, line := range lines {
		records = append(records, orderLineRecord{SellerID: line.SellerID, Quantity: line.Amount.Quantity})
	}

	return json.Marshal(records)
}
