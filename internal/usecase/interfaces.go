package usecase

import (
	"context"
	"time"

	"github.com/iho/payflow/internal/domain"
)

// LedgerRepository defines the atomic storage primitives the posting engine
// runs on. All three insert methods operate inside the caller's transaction.
type LedgerRepository interface {
	// InsertJournal inserts a journal row keyed by its business id.
	// Returns false with no error when the id already exists.
	InsertJournal(ctx context.Context, tx Transaction, journal domain.JournalEntry) (bool, error)
	// InsertLedgerEntry inserts the ledger entry row and returns the
	// storage-assigned ledger entry id.
	InsertLedgerEntry(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) (int64, error)
	InsertPostings(ctx context.Context, tx Transaction, journalID string, postings []domain.Posting) error
	// CheckConsistency returns the ledger-wide debit and credit totals.
	CheckConsistency(ctx context.Context) (totalDebits, totalCredits int64, err error)
	// BalanceFor returns the account's debits-minus-credits over all
	// durable postings.
	BalanceFor(ctx context.Context, accountCode string) (int64, error)
}

// PaymentIntentRepository defines data access for payment intents. The
// transient client secret is never written by any implementation.
type PaymentIntentRepository interface {
	Create(ctx context.Context, tx Transaction, intent *domain.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.PaymentIntent, error)
	Update(ctx context.Context, tx Transaction, intent *domain.PaymentIntent) error
}

// PaymentOrderRepository defines data access for payment orders.
type PaymentOrderRepository interface {
	CreateBatch(ctx context.Context, tx Transaction, orders []*domain.PaymentOrder) error
	GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.PaymentOrder, error)
	ListByPayment(ctx context.Context, paymentID string) ([]*domain.PaymentOrder, error)
	Update(ctx context.Context, tx Transaction, order *domain.PaymentOrder) error
}

// OutboxRepository defines data access for outbox events. Save and SaveAll
// run inside the transaction that produced the domain change; the dispatch
// methods run outside any caller transaction.
type OutboxRepository interface {
	Save(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	SaveAll(ctx context.Context, tx Transaction, events []*domain.OutboxEvent) error
	// FindBatchForDispatch atomically claims up to batchSize NEW rows for
	// workerID so concurrent dispatchers never grab the same row.
	FindBatchForDispatch(ctx context.Context, batchSize int, workerID string) ([]*domain.OutboxEvent, error)
	// UpdateAll marks the given events SENT.
	UpdateAll(ctx context.Context, events []*domain.OutboxEvent) error
	// ReclaimStuckClaims releases PROCESSING rows claimed longer ago than
	// olderThan, returning how many were released.
	ReclaimStuckClaims(ctx context.Context, olderThan time.Duration) (int, error)
}

// RetryQueue is the delayed-retry protocol over a sorted-set store.
type RetryQueue interface {
	ScheduleRetry(ctx context.Context, item domain.RetryItem, backoff time.Duration) error
	// PollDueRetriesToInflight atomically claims up to maxBatch due items.
	// A claimed item is visible to exactly one caller until removed or
	// reclaimed.
	PollDueRetriesToInflight(ctx context.Context, maxBatch int) ([]domain.RetryItem, error)
	RemoveFromInflight(ctx context.Context, item domain.RetryItem) error
	// ReclaimInflight re-queues inflight items older than olderThan,
	// returning how many were moved back to pending.
	ReclaimInflight(ctx context.Context, olderThan time.Duration) (int, error)
}

// RetryCounter tracks per-aggregate retry counts. Advisory only; the
// authoritative count lives on the payment order row.
type RetryCounter interface {
	Get(ctx context.Context, aggregateID string) (int, error)
	Increment(ctx context.Context, aggregateID string) (int, error)
	Reset(ctx context.Context, aggregateID string) error
}

// BalanceCache caches incremental account-balance deltas so reads can serve
// snapshot+delta without touching the ledger tables. Never a source of
// truth.
type BalanceCache interface {
	ApplyDelta(ctx context.Context, accountCode string, delta int64) error
	GetDelta(ctx context.Context, accountCode string) (int64, error)
	// SetSnapshot stores an authoritative balance; approximate reads serve
	// it plus whatever delta accumulates afterwards.
	SetSnapshot(ctx context.Context, accountCode string, balance int64) error
	// GetSnapshot reports the stored balance and whether one is cached.
	GetSnapshot(ctx context.Context, accountCode string) (int64, bool, error)
	Invalidate(ctx context.Context, accountCode string) error
}

// GatewayIntent is the processor's answer to intent creation.
type GatewayIntent struct {
	PSPReference string
	ClientSecret string
}

// Gateway is the external payment processor port. Every mutating call takes
// an idempotency key so processor-side retries never double-charge.
type Gateway interface {
	CreateIntent(ctx context.Context, idempotencyKey string, intent *domain.PaymentIntent) (GatewayIntent, error)
	ConfirmIntent(ctx context.Context, idempotencyKey, pspReference string) (domain.GatewayResultCode, error)
	Capture(ctx context.Context, idempotencyKey, pspReference string, amount domain.Amount) (domain.GatewayResultCode, error)
	RetrieveClientSecret(ctx context.Context, pspReference string) (string, error)
}

// Publisher publishes envelopes to the message broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, envelope domain.Envelope) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdempotencyStore guards duplicate client submissions at the API edge.
type IdempotencyStore interface {
	// TryInsertPending claims the key for this request hash. Returns
	// false when the key is already taken.
	TryInsertPending(ctx context.Context, key, requestHash string, ttl time.Duration) (bool, error)
	FindByKey(ctx context.Context, key string) ([]byte, error)
	UpdateResponsePayload(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a still-pending claim so the client can retry after
	// a failed first attempt. A recorded response is left alone.
	Release(ctx context.Context, key string) error
}
