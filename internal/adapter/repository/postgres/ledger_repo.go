package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository over three tables:
// journal_entries (the idempotency spine), ledger_entries and postings.
type LedgerRepository struct {
	pool poolDB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// InsertJournal inserts a journal row and reports whether it was new. The
// journal id has a primary key constraint; a conflict means the journal was
// already recorded and the row count comes back zero.
func (r *LedgerRepository) InsertJournal(ctx context.Context, tx usecase.Transaction, journal domain.JournalEntry) (bool, error) {
	tag, err := pgxTxOf(tx).Exec(ctx, `
		INSERT INTO journal_entries (id, tx_type, name, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO NOTHING`,
		journal.ID, string(journal.TxType), journal.Name,
	)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// InsertLedgerEntry inserts the ledger entry row and returns its id.
func (r *LedgerRepository) InsertLedgerEntry(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) (int64, error) {
	var id int64
	err := pgxTxOf(tx).QueryRow(ctx, `
		INSERT INTO ledger_entries (journal_entry_id, created_at)
		VALUES ($1, $2)
		RETURNING id`,
		entry.Journal.ID, entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// InsertPostings inserts the posting rows of one journal in a single batch.
func (r *LedgerRepository) InsertPostings(ctx context.Context, tx usecase.Transaction, journalID string, postings []domain.Posting) error {
	batch := &pgx.Batch{}
	for _, p := range postings {
		account := p.Account()
		amount := p.Amount()
		batch.Queue(`
			INSERT INTO postings (journal_entry_id, account_code, account_type, entity_id, quantity, currency, direction, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			journalID, account.Code(), string(account.Type), account.EntityID,
			amount.Quantity, amount.Currency, string(p.Direction()), time.Now().UTC(),
		)
	}

	results := pgxTxOf(tx).SendBatch(ctx, batch)
	defer results.Close()

	for range postings {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return results.Close()
}

// CheckConsistency sums all posted amounts by direction across the ledger.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (int64, int64, error) {
	var debits, credits int64
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(quantity) FILTER (WHERE direction = 'DEBIT'), 0),
			COALESCE(SUM(quantity) FILTER (WHERE direction = 'CREDIT'), 0)
		FROM postings`,
	).Scan(&debits, &credits)
	if err != nil {
		return 0, 0, err
	}

	return debits, credits, nil
}

// BalanceFor derives an account balance from its postings: debits minus
// credits, in minor units.
func (r *LedgerRepository) BalanceFor(ctx context.Context, accountCode string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'DEBIT' THEN quantity ELSE -quantity END), 0)
		FROM postings
		WHERE account_code = $1`,
		accountCode,
	).Scan(&balance)
	if err != nil {
		return 0, err
	}

	return balance, nil
}
