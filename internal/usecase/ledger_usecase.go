package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
)

var (
	// ErrInconsistentLedger is returned when the ledger is not balanced.
	ErrInconsistentLedger = errors.New("ledger is inconsistent: debits do not equal credits")
)

// LedgerUseCase is the posting engine: it turns validated journal entries
// into durable, balanced posting rows, exactly once per journal id.
type LedgerUseCase struct {
	txManager    TransactionManager
	ledgerRepo   LedgerRepository
	outboxRepo   OutboxRepository
	balanceCache BalanceCache
	idGen        IDGenerator
	logger       zerolog.Logger
	txTimeout    time.Duration
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	txManager TransactionManager,
	ledgerRepo LedgerRepository,
	outboxRepo OutboxRepository,
	balanceCache BalanceCache,
	idGen IDGenerator,
	logger zerolog.Logger,
) *LedgerUseCase {
	return &LedgerUseCase{
		txManager:    txManager,
		ledgerRepo:   ledgerRepo,
		outboxRepo:   outboxRepo,
		balanceCache: balanceCache,
		idGen:        idGen,
		logger:       logger,
		txTimeout:    DefaultLedgerTxTimeout,
	}
}

// PostEntriesAtomic persists a batch of ledger entries in one short
// transaction and returns the entries persisted, with ledger entry ids
// populated.
//
// A duplicate journal id stops the whole batch: the entries persisted so
// far are returned and the rest are skipped. A batch that was applied once
// must never be partially re-applied on redelivery, and the journal id is
// the idempotency key that detects that.
//
// Storage errors propagate unwrapped; the caller (a message consumer) owns
// retry-on-transient-failure semantics.
func (uc *LedgerUseCase) PostEntriesAtomic(ctx context.Context, entries []domain.LedgerEntry) ([]domain.LedgerEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, uc.txTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	persisted := make([]domain.LedgerEntry, 0, len(entries))
	duplicateStopped := false

	for _, entry := range entries {
		inserted, err := uc.ledgerRepo.InsertJournal(ctx, tx, entry.Journal)
		if err != nil {
			return nil, err
		}

		if !inserted {
			uc.logger.Info().
				Str("journal_id", entry.Journal.ID).
				Int("persisted", len(persisted)).
				Msg("duplicate journal id, stopping batch")
			duplicateStopped = true
			break
		}

		id, err := uc.ledgerRepo.InsertLedgerEntry(ctx, tx, &entry)
		if err != nil {
			return nil, err
		}
		entry.LedgerEntryID = id

		if err := uc.ledgerRepo.InsertPostings(ctx, tx, entry.Journal.ID, entry.Journal.Postings); err != nil {
			return nil, err
		}

		persisted = append(persisted, entry)
	}

	if len(persisted) > 0 {
		event, err := uc.recordedEvent(persisted, duplicateStopped)
		if err != nil {
			return nil, err
		}

		if err := uc.outboxRepo.Save(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	uc.applyBalanceDeltas(ctx, persisted)

	return persisted, nil
}

// RecordFromCommand executes a ledger recording command received from the
// broker. Malformed entries fail before any storage work; the resulting
// validation errors are non-retryable by the consumer's taxonomy.
func (uc *LedgerUseCase) RecordFromCommand(ctx context.Context, cmd domain.LedgerRecordingCommand) ([]domain.LedgerEntry, error) {
	now := time.Now().UTC()

	entries := make([]domain.LedgerEntry, 0, len(cmd.Entries))
	for _, data := range cmd.Entries {
		journal, err := data.ToJournalEntry()
		if err != nil {
			return nil, err
		}

		entries = append(entries, domain.NewLedgerEntry(journal, now))
	}

	return uc.PostEntriesAtomic(ctx, entries)
}

// CheckConsistency verifies that ledger-wide debits equal credits.
func (uc *LedgerUseCase) CheckConsistency(ctx context.Context) (bool, error) {
	debits, credits, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return false, err
	}

	if debits != credits {
		return false, ErrInconsistentLedger
	}

	return true, nil
}

// Balance returns the account's authoritative balance from the durable
// posting rows. The incremental cache delta is folded into the snapshot
// the caller now sees, so it is reset here; approximate readers start
// accumulating from this point again.
func (uc *LedgerUseCase) Balance(ctx context.Context, accountCode string) (int64, error) {
	balance, err := uc.ledgerRepo.BalanceFor(ctx, accountCode)
	if err != nil {
		return 0, err
	}

	if uc.balanceCache != nil {
		if err := uc.balanceCache.SetSnapshot(ctx, accountCode, balance); err != nil {
			uc.logger.Warn().
				Err(err).
				Str("account", accountCode).
				Msg("failed to cache balance snapshot")
		}
		if err := uc.balanceCache.Invalidate(ctx, accountCode); err != nil {
			uc.logger.Warn().
				Err(err).
				Str("account", accountCode).
				Msg("failed to reset balance delta after authoritative read")
		}
	}

	return balance, nil
}

// BalanceApprox serves snapshot+delta from the cache without touching the
// ledger tables. The boolean reports whether the figure is approximate; a
// cache miss (or no cache) falls back to the authoritative read, which
// also seeds the snapshot for subsequent approximate reads.
func (uc *LedgerUseCase) BalanceApprox(ctx context.Context, accountCode string) (int64, bool, error) {
	if uc.balanceCache == nil {
		balance, err := uc.Balance(ctx, accountCode)
		return balance, false, err
	}

	snapshot, ok, err := uc.balanceCache.GetSnapshot(ctx, accountCode)
	if err != nil || !ok {
		if err != nil {
			uc.logger.Warn().
				Err(err).
				Str("account", accountCode).
				Msg("balance snapshot read failed, falling back to ledger")
		}
		balance, err := uc.Balance(ctx, accountCode)
		return balance, false, err
	}

	delta, err := uc.balanceCache.GetDelta(ctx, accountCode)
	if err != nil {
		balance, err := uc.Balance(ctx, accountCode)
		return balance, false, err
	}

	return snapshot + delta, true, nil
}

func (uc *LedgerUseCase) recordedEvent(persisted []domain.LedgerEntry, duplicateStopped bool) (*domain.OutboxEvent, error) {
	payload := domain.LedgerEntriesRecordedEvent{
		LedgerEntryIDs:   make([]int64, 0, len(persisted)),
		JournalEntryIDs:  make([]string, 0, len(persisted)),
		DuplicateStopped: duplicateStopped,
	}
	for _, entry := range persisted {
		payload.LedgerEntryIDs = append(payload.LedgerEntryIDs, entry.LedgerEntryID)
		payload.JournalEntryIDs = append(payload.JournalEntryIDs, entry.Journal.ID)
	}

	return domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypeLedgerEntriesRecorded,
		domain.AggregateTypeLedger,
		persisted[0].Journal.ID,
		payload,
		time.Now().UTC(),
	)
}

// applyBalanceDeltas updates the incremental balance cache after commit.
// Best-effort: a cache failure is logged and dropped, reads fall back to
// the durable snapshot.
func (uc *LedgerUseCase) applyBalanceDeltas(ctx context.Context, persisted []domain.LedgerEntry) {
	if uc.balanceCache == nil {
		return
	}

	for _, entry := range persisted {
		for _, p := range entry.Journal.Postings {
			delta := p.Amount().Quantity
			if p.Direction() == domain.DirectionCredit {
				delta = -delta
			}

			if err := uc.balanceCache.ApplyDelta(ctx, p.Account().Code(), delta); err != nil {
				uc.logger.Warn().
					Err(err).
					Str("account", p.Account().Code()).
					Msg("failed to apply balance delta to cache")
			}
		}
	}
}
