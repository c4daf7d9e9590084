package mocks

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/usecase"
)

// MockTransaction is a no-op transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error

	Committed  bool
	RolledBack bool
}

func (t *MockTransaction) Commit(ctx context.Context) error {
	t.Committed = true
	if t.CommitFunc != nil {
		return t.CommitFunc(ctx)
	}
	return nil
}

func (t *MockTransaction) Rollback(ctx context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	if t.RollbackFunc != nil {
		return t.RollbackFunc(ctx)
	}
	return nil
}

// MockTransactionManager hands out no-op transactions.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)

	mu     sync.Mutex
	Begun  int
	LastTx *MockTransaction
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Begun++
	m.LastTx = &MockTransaction{}
	return m.LastTx, nil
}

// MockLedgerRepository keeps journals, entries and postings in memory,
// with duplicate detection on the journal id.
type MockLedgerRepository struct {
	InsertJournalFunc     func(ctx context.Context, tx usecase.Transaction, journal domain.JournalEntry) (bool, error)
	InsertLedgerEntryFunc func(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) (int64, error)
	InsertPostingsFunc    func(ctx context.Context, tx usecase.Transaction, journalID string, postings []domain.Posting) error
	CheckConsistencyFunc  func(ctx context.Context) (int64, int64, error)
	BalanceForFunc        func(ctx context.Context, accountCode string) (int64, error)

	mu       sync.Mutex
	Journals map[string]domain.JournalEntry
	Entries  []domain.LedgerEntry
	Postings map[string][]domain.Posting
	nextID   int64
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		Journals: make(map[string]domain.JournalEntry),
		Postings: make(map[string][]domain.Posting),
	}
}

func (m *MockLedgerRepository) InsertJournal(ctx context.Context, tx usecase.Transaction, journal domain.JournalEntry) (bool, error) {
	if m.InsertJournalFunc != nil {
		return m.InsertJournalFunc(ctx, tx, journal)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Journals[journal.ID]; exists {
		return false, nil
	}
	m.Journals[journal.ID] = journal
	return true, nil
}

func (m *MockLedgerRepository) InsertLedgerEntry(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) (int64, error) {
	if m.InsertLedgerEntryFunc != nil {
		return m.InsertLedgerEntryFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	stored := *entry
	stored.LedgerEntryID = m.nextID
	m.Entries = append(m.Entries, stored)
	return m.nextID, nil
}

func (m *MockLedgerRepository) InsertPostings(ctx context.Context, tx usecase.Transaction, journalID string, postings []domain.Posting) error {
	if m.InsertPostingsFunc != nil {
		return m.InsertPostingsFunc(ctx, tx, journalID, postings)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Postings[journalID] = append(m.Postings[journalID], postings...)
	return nil
}

func (m *MockLedgerRepository) CheckConsistency(ctx context.Context) (int64, int64, error) {
	if m.CheckConsistencyFunc != nil {
		return m.CheckConsistencyFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var debits, credits int64
	for _, postings := range m.Postings {
		for _, p := range postings {
			switch p.Direction() {
			case domain.DirectionDebit:
				debits += p.Amount().Quantity
			case domain.DirectionCredit:
				credits += p.Amount().Quantity
			}
		}
	}
	return debits, credits, nil
}

func (m *MockLedgerRepository) BalanceFor(ctx context.Context, accountCode string) (int64, error) {
	if m.BalanceForFunc != nil {
		return m.BalanceForFunc(ctx, accountCode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var balance int64
	for _, postings := range m.Postings {
		for _, p := range postings {
			if p.Account().Code() != accountCode {
				continue
			}
			if p.Direction() == domain.DirectionDebit {
				balance += p.Amount().Quantity
			} else {
				balance -= p.Amount().Quantity
			}
		}
	}
	return balance, nil
}

// PostingCount returns the total number of stored posting rows.
func (m *MockLedgerRepository) PostingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, postings := range m.Postings {
		n += len(postings)
	}
	return n
}

// MockPaymentIntentRepository stores intents in memory.
type MockPaymentIntentRepository struct {
	CreateFunc           func(ctx context.Context, tx usecase.Transaction, intent *domain.PaymentIntent) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.PaymentIntent, error)
	GetByIDForUpdateFunc func(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentIntent, error)
	UpdateFunc           func(ctx context.Context, tx usecase.Transaction, intent *domain.PaymentIntent) error

	mu      sync.Mutex
	Intents map[string]*domain.PaymentIntent
}

func NewMockPaymentIntentRepository() *MockPaymentIntentRepository {
	return &MockPaymentIntentRepository{Intents: make(map[string]*domain.PaymentIntent)}
}

func (m *MockPaymentIntentRepository) Create(ctx context.Context, tx usecase.Transaction, intent *domain.PaymentIntent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, intent)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *intent
	clone.ClientSecret = "" // persistence never sees the secret
	m.Intents[intent.ID] = &clone
	return nil
}

func (m *MockPaymentIntentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.Intents[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	clone := *intent
	return &clone, nil
}

func (m *MockPaymentIntentRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentIntent, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockPaymentIntentRepository) Update(ctx context.Context, tx usecase.Transaction, intent *domain.PaymentIntent) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, intent)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *intent
	clone.ClientSecret = ""
	m.Intents[intent.ID] = &clone
	return nil
}

// MockPaymentOrderRepository stores orders in memory.
type MockPaymentOrderRepository struct {
	CreateBatchFunc      func(ctx context.Context, tx usecase.Transaction, orders []*domain.PaymentOrder) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.PaymentOrder, error)
	GetByIDForUpdateFunc func(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentOrder, error)
	ListByPaymentFunc    func(ctx context.Context, paymentID string) ([]*domain.PaymentOrder, error)
	UpdateFunc           func(ctx context.Context, tx usecase.Transaction, order *domain.PaymentOrder) error

	mu     sync.Mutex
	Orders map[string]*domain.PaymentOrder
}

func NewMockPaymentOrderRepository() *MockPaymentOrderRepository {
	return &MockPaymentOrderRepository{Orders: make(map[string]*domain.PaymentOrder)}
}

func (m *MockPaymentOrderRepository) CreateBatch(ctx context.Context, tx usecase.Transaction, orders []*domain.PaymentOrder) error {
	if m.CreateBatchFunc != nil {
		return m.CreateBatchFunc(ctx, tx, orders)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range orders {
		clone := *order
		m.Orders[order.ID] = &clone
	}
	return nil
}

func (m *MockPaymentOrderRepository) GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.Orders[id]
	if !ok {
		return nil, domain.ErrPaymentOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (m *MockPaymentOrderRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentOrder, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockPaymentOrderRepository) ListByPayment(ctx context.Context, paymentID string) ([]*domain.PaymentOrder, error) {
	if m.ListByPaymentFunc != nil {
		return m.ListByPaymentFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []*domain.PaymentOrder
	for _, order := range m.Orders {
		if order.PaymentID == paymentID {
			clone := *order
			orders = append(orders, &clone)
		}
	}
	return orders, nil
}

func (m *MockPaymentOrderRepository) Update(ctx context.Context, tx usecase.Transaction, order *domain.PaymentOrder) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, order)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *order
	m.Orders[order.ID] = &clone
	return nil
}

// MockOutboxRepository collects saved events.
type MockOutboxRepository struct {
	SaveFunc                 func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
	SaveAllFunc              func(ctx context.Context, tx usecase.Transaction, events []*domain.OutboxEvent) error
	FindBatchForDispatchFunc func(ctx context.Context, batchSize int, workerID string) ([]*domain.OutboxEvent, error)
	UpdateAllFunc            func(ctx context.Context, events []*domain.OutboxEvent) error
	ReclaimStuckClaimsFunc   func(ctx context.Context, olderThan time.Duration) (int, error)

	mu     sync.Mutex
	Events []*domain.OutboxEvent
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Save(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockOutboxRepository) SaveAll(ctx context.Context, tx usecase.Transaction, events []*domain.OutboxEvent) error {
	if m.SaveAllFunc != nil {
		return m.SaveAllFunc(ctx, tx, events)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, events...)
	return nil
}

func (m *MockOutboxRepository) FindBatchForDispatch(ctx context.Context, batchSize int, workerID string) ([]*domain.OutboxEvent, error) {
	if m.FindBatchForDispatchFunc != nil {
		return m.FindBatchForDispatchFunc(ctx, batchSize, workerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*domain.OutboxEvent
	now := time.Now().UTC()
	for _, event := range m.Events {
		if len(claimed) >= batchSize {
			break
		}
		if event.Status == domain.OutboxStatusNew {
			event.Status = domain.OutboxStatusProcessing
			event.ClaimedBy = workerID
			event.ClaimedAt = &now
			claimed = append(claimed, event)
		}
	}
	return claimed, nil
}

func (m *MockOutboxRepository) UpdateAll(ctx context.Context, events []*domain.OutboxEvent) error {
	if m.UpdateAllFunc != nil {
		return m.UpdateAllFunc(ctx, events)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range events {
		event.Status = domain.OutboxStatusSent
	}
	return nil
}

func (m *MockOutboxRepository) ReclaimStuckClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.ReclaimStuckClaimsFunc != nil {
		return m.ReclaimStuckClaimsFunc(ctx, olderThan)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	cutoff := time.Now().UTC().Add(-olderThan)
	for _, event := range m.Events {
		if event.Status == domain.OutboxStatusProcessing && event.ClaimedAt != nil && event.ClaimedAt.Before(cutoff) {
			event.Status = domain.OutboxStatusNew
			event.ClaimedBy = ""
			event.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

// ByType returns saved events of one type.
func (m *MockOutboxRepository) ByType(eventType string) []*domain.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []*domain.OutboxEvent
	for _, event := range m.Events {
		if event.EventType == eventType {
			events = append(events, event)
		}
	}
	return events
}

// MockRetryQueue records scheduled retries.
type MockRetryQueue struct {
	ScheduleRetryFunc            func(ctx context.Context, item domain.RetryItem, backoff time.Duration) error
	PollDueRetriesToInflightFunc func(ctx context.Context, maxBatch int) ([]domain.RetryItem, error)
	RemoveFromInflightFunc       func(ctx context.Context, item domain.RetryItem) error
	ReclaimInflightFunc          func(ctx context.Context, olderThan time.Duration) (int, error)

	mu        sync.Mutex
	Scheduled []domain.RetryItem
	Backoffs  []time.Duration
}

func NewMockRetryQueue() *MockRetryQueue {
	return &MockRetryQueue{}
}

func (m *MockRetryQueue) ScheduleRetry(ctx context.Context, item domain.RetryItem, backoff time.Duration) error {
	if m.ScheduleRetryFunc != nil {
		return m.ScheduleRetryFunc(ctx, item, backoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled = append(m.Scheduled, item)
	m.Backoffs = append(m.Backoffs, backoff)
	return nil
}

func (m *MockRetryQueue) PollDueRetriesToInflight(ctx context.Context, maxBatch int) ([]domain.RetryItem, error) {
	if m.PollDueRetriesToInflightFunc != nil {
		return m.PollDueRetriesToInflightFunc(ctx, maxBatch)
	}
	return nil, nil
}

func (m *MockRetryQueue) RemoveFromInflight(ctx context.Context, item domain.RetryItem) error {
	if m.RemoveFromInflightFunc != nil {
		return m.RemoveFromInflightFunc(ctx, item)
	}
	return nil
}

func (m *MockRetryQueue) ReclaimInflight(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.ReclaimInflightFunc != nil {
		return m.ReclaimInflightFunc(ctx, olderThan)
	}
	return 0, nil
}

// ScheduledCount returns how many retries were scheduled.
func (m *MockRetryQueue) ScheduledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Scheduled)
}

// MockRetryCounter is an in-memory advisory counter.
type MockRetryCounter struct {
	mu     sync.Mutex
	Counts map[string]int
}

func NewMockRetryCounter() *MockRetryCounter {
	return &MockRetryCounter{Counts: make(map[string]int)}
}

func (m *MockRetryCounter) Get(ctx context.Context, aggregateID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[aggregateID], nil
}

func (m *MockRetryCounter) Increment(ctx context.Context, aggregateID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counts[aggregateID]++
	return m.Counts[aggregateID], nil
}

func (m *MockRetryCounter) Reset(ctx context.Context, aggregateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Counts, aggregateID)
	return nil
}

// MockBalanceCache is an in-memory delta cache.
type MockBalanceCache struct {
	ApplyDeltaFunc func(ctx context.Context, accountCode string, delta int64) error

	mu        sync.Mutex
	Deltas    map[string]int64
	Snapshots map[string]int64
}

func NewMockBalanceCache() *MockBalanceCache {
	return &MockBalanceCache{
		Deltas:    make(map[string]int64),
		Snapshots: make(map[string]int64),
	}
}

func (m *MockBalanceCache) ApplyDelta(ctx context.Context, accountCode string, delta int64) error {
	if m.ApplyDeltaFunc != nil {
		return m.ApplyDeltaFunc(ctx, accountCode, delta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deltas[accountCode] += delta
	return nil
}

func (m *MockBalanceCache) GetDelta(ctx context.Context, accountCode string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Deltas[accountCode], nil
}

func (m *MockBalanceCache) Invalidate(ctx context.Context, accountCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Deltas, accountCode)
	return nil
}

func (m *MockBalanceCache) SetSnapshot(ctx context.Context, accountCode string, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots[accountCode] = balance
	return nil
}

func (m *MockBalanceCache) GetSnapshot(ctx context.Context, accountCode string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.Snapshots[accountCode]
	return balance, ok, nil
}

// MockGateway answers gateway calls with canned results.
type MockGateway struct {
	CreateIntentFunc         func(ctx context.Context, idempotencyKey string, intent *domain.PaymentIntent) (usecase.GatewayIntent, error)
	ConfirmIntentFunc        func(ctx context.Context, idempotencyKey, pspReference string) (domain.GatewayResultCode, error)
	CaptureFunc              func(ctx context.Context, idempotencyKey, pspReference string, amount domain.Amount) (domain.GatewayResultCode, error)
	RetrieveClientSecretFunc func(ctx context.Context, pspReference string) (string, error)

	mu          sync.Mutex
	CaptureKeys []string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) CreateIntent(ctx context.Context, idempotencyKey string, intent *domain.PaymentIntent) (usecase.GatewayIntent, error) {
	if m.CreateIntentFunc != nil {
		return m.CreateIntentFunc(ctx, idempotencyKey, intent)
	}
	return usecase.GatewayIntent{PSPReference: "pi_" + intent.ID, ClientSecret: "cs_" + intent.ID}, nil
}

func (m *MockGateway) ConfirmIntent(ctx context.Context, idempotencyKey, pspReference string) (domain.GatewayResultCode, error) {
	if m.ConfirmIntentFunc != nil {
		return m.ConfirmIntentFunc(ctx, idempotencyKey, pspReference)
	}
	return domain.GatewayCodeSucceeded, nil
}

func (m *MockGateway) Capture(ctx context.Context, idempotencyKey, pspReference string, amount domain.Amount) (domain.GatewayResultCode, error) {
	m.mu.Lock()
	m.CaptureKeys = append(m.CaptureKeys, idempotencyKey)
	m.mu.Unlock()
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, idempotencyKey, pspReference, amount)
	}
	return domain.GatewayCodeSucceeded, nil
}

func (m *MockGateway) RetrieveClientSecret(ctx context.Context, pspReference string) (string, error) {
	if m.RetrieveClientSecretFunc != nil {
		return m.RetrieveClientSecretFunc(ctx, pspReference)
	}
	return "cs_" + pspReference, nil
}

// MockIDGenerator yields deterministic sequential ids.
type MockIDGenerator struct {
	GenerateFunc func() string

	mu   sync.Mutex
	next int
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return "id-" + strconv.Itoa(m.next)
}
