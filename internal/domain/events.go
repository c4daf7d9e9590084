package domain

import (
	"encoding/json"
	"time"
)

// Event types
const (
	EventTypePaymentCreated        = "payment.created"
	EventTypePaymentAuthorized     = "payment.authorized"
	EventTypePaymentDeclined       = "payment.declined"
	EventTypePaymentCancelled      = "payment.cancelled"
	EventTypeAuthorizeCommand      = "payment.authorize.requested"
	EventTypeCaptureCommand        = "payment_order.capture.requested"
	EventTypePaymentOrderCaptured  = "payment_order.captured"
	EventTypePaymentOrderFailed    = "payment_order.capture.failed"
	EventTypeLedgerRecordingCmd    = "ledger.recording.requested"
	EventTypeLedgerEntriesRecorded = "ledger.entries.recorded"
)

// Aggregate types
const (
	AggregateTypePayment      = "payment"
	AggregateTypePaymentOrder = "payment_order"
	AggregateTypeLedger       = "ledger"
)

// OutboxStatus is the dispatch state of an outbox row. Transitions are
// monotonic: NEW -> PROCESSING -> SENT, never backwards.
type OutboxStatus string

const (
	OutboxStatusNew        OutboxStatus = "NEW"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
)

// CanTransitionTo enforces outbox status monotonicity.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxStatusNew:
		return next == OutboxStatusProcessing || next == OutboxStatusSent
	case OutboxStatusProcessing:
		return next == OutboxStatusSent
	default:
		return false
	}
}

// OutboxEvent is a domain event written durably in the same transaction as
// the domain change it announces, then dispatched asynchronously.
type OutboxEvent struct {
	ID            string
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       []byte
	Status        OutboxStatus
	ClaimedBy     string
	ClaimedAt     *time.Time
	CreatedAt     time.Time
}

// NewOutboxEvent marshals the payload and wraps it for the outbox.
func NewOutboxEvent(id, eventType, aggregateType, aggregateID string, payload any, now time.Time) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       raw,
		Status:        OutboxStatusNew,
		CreatedAt:     now,
	}, nil
}

// Envelope is the wire contract for everything crossing the broker,
// including outbox dispatch and retry payloads.
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	Data          json.RawMessage `json:"data"`
	TraceID       string          `json:"traceId,omitempty"`
	ParentEventID string          `json:"parentEventId,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// RetryItem is the unit moved through the delayed retry queue: the decoded
// envelope plus the raw bytes it round-trips as.
type RetryItem struct {
	Envelope Envelope
	Raw      []byte
}

// NewRetryItem serializes an envelope for the retry queue.
func NewRetryItem(envelope Envelope) (RetryItem, error) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return RetryItem{}, err
	}

	return RetryItem{Envelope: envelope, Raw: raw}, nil
}

// ParseRetryItem rebuilds a retry item from its queue representation.
func ParseRetryItem(raw []byte) (RetryItem, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return RetryItem{}, err
	}

	return RetryItem{Envelope: envelope, Raw: raw}, nil
}

// PaymentAuthorizedEvent payload
type PaymentAuthorizedEvent struct {
	PaymentID    string   `json:"payment_id"`
	PSPReference string   `json:"psp_reference"`
	Quantity     int64    `json:"quantity"`
	Currency     string   `json:"currency"`
	OrderIDs     []string `json:"order_ids"`
}

// PaymentDeclinedEvent payload
type PaymentDeclinedEvent struct {
	PaymentID    string `json:"payment_id"`
	PSPReference string `json:"psp_reference"`
	Reason       string `json:"reason"`
}

// AuthorizeCommand payload: instructs the payment flow to re-attempt
// authorization after a transient processor failure.
type AuthorizeCommand struct {
	PaymentID    string `json:"payment_id"`
	PSPReference string `json:"psp_reference"`
	RetryCount   int    `json:"retry_count"`
}

// CaptureCommand payload: instructs the capture flow to attempt one order.
type CaptureCommand struct {
	PaymentOrderID string `json:"payment_order_id"`
	PaymentID      string `json:"payment_id"`
	SellerID       string `json:"seller_id"`
	Quantity       int64  `json:"quantity"`
	Currency       string `json:"currency"`
	RetryCount     int    `json:"retry_count"`
	RetryReason    string `json:"retry_reason,omitempty"`
}

// PaymentOrderCapturedEvent payload
type PaymentOrderCapturedEvent struct {
	PaymentOrderID string `json:"payment_order_id"`
	PaymentID      string `json:"payment_id"`
	SellerID       string `json:"seller_id"`
	Quantity       int64  `json:"quantity"`
	Currency       string `json:"currency"`
}

// PaymentOrderFailedEvent payload
type PaymentOrderFailedEvent struct {
	PaymentOrderID string `json:"payment_order_id"`
	PaymentID      string `json:"payment_id"`
	Reason         string `json:"reason"`
	RetryCount     int    `json:"retry_count"`
}

// PostingEventData is the flattened wire form of a posting: the direction
// becomes an enum instead of a tagged type.
type PostingEventData struct {
	AccountCode string `json:"account_code"`
	AccountType string `json:"account_type"`
	EntityID    string `json:"entity_id"`
	Quantity    int64  `json:"quantity"`
	Currency    string `json:"currency"`
	Direction   string `json:"direction"`
}

// LedgerEntryEventData is the wire form of one journal entry inside a
// ledger recording command.
type LedgerEntryEventData struct {
	JournalEntryID string             `json:"journal_entry_id"`
	TxType         string             `json:"tx_type"`
	Name           string             `json:"name"`
	Postings       []PostingEventData `json:"postings"`
}

// LedgerRecordingCommand payload: the capture flow asks the ledger engine
// to record these entries.
type LedgerRecordingCommand struct {
	Entries []LedgerEntryEventData `json:"entries"`
}

// LedgerEntriesRecordedEvent payload
type LedgerEntriesRecordedEvent struct {
	LedgerEntryIDs   []int64  `json:"ledger_entry_ids"`
	JournalEntryIDs  []string `json:"journal_entry_ids"`
	DuplicateStopped bool     `json:"duplicate_stopped"`
}

// LedgerEntryEventDataFrom flattens a journal entry for the wire.
func LedgerEntryEventDataFrom(journal JournalEntry) LedgerEntryEventData {
	postings := make([]PostingEventData, 0, len(journal.Postings))
	for _, p := range journal.Postings {
		account := p.Account()
		amount := p.Amount()
		postings = append(postings, PostingEventData{
			AccountCode: account.Code(),
			AccountType: string(account.Type),
			EntityID:    account.EntityID,
			Quantity:    amount.Quantity,
			Currency:    amount.Currency,
			Direction:   string(p.Direction()),
		})
	}

	return LedgerEntryEventData{
		JournalEntryID: journal.ID,
		TxType:         string(journal.TxType),
		Name:           journal.Name,
		Postings:       postings,
	}
}

// ToJournalEntry rebuilds and re-validates a journal entry from its wire
// form. Malformed directions, tx types, or an unbalanced entry fail here,
// before anything touches storage.
func (d LedgerEntryEventData) ToJournalEntry() (JournalEntry, error) {
	txType, err := ParseTxType(d.TxType)
	if err != nil {
		return JournalEntry{}, err
	}

	postings := make([]Posting, 0, len(d.Postings))
	for _, pd := range d.Postings {
		account := Account{
			Type:     AccountType(pd.AccountType),
			EntityID: pd.EntityID,
			Currency: pd.Currency,
		}

		amount := Amount{Quantity: pd.Quantity, Currency: pd.Currency}

		posting, err := PostingFromDirection(Direction(pd.Direction), account, amount)
		if err != nil {
			return JournalEntry{}, err
		}

		postings = append(postings, posting)
	}

	return NewJournalEntry(d.JournalEntryID, txType, d.Name, postings)
}
