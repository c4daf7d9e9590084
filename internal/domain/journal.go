package domain

import (
	"fmt"
	"time"
)

// TxType names the business transaction a journal entry records.
type TxType string

const (
	TxTypeAuthHold   TxType = "AUTH_HOLD"
	TxTypeCapture    TxType = "CAPTURE"
	TxTypeSettlement TxType = "SETTLEMENT"
	TxTypeFee        TxType = "FEE"
	TxTypePayout     TxType = "PAYOUT"
)

// ParseTxType validates a wire transaction type.
func ParseTxType(s string) (TxType, error) {
	switch t := TxType(s); t {
	case TxTypeAuthHold, TxTypeCapture, TxTypeSettlement, TxTypeFee, TxTypePayout:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTxType, s)
	}
}

// JournalEntry is a named, balanced group of postings representing one
// business event. ID is a deterministic business key (e.g.
// "CAPTURE:<paymentOrderID>") and doubles as the idempotency key for
// persistence.
type JournalEntry struct {
	ID       string
	TxType   TxType
	Name     string
	Postings []Posting
}

// NewJournalEntry builds a journal entry, rejecting anything unbalanced. An
// entry needs at least two postings and, per currency, the debit total must
// equal the credit total.
func NewJournalEntry(id string, txType TxType, name string, postings []Posting) (JournalEntry, error) {
	if len(postings) < 2 {
		return JournalEntry{}, ErrTooFewPostings
	}

	net := make(map[string]int64)
	for _, p := range postings {
		amt := p.Amount()
		if amt.Quantity <= 0 {
			return JournalEntry{}, ErrInvalidAmount
		}

		switch p.(type) {
		case Debit:
			net[amt.Currency] += amt.Quantity
		case Credit:
			net[amt.Currency] -= amt.Quantity
		}
	}

	for currency, sum := range net {
		if sum != 0 {
			return JournalEntry{}, fmt.Errorf("%w: %s off by %d", ErrUnbalancedJournal, currency, sum)
		}
	}

	return JournalEntry{
		ID:       id,
		TxType:   txType,
		Name:     name,
		Postings: postings,
	}, nil
}

// LedgerEntry is a persisted journal entry. LedgerEntryID is assigned by
// storage and stays 0 until the entry is persisted; once persisted the
// entry is immutable.
type LedgerEntry struct {
	LedgerEntryID int64
	Journal       JournalEntry
	CreatedAt     time.Time
}

// NewLedgerEntry wraps a journal entry for persistence.
func NewLedgerEntry(journal JournalEntry, createdAt time.Time) LedgerEntry {
	return LedgerEntry{Journal: journal, CreatedAt: createdAt}
}

// AuthHoldEntry records the hold the processor placed on buyer funds for
// one payment order.
func AuthHoldEntry(paymentOrderID string, amount Amount) (JournalEntry, error) {
	return NewJournalEntry(
		"AUTH_HOLD:"+paymentOrderID,
		TxTypeAuthHold,
		"authorization hold",
		[]Posting{
			NewDebit(AuthReceivable(amount.Currency), amount),
			NewCredit(AuthLiability(amount.Currency), amount),
		},
	)
}

// CaptureEntry releases the authorization hold and books the captured funds
// as a merchant payable backed by a processor receivable.
func CaptureEntry(paymentOrderID, sellerID string, amount Amount) (JournalEntry, error) {
	return NewJournalEntry(
		"CAPTURE:"+paymentOrderID,
		TxTypeCapture,
		"capture",
		[]Posting{
			NewCredit(AuthReceivable(amount.Currency), amount),
			NewDebit(AuthLiability(amount.Currency), amount),
			NewCredit(MerchantPayable(sellerID, amount.Currency), amount),
			NewDebit(PSPReceivables(amount.Currency), amount),
		},
	)
}

// AuthHoldAndCapture yields the journal pair for a fully captured payment
// order: the hold plus its release-and-capture.
func AuthHoldAndCapture(paymentOrderID, sellerID string, amount Amount) ([]JournalEntry, error) {
	hold, err := AuthHoldEntry(paymentOrderID, amount)
	if err != nil {
		return nil, err
	}

	capture, err := CaptureEntry(paymentOrderID, sellerID, amount)
	if err != nil {
		return nil, err
	}

	return []JournalEntry{hold, capture}, nil
}

// SettlementEntry moves settled funds from the processor to the acquirer
// settlement account.
func SettlementEntry(settlementID string, amount Amount) (JournalEntry, error) {
	return NewJournalEntry(
		"SETTLEMENT:"+settlementID,
		TxTypeSettlement,
		"settlement",
		[]Posting{
			NewCredit(PSPReceivables(amount.Currency), amount),
			NewDebit(AcquirerAccount(amount.Currency), amount),
		},
	)
}

// FeeEntry books the platform fee taken out of a seller's payable.
func FeeEntry(paymentOrderID, sellerID string, fee Amount) (JournalEntry, error) {
	return NewJournalEntry(
		"FEE:"+paymentOrderID,
		TxTypeFee,
		"platform fee",
		[]Posting{
			NewDebit(MerchantPayable(sellerID, fee.Currency), fee),
			NewCredit(FeeRevenue(fee.Currency), fee),
		},
	)
}

// PayoutEntry clears a seller's payable into the payout clearing account.
func PayoutEntry(payoutID, sellerID string, amount Amount) (JournalEntry, error) {
	return NewJournalEntry(
		"PAYOUT:"+payoutID,
		TxTypePayout,
		"seller payout",
		[]Posting{
			NewDebit(MerchantPayable(sellerID, amount.Currency), amount),
			NewCredit(PayoutClearing(amount.Currency), amount),
		},
	)
}
