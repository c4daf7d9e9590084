package domain

import (
	"strings"
	"time"
)

// PaymentIntentStatus is the authorization lifecycle state of a buyer's
// payment.
type PaymentIntentStatus string

const (
	IntentCreatedPending PaymentIntentStatus = "CREATED_PENDING"
	IntentCreated        PaymentIntentStatus = "CREATED"
	IntentPendingAuth    PaymentIntentStatus = "PENDING_AUTH"
	IntentAuthorized     PaymentIntentStatus = "AUTHORIZED"
	IntentDeclined       PaymentIntentStatus = "DECLINED"
	IntentCancelled      PaymentIntentStatus = "CANCELLED"
)

// OrderLine is one seller's share of a payment.
type OrderLine struct {
	SellerID string
	Amount   Amount
}

// PaymentIntent is a buyer's payment moving through authorization with the
// external processor.
//
// Construction and every transition maintain two invariants: the order
// lines sum to the total amount in a single currency, and PSPReference is
// empty exactly while the status is CREATED_PENDING. ClientSecret is
// carried only in memory for the caller's response; persistence adapters
// must never write it.
type PaymentIntent struct {
	ID           string
	PSPReference string
	ClientSecret string
	BuyerID      string
	OrderID      string
	TotalAmount  Amount
	OrderLines   []OrderLine
	Status       PaymentIntentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPaymentIntent creates an intent in CREATED_PENDING, before the
// processor has assigned a reference.
func NewPaymentIntent(id, buyerID, orderID string, total Amount, lines []OrderLine, now time.Time) (*PaymentIntent, error) {
	if total.Quantity <= 0 {
		return nil, ErrInvalidAmount
	}

	if len(lines) == 0 {
		return nil, ErrOrderLinesMismatch
	}

	var sum int64
	for _, line := range lines {
		if line.Amount.Currency != total.Currency {
			return nil, ErrCurrencyMismatch
		}

		if line.Amount.Quantity <= 0 {
			return nil, ErrInvalidAmount
		}

		sum += line.Amount.Quantity
	}

	if sum != total.Quantity {
		return nil, ErrOrderLinesMismatch
	}

	return &PaymentIntent{
		ID:          id,
		BuyerID:     buyerID,
		OrderID:     orderID,
		TotalAmount: total,
		OrderLines:  lines,
		Status:      IntentCreatedPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkAsCreated records the processor reference obtained for a pending
// intent.
func (p *PaymentIntent) MarkAsCreated(pspReference string, now time.Time) error {
	if p.Status != IntentCreatedPending {
		return transitionError(string(p.Status), string(IntentCreated))
	}

	if strings.TrimSpace(pspReference) == "" {
		return ErrMissingPSPReference
	}

	p.PSPReference = pspReference
	p.Status = IntentCreated
	p.UpdatedAt = now

	return nil
}

// MarkAsCreatedWithPSPReferenceAndClientSecret records the processor
// reference together with the transient client secret handed back to the
// caller.
func (p *PaymentIntent) MarkAsCreatedWithPSPReferenceAndClientSecret(pspReference, clientSecret string, now time.Time) error {
	if err := p.MarkAsCreated(pspReference, now); err != nil {
		return err
	}

	p.ClientSecret = clientSecret

	return nil
}

// MarkAuthorizedPending moves a created intent into authorization with the
// processor.
func (p *PaymentIntent) MarkAuthorizedPending(now time.Time) error {
	if p.Status != IntentCreated {
		return transitionError(string(p.Status), string(IntentPendingAuth))
	}

	p.Status = IntentPendingAuth
	p.UpdatedAt = now

	return nil
}

// MarkAuthorized finalizes a successful authorization.
func (p *PaymentIntent) MarkAuthorized(now time.Time) error {
	if p.Status != IntentPendingAuth {
		return transitionError(string(p.Status), string(IntentAuthorized))
	}

	p.Status = IntentAuthorized
	p.UpdatedAt = now

	return nil
}

// MarkDeclined finalizes a declined authorization.
func (p *PaymentIntent) MarkDeclined(now time.Time) error {
	if p.Status != IntentPendingAuth {
		return transitionError(string(p.Status), string(IntentDeclined))
	}

	p.Status = IntentDeclined
	p.UpdatedAt = now

	return nil
}

// MarkCancelled cancels an intent that has not reached a terminal
// authorization outcome.
func (p *PaymentIntent) MarkCancelled(now time.Time) error {
	if p.Status != IntentCreated && p.Status != IntentPendingAuth {
		return transitionError(string(p.Status), string(IntentCancelled))
	}

	p.Status = IntentCancelled
	p.UpdatedAt = now

	return nil
}

// IsTerminal reports whether the intent can change no further.
func (p *PaymentIntent) IsTerminal() bool {
	switch p.Status {
	case IntentAuthorized, IntentDeclined, IntentCancelled:
		return true
	default:
		return false
	}
}
