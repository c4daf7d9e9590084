package domain

// Direction is the wire representation of a posting's side.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Posting is a single debit or credit line against one account. It is a
// closed variant: only Debit and Credit implement it, so a type switch over
// a Posting covers every case. A posting never exists outside a
// JournalEntry.
type Posting interface {
	Account() Account
	Amount() Amount
	Direction() Direction

	sealedPosting()
}

// Debit increases an asset/expense account.
type Debit struct {
	account Account
	amount  Amount
}

// NewDebit creates a debit posting.
func NewDebit(account Account, amount Amount) Debit {
	return Debit{account: account, amount: amount}
}

func (d Debit) Account() Account     { return d.account }
func (d Debit) Amount() Amount       { return d.amount }
func (d Debit) Direction() Direction { return DirectionDebit }
func (Debit) sealedPosting()         {}

// Credit increases a liability/revenue account.
type Credit struct {
	account Account
	amount  Amount
}

// NewCredit creates a credit posting.
func NewCredit(account Account, amount Amount) Credit {
	return Credit{account: account, amount: amount}
}

func (c Credit) Account() Account     { return c.account }
func (c Credit) Amount() Amount       { return c.amount }
func (c Credit) Direction() Direction { return DirectionCredit }
func (Credit) sealedPosting()         {}

// PostingFromDirection rebuilds a posting from its wire direction.
func PostingFromDirection(direction Direction, account Account, amount Amount) (Posting, error) {
	switch direction {
	case DirectionDebit:
		return NewDebit(account, amount), nil
	case DirectionCredit:
		return NewCredit(account, amount), nil
	default:
		return nil, ErrUnknownDirection
	}
}
