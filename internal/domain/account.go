package domain

import "strings"

// AccountType identifies a chart-of-accounts bucket.
type AccountType string

const (
	AccountTypeAuthReceivable  AccountType = "AUTH_RECEIVABLE"
	AccountTypeAuthLiability   AccountType = "AUTH_LIABILITY"
	AccountTypeMerchantPayable AccountType = "MERCHANT_PAYABLE"
	AccountTypePSPReceivables  AccountType = "PSP_RECEIVABLES"
	AccountTypeAcquirerAccount AccountType = "ACQUIRER_ACCOUNT"
	AccountTypeFeeRevenue      AccountType = "FEE_REVENUE"
	AccountTypePayoutClearing  AccountType = "PAYOUT_CLEARING"
)

// Well-known entity ids for platform-owned accounts. Merchant accounts use
// the seller id as entity.
const (
	EntityAcquirer = "acquirer"
	EntityPSP      = "psp"
	EntityPlatform = "platform"
)

// Account identifies a ledger account. The composite code
// type.entityId[.currency] is the storage key; the struct itself carries no
// balance, balances are derived from postings.
type Account struct {
	Type     AccountType
	EntityID string
	Currency string
}

// Code returns the composite account key.
func (a Account) Code() string {
	parts := []string{string(a.Type), a.EntityID}
	if a.Currency != "" {
		parts = append(parts, a.Currency)
	}

	return strings.Join(parts, ".")
}

// MerchantPayable returns the payable account for one seller.
func MerchantPayable(sellerID, currency string) Account {
	return Account{Type: AccountTypeMerchantPayable, EntityID: sellerID, Currency: currency}
}

// AuthReceivable returns the acquirer-side authorization receivable account.
func AuthReceivable(currency string) Account {
	return Account{Type: AccountTypeAuthReceivable, EntityID: EntityAcquirer, Currency: currency}
}

// AuthLiability returns the acquirer-side authorization liability account.
func AuthLiability(currency string) Account {
	return Account{Type: AccountTypeAuthLiability, EntityID: EntityAcquirer, Currency: currency}
}

// PSPReceivables returns the processor receivables account.
func PSPReceivables(currency string) Account {
	return Account{Type: AccountTypePSPReceivables, EntityID: EntityPSP, Currency: currency}
}

// AcquirerAccount returns the acquirer settlement account.
func AcquirerAccount(currency string) Account {
	return Account{Type: AccountTypeAcquirerAccount, EntityID: EntityAcquirer, Currency: currency}
}

// FeeRevenue returns the platform fee revenue account.
func FeeRevenue(currency string) Account {
	return Account{Type: AccountTypeFeeRevenue, EntityID: EntityPlatform, Currency: currency}
}

// PayoutClearing returns the payout clearing account.
func PayoutClearing(currency string) Account {
	return Account{Type: AccountTypePayoutClearing, EntityID: EntityPlatform, Currency: currency}
}
