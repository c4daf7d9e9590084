package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Valid currency codes (ISO 4217)
var validCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"CNY": true, "AUD": true, "CAD": true, "CHF": true,
	"SEK": true, "NZD": true, "KRW": true, "SGD": true,
	"NOK": true, "MXN": true, "INR": true, "BRL": true,
	"ZAR": true, "TRY": true, "HKD": true, "PLN": true,
}

// Currencies without a fractional minor unit. Everything else uses two
// decimal places.
var zeroExponentCurrencies = map[string]bool{
	"JPY": true, "KRW": true,
}

// Amount is a monetary value in integer minor units (cents). All money
// arithmetic is integer-only; floats never touch a money path.
type Amount struct {
	Quantity int64
	Currency string
}

// NewAmount creates a positive Amount, validating the currency code.
func NewAmount(quantity int64, currency string) (Amount, error) {
	if !validCurrencies[currency] {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}

	if quantity <= 0 {
		return Amount{}, ErrInvalidAmount
	}

	return Amount{Quantity: quantity, Currency: currency}, nil
}

// Add returns a + b. The currencies must match.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, ErrCurrencyMismatch
	}

	return Amount{Quantity: a.Quantity + b.Quantity, Currency: a.Currency}, nil
}

// Sub returns a - b. The currencies must match.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, ErrCurrencyMismatch
	}

	return Amount{Quantity: a.Quantity - b.Quantity, Currency: a.Currency}, nil
}

// Neg returns the amount with the sign flipped.
func (a Amount) Neg() Amount {
	return Amount{Quantity: -a.Quantity, Currency: a.Currency}
}

func (a Amount) IsZero() bool {
	return a.Quantity == 0
}

func (a Amount) IsPositive() bool {
	return a.Quantity > 0
}

// Display renders the amount in major units for human-facing output.
// Formatting only; never feed the result back into arithmetic.
func (a Amount) Display() string {
	exp := int32(2)
	if zeroExponentCurrencies[a.Currency] {
		exp = 0
	}

	return decimal.New(a.Quantity, -exp).StringFixed(exp) + " " + a.Currency
}
