package domain

import (
	"errors"
	"testing"
)

func TestNewAmount(t *testing.T) {
	tests := []struct {
		name        string
		quantity    int64
		currency    string
		expectError error
	}{
		{"valid", 1000, "EUR", nil},
		{"zero", 0, "EUR", ErrInvalidAmount},
		{"negative", -5, "EUR", ErrInvalidAmount},
		{"bad currency", 1000, "EURO", ErrInvalidCurrency},
		{"empty currency", 1000, "", ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAmount(tt.quantity, tt.currency)
			if tt.expectError == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.expectError != nil && !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}
		})
	}
}

func TestAmount_Arithmetic(t *testing.T) {
	a := Amount{Quantity: 600, Currency: "EUR"}
	b := Amount{Quantity: 400, Currency: "EUR"}

	sum, err := a.Add(b)
	if err != nil || sum.Quantity != 1000 {
		t.Fatalf("add: got %v %v", sum, err)
	}

	diff, err := a.Sub(b)
	if err != nil || diff.Quantity != 200 {
		t.Fatalf("sub: got %v %v", diff, err)
	}

	if neg := a.Neg(); neg.Quantity != -600 {
		t.Errorf("neg: got %d", neg.Quantity)
	}

	if _, err := a.Add(Amount{Quantity: 1, Currency: "USD"}); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected currency mismatch, got %v", err)
	}
}

func TestAmount_Display(t *testing.T) {
	tests := []struct {
		amount Amount
		want   string
	}{
		{Amount{Quantity: 123456, Currency: "EUR"}, "1234.56 EUR"},
		{Amount{Quantity: 5, Currency: "USD"}, "0.05 USD"},
		{Amount{Quantity: 1500, Currency: "JPY"}, "1500 JPY"},
	}

	for _, tt := range tests {
		if got := tt.amount.Display(); got != tt.want {
			t.Errorf("Display(%+v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}
