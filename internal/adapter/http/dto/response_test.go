package dto

import (
	"testing"
	"time"

	"github.com/iho/payflow/internal/domain"
)

func TestPaymentFromDomain(t *testing.T) {
	now := time.Now().UTC()
	total, _ := domain.NewAmount(10000, "USD")
	line, _ := domain.NewAmount(10000, "USD")
	intent, err := domain.NewPaymentIntent("pay-1", "buyer-1", "order-1", total,
		[]domain.OrderLine{{SellerID: "seller-1", Amount: line}}, now)
	if err != nil {
		t.Fatalf("build intent: %v", err)
	}
	intent.PSPReference = "pi_ref"
	intent.ClientSecret = "cs_secret"

	resp := PaymentFromDomain(intent)

	if resp.ID != "pay-1" || resp.PSPReference != "pi_ref" || resp.ClientSecret != "cs_secret" {
		t.Errorf("unexpected response: %#v", resp)
	}
	if resp.Amount.Quantity != 10000 || resp.Amount.Display != "100.00 USD" {
		t.Errorf("unexpected amount: %#v", resp.Amount)
	}
	if len(resp.OrderLines) != 1 || resp.OrderLines[0].SellerID != "seller-1" {
		t.Errorf("unexpected lines: %#v", resp.OrderLines)
	}
	if resp.Status != string(domain.IntentCreatedPending) {
		t.Errorf("unexpected status: %s", resp.Status)
	}
}

func TestAmountFromDomain_ZeroExponentCurrency(t *testing.T) {
	a, err := domain.NewAmount(1500, "JPY")
	if err != nil {
		t.Fatalf("build amount: %v", err)
	}

	resp := AmountFromDomain(a)
	if resp.Display != "1500 JPY" {
		t.Errorf("unexpected display: %s", resp.Display)
	}
}

func TestPaymentOrderFromDomain(t *testing.T) {
	now := time.Now().UTC()
	amount, _ := domain.NewAmount(6000, "USD")
	order, err := domain.NewPaymentOrder("po-1", "pay-1", "seller-1", amount, now)
	if err != nil {
		t.Fatalf("build order: %v", err)
	}
	order.RetryCount = 2
	order.RetryReason = "PSP_UNAVAILABLE_TRANSIENT"

	resp := PaymentOrderFromDomain(order)

	if resp.ID != "po-1" || resp.PaymentID != "pay-1" || resp.SellerID != "seller-1" {
		t.Errorf("unexpected response: %#v", resp)
	}
	if resp.Status != string(domain.OrderInitiatedPending) {
		t.Errorf("unexpected status: %s", resp.Status)
	}
	if resp.RetryCount != 2 || resp.RetryReason != "PSP_UNAVAILABLE_TRANSIENT" {
		t.Errorf("unexpected retry fields: %#v", resp)
	}
}
