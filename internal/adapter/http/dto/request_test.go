package dto

import (
	"testing"
)

func TestCreatePaymentRequest_ToUseCaseInput(t *testing.T) {
	req := CreatePaymentRequest{
		BuyerID:  "buyer-1",
		OrderID:  "order-1",
		Quantity: 10000,
		Currency: "USD",
		OrderLines: []OrderLineItem{
			{SellerID: "seller-1", Quantity: 6000},
			{SellerID: "seller-2", Quantity: 4000},
		},
	}

	input := req.ToUseCaseInput()

	if input.BuyerID != "buyer-1" || input.OrderID != "order-1" {
		t.Errorf("unexpected ids: %#v", input)
	}
	if input.Quantity != 10000 || input.Currency != "USD" {
		t.Errorf("unexpected amount: %#v", input)
	}
	if len(input.OrderLines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(input.OrderLines))
	}
	if input.OrderLines[1].SellerID != "seller-2" || input.OrderLines[1].Quantity != 4000 {
		t.Errorf("unexpected line: %#v", input.OrderLines[1])
	}
}
