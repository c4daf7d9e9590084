package dto

import (
	"github.com/iho/payflow/internal/usecase"
)

// OrderLineItem is one seller's share of a payment.
type OrderLineItem struct {
	SellerID string `json:"seller_id"`
	Quantity int64  `json:"quantity"`
}

// CreatePaymentRequest represents a request to create a payment intent.
// Quantities are minor units of the currency.
type CreatePaymentRequest struct {
	BuyerID    string          `json:"buyer_id"`
	OrderID    string          `json:"order_id"`
	Quantity   int64           `json:"quantity"`
	Currency   string          `json:"currency"`
	OrderLines []OrderLineItem `json:"order_lines"`
}

// ToUseCaseInput converts to use case input.
func (r *CreatePaymentRequest) ToUseCaseInput() usecase.CreatePaymentInput {
	lines := make([]usecase.OrderLineInput, 0, len(r.OrderLines))
	for _, l := range r.OrderLines {
		lines = append(lines, usecase.OrderLineInput{
			SellerID: l.SellerID,
			Quantity: l.Quantity,
		})
	}

	return usecase.CreatePaymentInput{
		BuyerID:    r.BuyerID,
		OrderID:    r.OrderID,
		Quantity:   r.Quantity,
		Currency:   r.Currency,
		OrderLines: lines,
	}
}
