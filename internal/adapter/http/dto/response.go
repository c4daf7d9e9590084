package dto

import (
	"time"

	"github.com/iho/payflow/internal/domain"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AmountResponse renders an amount in minor units plus a human-readable
// form.
type AmountResponse struct {
	Quantity int64  `json:"quantity"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

// AmountFromDomain converts a domain amount to a response.
func AmountFromDomain(a domain.Amount) AmountResponse {
	return AmountResponse{
		Quantity: a.Quantity,
		Currency: a.Currency,
		Display:  a.Display(),
	}
}

// PaymentResponse represents a payment intent in API responses. The client
// secret is present only on the response to the request that produced it.
type PaymentResponse struct {
	ID           string              `json:"id"`
	PSPReference string              `json:"psp_reference,omitempty"`
	ClientSecret string              `json:"client_secret,omitempty"`
	BuyerID      string              `json:"buyer_id"`
	OrderID      string              `json:"order_id"`
	Amount       AmountResponse      `json:"amount"`
	OrderLines   []OrderLineResponse `json:"order_lines"`
	Status       string              `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// OrderLineResponse is one seller's share in API responses.
type OrderLineResponse struct {
	SellerID string         `json:"seller_id"`
	Amount   AmountResponse `json:"amount"`
}

// PaymentFromDomain converts a domain payment intent to a response.
func PaymentFromDomain(intent *domain.PaymentIntent) PaymentResponse {
	lines := make([]OrderLineResponse, 0, len(intent.OrderLines))
	for _, l := range intent.OrderLines {
		lines = append(lines, OrderLineResponse{
			SellerID: l.SellerID,
			Amount:   AmountFromDomain(l.Amount),
		})
	}

	return PaymentResponse{
		ID:           intent.ID,
		PSPReference: intent.PSPReference,
		ClientSecret: intent.ClientSecret,
		BuyerID:      intent.BuyerID,
		OrderID:      intent.OrderID,
		Amount:       AmountFromDomain(intent.TotalAmount),
		OrderLines:   lines,
		Status:       string(intent.Status),
		CreatedAt:    intent.CreatedAt,
		UpdatedAt:    intent.UpdatedAt,
	}
}

// PaymentOrderResponse represents a payment order in API responses.
type PaymentOrderResponse struct {
	ID          string         `json:"id"`
	PaymentID   string         `json:"payment_id"`
	SellerID    string         `json:"seller_id"`
	Amount      AmountResponse `json:"amount"`
	Status      string         `json:"status"`
	RetryCount  int            `json:"retry_count"`
	RetryReason string         `json:"retry_reason,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PaymentOrderFromDomain converts a domain payment order to a response.
func PaymentOrderFromDomain(order *domain.PaymentOrder) PaymentOrderResponse {
	return PaymentOrderResponse{
		ID:          order.ID,
		PaymentID:   order.PaymentID,
		SellerID:    order.SellerID,
		Amount:      AmountFromDomain(order.Amount),
		Status:      string(order.Status),
		RetryCount:  order.RetryCount,
		RetryReason: order.RetryReason,
		LastError:   order.LastErrorMessage,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

// PaymentOrdersFromDomain converts a slice of payment orders.
func PaymentOrdersFromDomain(orders []*domain.PaymentOrder) []PaymentOrderResponse {
	out := make([]PaymentOrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, PaymentOrderFromDomain(order))
	}
	return out
}
