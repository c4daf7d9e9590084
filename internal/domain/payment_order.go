package domain

import "time"

// PaymentOrderStatus is the capture lifecycle state of one seller's share
// of a payment.
type PaymentOrderStatus string

const (
	OrderInitiatedPending PaymentOrderStatus = "INITIATED_PENDING"
	OrderCaptureRequested PaymentOrderStatus = "CAPTURE_REQUESTED"
	OrderCaptured         PaymentOrderStatus = "CAPTURED"
	OrderCaptureFailed    PaymentOrderStatus = "CAPTURE_FAILED"
	OrderPendingCapture   PaymentOrderStatus = "PENDING_CAPTURE"
	OrderTimeoutTransient PaymentOrderStatus = "TIMEOUT_EXCEEDED_1S_TRANSIENT"
	OrderPSPUnavailable   PaymentOrderStatus = "PSP_UNAVAILABLE_TRANSIENT"
)

// retryableStatuses is the single source of truth for which statuses loop
// back through the retry queue. Every retryability check derives from this
// set.
var retryableStatuses = map[PaymentOrderStatus]bool{
	OrderPendingCapture:   true,
	OrderTimeoutTransient: true,
	OrderPSPUnavailable:   true,
}

// IsRetryableStatus reports whether a status re-enters capture via the
// retry queue.
func IsRetryableStatus(s PaymentOrderStatus) bool {
	return retryableStatuses[s]
}

// PaymentOrder tracks the capture of one seller's amount under an
// authorized payment intent. Transitions within one order are serialized by
// the owning storage transaction.
type PaymentOrder struct {
	ID               string
	PaymentID        string
	SellerID         string
	Amount           Amount
	Status           PaymentOrderStatus
	RetryCount       int
	RetryReason      string
	LastErrorMessage string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPaymentOrder creates an order in INITIATED_PENDING.
func NewPaymentOrder(id, paymentID, sellerID string, amount Amount, now time.Time) (*PaymentOrder, error) {
	if amount.Quantity <= 0 {
		return nil, ErrInvalidAmount
	}

	return &PaymentOrder{
		ID:        id,
		PaymentID: paymentID,
		SellerID:  sellerID,
		Amount:    amount,
		Status:    OrderInitiatedPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkCaptureRequested moves a fresh or retryable order into capture.
func (o *PaymentOrder) MarkCaptureRequested(now time.Time) error {
	if o.Status != OrderInitiatedPending && !IsRetryableStatus(o.Status) {
		return transitionError(string(o.Status), string(OrderCaptureRequested))
	}

	o.Status = OrderCaptureRequested
	o.UpdatedAt = now

	return nil
}

// MarkAsPaid finalizes a successful capture.
func (o *PaymentOrder) MarkAsPaid(now time.Time) error {
	if o.Status != OrderCaptureRequested {
		return transitionError(string(o.Status), string(OrderCaptured))
	}

	o.Status = OrderCaptured
	o.UpdatedAt = now

	return nil
}

// MarkAsFailed records a transient capture failure. The target status must
// be one of the retryable statuses.
func (o *PaymentOrder) MarkAsFailed(status PaymentOrderStatus, errorMessage string, now time.Time) error {
	if o.Status != OrderCaptureRequested {
		return transitionError(string(o.Status), string(status))
	}

	if !IsRetryableStatus(status) {
		return transitionError(string(o.Status), string(status))
	}

	o.Status = status
	o.LastErrorMessage = errorMessage
	o.UpdatedAt = now

	return nil
}

// MarkAsPending parks the order awaiting an asynchronous status check.
func (o *PaymentOrder) MarkAsPending(now time.Time) error {
	return o.MarkAsFailed(OrderPendingCapture, o.LastErrorMessage, now)
}

// MarkAsFinalizedFailed finalizes the order as failed. Allowed from
// CAPTURE_REQUESTED (declined by the processor) and from any retryable
// status (retry budget exhausted).
func (o *PaymentOrder) MarkAsFinalizedFailed(errorMessage string, now time.Time) error {
	if o.Status != OrderCaptureRequested && !IsRetryableStatus(o.Status) {
		return transitionError(string(o.Status), string(OrderCaptureFailed))
	}

	o.Status = OrderCaptureFailed
	o.LastErrorMessage = errorMessage
	o.UpdatedAt = now

	return nil
}

// IncrementRetry loops a retryable order back to CAPTURE_REQUESTED with the
// retry counter bumped.
func (o *PaymentOrder) IncrementRetry(now time.Time) error {
	if !IsRetryableStatus(o.Status) {
		return transitionError(string(o.Status), string(OrderCaptureRequested))
	}

	o.RetryCount++
	o.Status = OrderCaptureRequested
	o.UpdatedAt = now

	return nil
}

// WithRetryReason stamps why the order is being retried.
func (o *PaymentOrder) WithRetryReason(reason string) *PaymentOrder {
	o.RetryReason = reason
	return o
}

// WithLastError stamps the last error seen for the order.
func (o *PaymentOrder) WithLastError(message string) *PaymentOrder {
	o.LastErrorMessage = message
	return o
}

// IsTerminal reports whether the order reached a final outcome.
func (o *PaymentOrder) IsTerminal() bool {
	return o.Status == OrderCaptured || o.Status == OrderCaptureFailed
}
