package domain

// GatewayResultCode is the processor's normalized response to a gateway
// call. The adapter maps raw processor payloads and transport errors onto
// this closed set; everything downstream works off it.
type GatewayResultCode string

const (
	GatewayCodeSucceeded         GatewayResultCode = "succeeded"
	GatewayCodeDeclined          GatewayResultCode = "declined"
	GatewayCodeInsufficientFunds GatewayResultCode = "insufficient_funds"
	GatewayCodeInvalidRequest    GatewayResultCode = "invalid_request"
	GatewayCodeProcessing        GatewayResultCode = "processing"
	GatewayCodeTimeout           GatewayResultCode = "timeout"
	GatewayCodeUnavailable       GatewayResultCode = "psp_unavailable"
	GatewayCodeNetworkError      GatewayResultCode = "network_error"
)

// CaptureBucket is the policy bucket a gateway result falls into. Only the
// retryable bucket feeds the retry queue; final buckets feed the outbox
// directly.
type CaptureBucket int

const (
	BucketFinalSuccess CaptureBucket = iota
	BucketFinalFailure
	BucketRetryable
)

// gatewayCodeStatus maps each processor code to the payment-order status it
// produces. The retryable entries must agree with retryableStatuses; tests
// enforce that.
var gatewayCodeStatus = map[GatewayResultCode]PaymentOrderStatus{
	GatewayCodeSucceeded:         OrderCaptured,
	GatewayCodeDeclined:          OrderCaptureFailed,
	GatewayCodeInsufficientFunds: OrderCaptureFailed,
	GatewayCodeInvalidRequest:    OrderCaptureFailed,
	GatewayCodeProcessing:        OrderPendingCapture,
	GatewayCodeTimeout:           OrderTimeoutTransient,
	GatewayCodeUnavailable:       OrderPSPUnavailable,
	GatewayCodeNetworkError:      OrderPSPUnavailable,
}

// StatusForGatewayCode returns the payment-order status a processor code
// maps to. Unknown codes are treated as a transient processor problem so a
// new processor code never finalizes an order as failed by accident.
func StatusForGatewayCode(code GatewayResultCode) PaymentOrderStatus {
	if status, ok := gatewayCodeStatus[code]; ok {
		return status
	}

	return OrderPSPUnavailable
}

// ClassifyGatewayCode buckets a processor code. Derived from the status
// mapping and the retryable status set, never a separate table.
func ClassifyGatewayCode(code GatewayResultCode) CaptureBucket {
	status := StatusForGatewayCode(code)

	switch {
	case status == OrderCaptured:
		return BucketFinalSuccess
	case IsRetryableStatus(status):
		return BucketRetryable
	default:
		return BucketFinalFailure
	}
}
