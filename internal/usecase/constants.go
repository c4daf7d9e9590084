package usecase

import "time"

const (
	// DefaultLedgerTxTimeout bounds one posting-engine batch transaction.
	DefaultLedgerTxTimeout = 3 * time.Second

	// DefaultGatewayCallTimeout is the hard per-call budget for a
	// processor round trip.
	DefaultGatewayCallTimeout = 1 * time.Second

	// DefaultGatewayPoolSize bounds concurrent processor calls.
	DefaultGatewayPoolSize = 16

	// DefaultMaxCaptureRetries finalizes an order as failed once its
	// retry count reaches this value.
	DefaultMaxCaptureRetries = 5
)

// BackoffForRetry returns the tiered retry delay for the given retry count
// (1-based: the first retry waits one minute).
func BackoffForRetry(retryCount int) time.Duration {
	switch {
	case retryCount <= 1:
		return 1 * time.Minute
	case retryCount == 2:
		return 5 * time.Minute
	default:
		return 10 * time.Minute
	}
}
