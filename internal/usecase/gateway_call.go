package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iho/payflow/internal/domain"
)

// gatewayPool bounds concurrent processor calls and applies the hard
// per-call timeout.
type gatewayPool struct {
	sem     chan struct{}
	timeout time.Duration
}

func newGatewayPool(size int, timeout time.Duration) *gatewayPool {
	if size <= 0 {
		size = DefaultGatewayPoolSize
	}
	if timeout <= 0 {
		timeout = DefaultGatewayCallTimeout
	}

	return &gatewayPool{
		sem:     make(chan struct{}, size),
		timeout: timeout,
	}
}

// invoke runs call with a bounded wait. On timeout the caller proceeds with
// GatewayCodeTimeout while the underlying call keeps running on a detached
// context; if it eventually completes, its result is handed to late so it
// can be reconciled through the same idempotent transition path the
// synchronous branch uses. The call context is cancelled on timeout as a
// best-effort interrupt.
func (p *gatewayPool) invoke(
	ctx context.Context,
	call func(ctx context.Context) (domain.GatewayResultCode, error),
	late func(code domain.GatewayResultCode),
) domain.GatewayResultCode {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.GatewayCodeTimeout
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)

	type result struct {
		code domain.GatewayResultCode
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		defer func() { <-p.sem }()

		code, err := call(callCtx)
		ch <- result{code: code, err: err}
	}()

	select {
	case res := <-ch:
		cancel()
		if res.err != nil {
			return domain.GatewayCodeNetworkError
		}
		return res.code
	case <-callCtx.Done():
		cancel()
		if late != nil {
			go func() {
				if res := <-ch; res.err == nil {
					late(res.code)
				}
			}()
		}
		return domain.GatewayCodeTimeout
	}
}

// newEnvelope wraps a payload for the broker or the retry queue.
func newEnvelope(idGen IDGenerator, eventType, aggregateID, parentEventID string, payload any) (domain.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Envelope{}, err
	}

	return domain.Envelope{
		EventID:       idGen.Generate(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		Data:          data,
		ParentEventID: parentEventID,
		Timestamp:     time.Now().UTC(),
	}, nil
}
