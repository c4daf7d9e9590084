package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
)

// CaptureUseCase drives one payment order through capture with the
// processor, including the retry loop for transient failures.
type CaptureUseCase struct {
	txManager    TransactionManager
	orderRepo    PaymentOrderRepository
	intentRepo   PaymentIntentRepository
	outboxRepo   OutboxRepository
	retryQueue   RetryQueue
	retryCounter RetryCounter
	gateway      Gateway
	idGen        IDGenerator
	logger       zerolog.Logger
	pool         *gatewayPool
	maxRetries   int
}

// CaptureConfig carries the knobs for CaptureUseCase.
type CaptureConfig struct {
	GatewayPoolSize    int
	GatewayCallTimeout time.Duration
	MaxRetries         int
}

// NewCaptureUseCase creates a new CaptureUseCase.
func NewCaptureUseCase(
	txManager TransactionManager,
	orderRepo PaymentOrderRepository,
	intentRepo PaymentIntentRepository,
	outboxRepo OutboxRepository,
	retryQueue RetryQueue,
	retryCounter RetryCounter,
	gateway Gateway,
	idGen IDGenerator,
	logger zerolog.Logger,
	cfg CaptureConfig,
) *CaptureUseCase {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxCaptureRetries
	}

	return &CaptureUseCase{
		txManager:    txManager,
		orderRepo:    orderRepo,
		intentRepo:   intentRepo,
		outboxRepo:   outboxRepo,
		retryQueue:   retryQueue,
		retryCounter: retryCounter,
		gateway:      gateway,
		idGen:        idGen,
		logger:       logger,
		pool:         newGatewayPool(cfg.GatewayPoolSize, cfg.GatewayCallTimeout),
		maxRetries:   maxRetries,
	}
}

// ExecuteCommand processes a capture command, either the first attempt or a
// retry replayed from the delayed queue. Redelivery of a command whose
// order already finished is a no-op.
func (uc *CaptureUseCase) ExecuteCommand(ctx context.Context, cmd domain.CaptureCommand) error {
	order, err := uc.beginCapture(ctx, cmd)
	if err != nil {
		return err
	}

	if order == nil {
		// Terminal order: duplicate delivery, nothing to do.
		return nil
	}

	intent, err := uc.intentRepo.GetByID(ctx, order.PaymentID)
	if err != nil {
		return err
	}

	code := uc.pool.invoke(ctx,
		func(callCtx context.Context) (domain.GatewayResultCode, error) {
			return uc.gateway.Capture(callCtx, "capture:"+order.ID, intent.PSPReference, order.Amount)
		},
		func(lateCode domain.GatewayResultCode) {
			// The timed-out call finished after all; apply its result
			// through the same guarded path, which discards it if the
			// order has already moved on.
			if err := uc.applyCaptureResult(context.WithoutCancel(ctx), order.ID, lateCode); err != nil {
				uc.logger.Warn().Err(err).Str("order_id", order.ID).Msg("late capture result discarded")
			}
		},
	)

	return uc.applyCaptureResult(ctx, order.ID, code)
}

// beginCapture moves the order into CAPTURE_REQUESTED, bumping the retry
// counter when the command is a retry. Returns nil for terminal orders.
func (uc *CaptureUseCase) beginCapture(ctx context.Context, cmd domain.CaptureCommand) (*domain.PaymentOrder, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := uc.orderRepo.GetByIDForUpdate(ctx, tx, cmd.PaymentOrderID)
	if err != nil {
		return nil, err
	}

	if order.IsTerminal() {
		return nil, nil
	}

	now := time.Now().UTC()

	if domain.IsRetryableStatus(order.Status) {
		if err := order.IncrementRetry(now); err != nil {
			return nil, err
		}
		order.WithRetryReason(cmd.RetryReason)

		if _, err := uc.retryCounter.Increment(ctx, order.ID); err != nil {
			uc.logger.Warn().Err(err).Str("order_id", order.ID).Msg("advisory retry counter increment failed")
		}
	} else if order.Status != domain.OrderCaptureRequested {
		if err := order.MarkCaptureRequested(now); err != nil {
			return nil, err
		}
	}

	if err := uc.orderRepo.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return order, nil
}

// applyCaptureResult applies one gateway outcome to the order. The status
// guard makes it safe for late and duplicate results: anything arriving
// after the order left CAPTURE_REQUESTED is discarded.
func (uc *CaptureUseCase) applyCaptureResult(ctx context.Context, orderID string, code domain.GatewayResultCode) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	order, err := uc.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	if order.Status != domain.OrderCaptureRequested {
		return nil
	}

	now := time.Now().UTC()

	switch domain.ClassifyGatewayCode(code) {
	case domain.BucketFinalSuccess:
		return uc.finalizeCaptured(ctx, tx, order, now)

	case domain.BucketFinalFailure:
		return uc.finalizeFailed(ctx, tx, order, string(code), now)

	default:
		status := domain.StatusForGatewayCode(code)
		if err := order.MarkAsFailed(status, string(code), now); err != nil {
			return err
		}

		if order.RetryCount >= uc.maxRetries {
			return uc.finalizeFailed(ctx, tx, order, "capture retries exhausted: "+string(code), now)
		}

		if err := uc.orderRepo.Update(ctx, tx, order); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		return uc.scheduleRetry(ctx, order, status)
	}
}

func (uc *CaptureUseCase) finalizeCaptured(ctx context.Context, tx Transaction, order *domain.PaymentOrder, now time.Time) error {
	if err := order.MarkAsPaid(now); err != nil {
		return err
	}

	if err := uc.orderRepo.Update(ctx, tx, order); err != nil {
		return err
	}

	journals, err := domain.AuthHoldAndCapture(order.ID, order.SellerID, order.Amount)
	if err != nil {
		return err
	}

	entries := make([]domain.LedgerEntryEventData, 0, len(journals))
	for _, journal := range journals {
		entries = append(entries, domain.LedgerEntryEventDataFrom(journal))
	}

	captured, err := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypePaymentOrderCaptured,
		domain.AggregateTypePaymentOrder,
		order.ID,
		domain.PaymentOrderCapturedEvent{
			PaymentOrderID: order.ID,
			PaymentID:      order.PaymentID,
			SellerID:       order.SellerID,
			Quantity:       order.Amount.Quantity,
			Currency:       order.Amount.Currency,
		},
		now,
	)
	if err != nil {
		return err
	}

	recording, err := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypeLedgerRecordingCmd,
		domain.AggregateTypePaymentOrder,
		order.ID,
		domain.LedgerRecordingCommand{Entries: entries},
		now,
	)
	if err != nil {
		return err
	}

	if err := uc.outboxRepo.SaveAll(ctx, tx, []*domain.OutboxEvent{captured, recording}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if err := uc.retryCounter.Reset(ctx, order.ID); err != nil {
		uc.logger.Warn().Err(err).Str("order_id", order.ID).Msg("advisory retry counter reset failed")
	}

	uc.logger.Info().
		Str("order_id", order.ID).
		Str("payment_id", order.PaymentID).
		Str("amount", order.Amount.Display()).
		Msg("payment order captured")

	return nil
}

func (uc *CaptureUseCase) finalizeFailed(ctx context.Context, tx Transaction, order *domain.PaymentOrder, reason string, now time.Time) error {
	if err := order.MarkAsFinalizedFailed(reason, now); err != nil {
		return err
	}

	if err := uc.orderRepo.Update(ctx, tx, order); err != nil {
		return err
	}

	event, err := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypePaymentOrderFailed,
		domain.AggregateTypePaymentOrder,
		order.ID,
		domain.PaymentOrderFailedEvent{
			PaymentOrderID: order.ID,
			PaymentID:      order.PaymentID,
			Reason:         reason,
			RetryCount:     order.RetryCount,
		},
		now,
	)
	if err != nil {
		return err
	}

	if err := uc.outboxRepo.Save(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	uc.logger.Warn().
		Str("order_id", order.ID).
		Str("reason", reason).
		Int("retry_count", order.RetryCount).
		Msg("payment order finalized as failed")

	return nil
}

func (uc *CaptureUseCase) scheduleRetry(ctx context.Context, order *domain.PaymentOrder, status domain.PaymentOrderStatus) error {
	nextRetry := order.RetryCount + 1

	envelope, err := newEnvelope(uc.idGen, domain.EventTypeCaptureCommand, order.ID, "", domain.CaptureCommand{
		PaymentOrderID: order.ID,
		PaymentID:      order.PaymentID,
		SellerID:       order.SellerID,
		Quantity:       order.Amount.Quantity,
		Currency:       order.Amount.Currency,
		RetryCount:     nextRetry,
		RetryReason:    string(status),
	})
	if err != nil {
		return err
	}

	item, err := domain.NewRetryItem(envelope)
	if err != nil {
		return err
	}

	backoff := BackoffForRetry(nextRetry)

	uc.logger.Info().
		Str("order_id", order.ID).
		Str("status", string(status)).
		Int("retry_count", nextRetry).
		Dur("backoff", backoff).
		Msg("capture retry scheduled")

	return uc.retryQueue.ScheduleRetry(ctx, item, backoff)
}
