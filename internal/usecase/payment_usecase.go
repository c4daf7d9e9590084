package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
)

var (
	// ErrAuthorizationPending signals a transient processor condition;
	// the caller gets an accepted/processing answer and polls status
	// while the retry machinery works in the background.
	ErrAuthorizationPending = errors.New("authorization pending, retry scheduled")
)

// PaymentUseCase drives the payment intent through creation and
// authorization against the external processor.
type PaymentUseCase struct {
	txManager  TransactionManager
	intentRepo PaymentIntentRepository
	orderRepo  PaymentOrderRepository
	outboxRepo OutboxRepository
	retryQueue RetryQueue
	gateway    Gateway
	idGen      IDGenerator
	logger     zerolog.Logger
	pool       *gatewayPool
	maxRetries int
}

// PaymentConfig carries the knobs for PaymentUseCase.
type PaymentConfig struct {
	GatewayPoolSize    int
	GatewayCallTimeout time.Duration
	MaxAuthRetries     int
}

// NewPaymentUseCase creates a new PaymentUseCase.
func NewPaymentUseCase(
	txManager TransactionManager,
	intentRepo PaymentIntentRepository,
	orderRepo PaymentOrderRepository,
	outboxRepo OutboxRepository,
	retryQueue RetryQueue,
	gateway Gateway,
	idGen IDGenerator,
	logger zerolog.Logger,
	cfg PaymentConfig,
) *PaymentUseCase {
	maxRetries := cfg.MaxAuthRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxCaptureRetries
	}

	return &PaymentUseCase{
		txManager:  txManager,
		intentRepo: intentRepo,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		retryQueue: retryQueue,
		gateway:    gateway,
		idGen:      idGen,
		logger:     logger,
		pool:       newGatewayPool(cfg.GatewayPoolSize, cfg.GatewayCallTimeout),
		maxRetries: maxRetries,
	}
}

// OrderLineInput is one seller's share in a create request.
type OrderLineInput struct {
	SellerID string
	Quantity int64
}

// CreatePaymentInput represents input for creating a payment intent.
type CreatePaymentInput struct {
	BuyerID    string
	OrderID    string
	Quantity   int64
	Currency   string
	OrderLines []OrderLineInput
}

// CreatePayment persists a new intent and registers it with the processor.
// The returned intent carries the transient client secret for the caller's
// response; it is never persisted.
func (uc *PaymentUseCase) CreatePayment(ctx context.Context, input CreatePaymentInput) (*domain.PaymentIntent, error) {
	total, err := domain.NewAmount(input.Quantity, input.Currency)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.OrderLine, 0, len(input.OrderLines))
	for _, l := range input.OrderLines {
		amount, err := domain.NewAmount(l.Quantity, input.Currency)
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.OrderLine{SellerID: l.SellerID, Amount: amount})
	}

	now := time.Now().UTC()
	intent, err := domain.NewPaymentIntent(uc.idGen.Generate(), input.BuyerID, input.OrderID, total, lines, now)
	if err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.intentRepo.Create(ctx, tx, intent); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.pool.timeout)
	defer cancel()

	gi, err := uc.gateway.CreateIntent(callCtx, "intent:"+intent.ID, intent)
	if err != nil {
		return nil, fmt.Errorf("gateway create intent: %w", err)
	}

	tx, err = uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	stored, err := uc.intentRepo.GetByIDForUpdate(ctx, tx, intent.ID)
	if err != nil {
		return nil, err
	}

	if err := stored.MarkAsCreatedWithPSPReferenceAndClientSecret(gi.PSPReference, gi.ClientSecret, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := uc.intentRepo.Update(ctx, tx, stored); err != nil {
		return nil, err
	}

	event, err := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypePaymentCreated,
		domain.AggregateTypePayment,
		stored.ID,
		domain.PaymentAuthorizedEvent{PaymentID: stored.ID, PSPReference: stored.PSPReference, Quantity: total.Quantity, Currency: total.Currency},
		time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	if err := uc.outboxRepo.Save(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return stored, nil
}

// Authorize confirms the intent with the processor and, on success, creates
// the per-seller payment orders and their capture commands.
func (uc *PaymentUseCase) Authorize(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := uc.intentRepo.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}

	if err := intent.MarkAuthorizedPending(time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := uc.intentRepo.Update(ctx, tx, intent); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	code := uc.pool.invoke(ctx,
		func(callCtx context.Context) (domain.GatewayResultCode, error) {
			return uc.gateway.ConfirmIntent(callCtx, "authorize:"+intent.ID, intent.PSPReference)
		},
		func(lateCode domain.GatewayResultCode) {
			// Late completion after a timeout: reconcile through the
			// same idempotent path.
			if _, err := uc.applyAuthResult(context.WithoutCancel(ctx), paymentID, lateCode, 0); err != nil {
				uc.logger.Warn().Err(err).Str("payment_id", paymentID).Msg("late authorization result discarded")
			}
		},
	)

	return uc.applyAuthResult(ctx, paymentID, code, 0)
}

// HandleAuthorizeRetry re-attempts a transiently failed authorization on
// behalf of the retry worker.
func (uc *PaymentUseCase) HandleAuthorizeRetry(ctx context.Context, cmd domain.AuthorizeCommand) error {
	intent, err := uc.intentRepo.GetByID(ctx, cmd.PaymentID)
	if err != nil {
		return err
	}

	// Redelivered after the outcome already landed: nothing to do.
	if intent.Status != domain.IntentPendingAuth {
		return nil
	}

	code := uc.pool.invoke(ctx,
		func(callCtx context.Context) (domain.GatewayResultCode, error) {
			return uc.gateway.ConfirmIntent(callCtx, "authorize:"+intent.ID, intent.PSPReference)
		},
		nil,
	)

	_, err = uc.applyAuthResult(ctx, cmd.PaymentID, code, cmd.RetryCount)
	if errors.Is(err, ErrAuthorizationPending) {
		return nil
	}

	return err
}

func (uc *PaymentUseCase) applyAuthResult(ctx context.Context, paymentID string, code domain.GatewayResultCode, retryCount int) (*domain.PaymentIntent, error) {
	switch domain.ClassifyGatewayCode(code) {
	case domain.BucketFinalSuccess:
		return uc.finalizeAuthorized(ctx, paymentID)
	case domain.BucketFinalFailure:
		return uc.finalizeDeclined(ctx, paymentID, string(code))
	default:
		if retryCount >= uc.maxRetries {
			return uc.finalizeDeclined(ctx, paymentID, "authorization retries exhausted: "+string(code))
		}

		if err := uc.scheduleAuthRetry(ctx, paymentID, retryCount+1); err != nil {
			return nil, err
		}

		return nil, ErrAuthorizationPending
	}
}

func (uc *PaymentUseCase) finalizeAuthorized(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := uc.intentRepo.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}

	// A late or redelivered result lands here after the intent already
	// moved on; discard instead of corrupting state.
	if intent.Status != domain.IntentPendingAuth {
		return intent, nil
	}

	now := time.Now().UTC()
	if err := intent.MarkAuthorized(now); err != nil {
		return nil, err
	}

	if err := uc.intentRepo.Update(ctx, tx, intent); err != nil {
		return nil, err
	}

	orders := make([]*domain.PaymentOrder, 0, len(intent.OrderLines))
	for _, line := range intent.OrderLines {
		order, err := domain.NewPaymentOrder(uc.idGen.Generate(), intent.ID, line.SellerID, line.Amount, now)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := uc.orderRepo.CreateBatch(ctx, tx, orders); err != nil {
		return nil, err
	}

	events := make([]*domain.OutboxEvent, 0, len(orders)+1)

	orderIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		orderIDs = append(orderIDs, order.ID)
	}

	authorized, err := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypePaymentAuthorized,
		domain.AggregateTypePayment,
		intent.ID,
		domain.PaymentAuthorizedEvent{
			PaymentID:    intent.ID,
			PSPReference: intent.PSPReference,
			Quantity:     intent.TotalAmount.Quantity,
			Currency:     intent.TotalAmount.Currency,
			OrderIDs:     orderIDs,
		},
		now,
	)
	if err != nil {
		return nil, err
	}
	events = append(events, authorized)

	for _, order := range orders {
		capture, err := domain.NewOutboxEvent(
			uc.idGen.Generate(),
			domain.EventTypeCaptureCommand,
			domain.AggregateTypePaymentOrder,
			order.ID,
			domain.CaptureCommand{
				PaymentOrderID: order.ID,
				PaymentID:      order.PaymentID,
				SellerID:       order.SellerID,
				Quantity:       order.Amount.Quantity,
				Currency:       order.Amount.Currency,
			},
			now,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, capture)
	}

	if err := uc.outboxRepo.SaveAll(ctx, tx, events); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	uc.logger.Info().
		Str("payment_id", intent.ID).
		Int("orders", len(orders)).
		Msg("payment authorized")

	return intent, nil
}

func (uc *PaymentUseCase) finalizeDeclined(ctx context.Context, paymentID, reason string) (*domain.PaymentIntent, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := uc.intentRepo.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}

	if intent.Status != domain.IntentPendingAuth {
		return intent, nil
	}

	now := time.Now().UTC()
	if err := intent.MarkDeclined(now); err != nil {
		return nil, err
	}

	if err := uc.intentRepo.Update(ctx, tx, intent); err != nil {
		return nil, err
	}

	event, err := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypePaymentDeclined,
		domain.AggregateTypePayment,
		intent.ID,
		domain.PaymentDeclinedEvent{PaymentID: intent.ID, PSPReference: intent.PSPReference, Reason: reason},
		now,
	)
	if err != nil {
		return nil, err
	}

	if err := uc.outboxRepo.Save(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return intent, nil
}

func (uc *PaymentUseCase) scheduleAuthRetry(ctx context.Context, paymentID string, retryCount int) error {
	intent, err := uc.intentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	envelope, err := newEnvelope(uc.idGen, domain.EventTypeAuthorizeCommand, paymentID, "", domain.AuthorizeCommand{
		PaymentID:    paymentID,
		PSPReference: intent.PSPReference,
		RetryCount:   retryCount,
	})
	if err != nil {
		return err
	}

	item, err := domain.NewRetryItem(envelope)
	if err != nil {
		return err
	}

	backoff := BackoffForRetry(retryCount)

	uc.logger.Info().
		Str("payment_id", paymentID).
		Int("retry_count", retryCount).
		Dur("backoff", backoff).
		Msg("authorization retry scheduled")

	return uc.retryQueue.ScheduleRetry(ctx, item, backoff)
}

// Cancel cancels an intent that has not reached a terminal state.
func (uc *PaymentUseCase) Cancel(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := uc.intentRepo.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := intent.MarkCancelled(now); err != nil {
		return nil, err
	}

	if err := uc.intentRepo.Update(ctx, tx, intent); err != nil {
		return nil, err
	}

	event, err := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.EventTypePaymentCancelled,
		domain.AggregateTypePayment,
		intent.ID,
		domain.PaymentDeclinedEvent{PaymentID: intent.ID, PSPReference: intent.PSPReference, Reason: "cancelled"},
		now,
	)
	if err != nil {
		return nil, err
	}

	if err := uc.outboxRepo.Save(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return intent, nil
}

// GetPayment retrieves a payment intent by ID.
func (uc *PaymentUseCase) GetPayment(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	return uc.intentRepo.GetByID(ctx, paymentID)
}

// ListOrders lists the payment orders under an intent.
func (uc *PaymentUseCase) ListOrders(ctx context.Context, paymentID string) ([]*domain.PaymentOrder, error) {
	return uc.orderRepo.ListByPayment(ctx, paymentID)
}

// RetrieveClientSecret fetches the client secret from the processor for an
// intent whose in-memory secret is gone.
func (uc *PaymentUseCase) RetrieveClientSecret(ctx context.Context, paymentID string) (string, error) {
	intent, err := uc.intentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return "", err
	}

	if intent.PSPReference == "" {
		return "", domain.ErrMissingPSPReference
	}

	return uc.gateway.RetrieveClientSecret(ctx, intent.PSPReference)
}
