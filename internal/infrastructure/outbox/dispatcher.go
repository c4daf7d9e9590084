package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/infrastructure/metrics"
	"github.com/iho/payflow/internal/usecase"
)

// Dispatcher drains the outbox: it claims batches of NEW events, publishes
// them to the broker and marks them SENT. At-least-once: a crash between
// publish and mark means the event goes out again after reclaim, and
// consumers deduplicate on event id.
type Dispatcher struct {
	outboxRepo      usecase.OutboxRepository
	publisher       usecase.Publisher
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	workerID        string
	batchSize       int
	interval        time.Duration
	reclaimAge      time.Duration
	reclaimInterval time.Duration
}

// Config for Dispatcher.
type Config struct {
	OutboxRepo      usecase.OutboxRepository
	Publisher       usecase.Publisher
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	WorkerID        string
	BatchSize       int
	Interval        time.Duration
	ReclaimAge      time.Duration
	ReclaimInterval time.Duration
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.ReclaimAge == 0 {
		cfg.ReclaimAge = 5 * time.Minute
	}
	if cfg.ReclaimInterval == 0 {
		cfg.ReclaimInterval = time.Minute
	}

	return &Dispatcher{
		outboxRepo:      cfg.OutboxRepo,
		publisher:       cfg.Publisher,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		workerID:        cfg.WorkerID,
		batchSize:       cfg.BatchSize,
		interval:        cfg.Interval,
		reclaimAge:      cfg.ReclaimAge,
		reclaimInterval: cfg.ReclaimInterval,
	}
}

// Start runs the dispatch and reclaim loops until the context is
// cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info().
		Str("worker_id", d.workerID).
		Int("batch_size", d.batchSize).
		Dur("interval", d.interval).
		Msg("outbox dispatcher started")

	dispatch := time.NewTicker(d.interval)
	defer dispatch.Stop()

	reclaim := time.NewTicker(d.reclaimInterval)
	defer reclaim.Stop()

	// Drain whatever accumulated before startup.
	if err := d.dispatchBatch(ctx); err != nil {
		d.logger.Error().Err(err).Msg("outbox dispatch failed on start")
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("outbox dispatcher shutting down")
			return ctx.Err()
		case <-dispatch.C:
			if err := d.dispatchBatch(ctx); err != nil {
				d.logger.Error().Err(err).Msg("outbox dispatch failed")
			}
		case <-reclaim.C:
			if err := d.reclaimStuck(ctx); err != nil {
				d.logger.Error().Err(err).Msg("outbox reclaim failed")
			}
		}
	}
}

// dispatchBatch claims one batch and publishes it. A publish failure skips
// the event; it stays PROCESSING until the reclaimer hands it back.
func (d *Dispatcher) dispatchBatch(ctx context.Context) error {
	events, err := d.outboxRepo.FindBatchForDispatch(ctx, d.batchSize, d.workerID)
	if err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.OutboxLagTotal.Set(float64(len(events)))
	}

	if len(events) == 0 {
		return nil
	}

	sent := make([]*domain.OutboxEvent, 0, len(events))
	for _, event := range events {
		if err := d.publishEvent(ctx, event); err != nil {
			d.logger.Error().
				Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.EventType).
				Msg("failed to publish outbox event")
			continue
		}

		event.Status = domain.OutboxStatusSent
		sent = append(sent, event)

		if d.metrics != nil {
			d.metrics.OutboxPublished.WithLabelValues(event.EventType).Inc()
		}
	}

	if len(sent) == 0 {
		return nil
	}

	return d.outboxRepo.UpdateAll(ctx, sent)
}

func (d *Dispatcher) publishEvent(ctx context.Context, event *domain.OutboxEvent) error {
	envelope := domain.Envelope{
		EventID:     event.ID,
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		Data:        json.RawMessage(event.Payload),
		Timestamp:   event.CreatedAt,
	}

	return d.publisher.Publish(ctx, topicFor(event.AggregateType), envelope)
}

func (d *Dispatcher) reclaimStuck(ctx context.Context) error {
	n, err := d.outboxRepo.ReclaimStuckClaims(ctx, d.reclaimAge)
	if err != nil {
		return err
	}

	if n > 0 {
		d.logger.Warn().Int("count", n).Msg("reclaimed stuck outbox claims")
		if d.metrics != nil {
			d.metrics.OutboxReclaimed.Add(float64(n))
		}
	}

	return nil
}

// topicFor maps an aggregate type to its broker topic.
func topicFor(aggregateType string) string {
	return "payflow." + aggregateType
}
