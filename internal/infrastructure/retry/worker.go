package retry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/infrastructure/metrics"
	"github.com/iho/payflow/internal/usecase"
)

// AuthorizeHandler retries a pending authorization.
type AuthorizeHandler interface {
	HandleAuthorizeRetry(ctx context.Context, cmd domain.AuthorizeCommand) error
}

// CaptureHandler retries a pending capture.
type CaptureHandler interface {
	ExecuteCommand(ctx context.Context, cmd domain.CaptureCommand) error
}

// Worker polls the delayed retry queue and redelivers due commands to
// their handlers. Items stay inflight until the handler returns nil; a
// crashed worker's claims are swept back to pending by the reclaim loop.
type Worker struct {
	queue           usecase.RetryQueue
	authorize       AuthorizeHandler
	capture         CaptureHandler
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	pollInterval    time.Duration
	pollBatch       int
	reclaimAge      time.Duration
	reclaimInterval time.Duration
}

// Config for Worker.
type Config struct {
	Queue           usecase.RetryQueue
	Authorize       AuthorizeHandler
	Capture         CaptureHandler
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	PollInterval    time.Duration
	PollBatch       int
	ReclaimAge      time.Duration
	ReclaimInterval time.Duration
}

// NewWorker creates a new retry Worker.
func NewWorker(cfg Config) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollBatch == 0 {
		cfg.PollBatch = 50
	}
	if cfg.ReclaimAge == 0 {
		cfg.ReclaimAge = 10 * time.Minute
	}
	if cfg.ReclaimInterval == 0 {
		cfg.ReclaimInterval = time.Minute
	}

	return &Worker{
		queue:           cfg.Queue,
		authorize:       cfg.Authorize,
		capture:         cfg.Capture,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		pollInterval:    cfg.PollInterval,
		pollBatch:       cfg.PollBatch,
		reclaimAge:      cfg.ReclaimAge,
		reclaimInterval: cfg.ReclaimInterval,
	}
}

// Start runs the poll and reclaim loops until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().
		Dur("poll_interval", w.pollInterval).
		Int("poll_batch", w.pollBatch).
		Msg("retry worker started")

	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()

	reclaim := time.NewTicker(w.reclaimInterval)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("retry worker shutting down")
			return ctx.Err()
		case <-poll.C:
			if err := w.pollOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("retry poll failed")
			}
		case <-reclaim.C:
			if err := w.reclaimStale(ctx); err != nil {
				w.logger.Error().Err(err).Msg("retry reclaim failed")
			}
		}
	}
}

// pollOnce claims due items and delivers each to its handler. A failed
// delivery stays inflight; the reclaim loop returns it to pending after
// reclaimAge.
func (w *Worker) pollOnce(ctx context.Context) error {
	items, pollErr := w.queue.PollDueRetriesToInflight(ctx, w.pollBatch)

	// An errored poll can still hand back claimed items; deliver them
	// before surfacing the error.
	for _, item := range items {
		delivered, err := w.deliver(ctx, item)
		if err != nil {
			w.logger.Error().
				Err(err).
				Str("event_type", item.Envelope.EventType).
				Str("aggregate_id", item.Envelope.AggregateID).
				Msg("retry delivery failed, leaving inflight")
			continue
		}

		if err := w.queue.RemoveFromInflight(ctx, item); err != nil {
			w.logger.Error().Err(err).Msg("failed to remove delivered retry")
			continue
		}

		if delivered && w.metrics != nil {
			w.metrics.RetriesDelivered.Inc()
		}
	}

	return pollErr
}

// deliver routes the item to its handler. The boolean reports whether a
// handler ran it; unknown or undecodable items come back false with a nil
// error so the caller removes them from inflight exactly once, without
// counting them as delivered.
func (w *Worker) deliver(ctx context.Context, item domain.RetryItem) (bool, error) {
	switch item.Envelope.EventType {
	case domain.EventTypeAuthorizeCommand:
		var cmd domain.AuthorizeCommand
		if err := json.Unmarshal(item.Envelope.Data, &cmd); err != nil {
			w.logMalformed(item, err)
			return false, nil
		}
		if err := w.authorize.HandleAuthorizeRetry(ctx, cmd); err != nil {
			return false, err
		}
		return true, nil
	case domain.EventTypeCaptureCommand:
		var cmd domain.CaptureCommand
		if err := json.Unmarshal(item.Envelope.Data, &cmd); err != nil {
			w.logMalformed(item, err)
			return false, nil
		}
		if err := w.capture.ExecuteCommand(ctx, cmd); err != nil {
			return false, err
		}
		return true, nil
	default:
		// Unknown command type. Redelivering it forever helps nobody.
		w.logger.Warn().
			Str("event_type", item.Envelope.EventType).
			Msg("dropping retry item with unknown event type")
		return false, nil
	}
}

func (w *Worker) logMalformed(item domain.RetryItem, cause error) {
	w.logger.Error().
		Err(cause).
		Str("event_id", item.Envelope.EventID).
		Msg("dropping malformed retry payload")
}

func (w *Worker) reclaimStale(ctx context.Context) error {
	n, err := w.queue.ReclaimInflight(ctx, w.reclaimAge)
	if err != nil {
		return err
	}

	if n > 0 {
		w.logger.Warn().Int("count", n).Msg("reclaimed stale inflight retries")
		if w.metrics != nil {
			w.metrics.RetriesReclaimed.Add(float64(n))
		}
	}

	return nil
}
