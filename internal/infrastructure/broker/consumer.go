package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/infrastructure/metrics"
)

// Handler processes one decoded envelope.
type Handler func(ctx context.Context, envelope domain.Envelope) error

// Retrier re-runs a handler on transient failures before the consumer
// gives up on the delivery.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Consumer drains one topic for a consumer group, routing envelopes to
// handlers by event type. A delivery that cannot be decoded, has no
// handler, or exhausts its retries goes to <topic>.dlq; the partition
// never blocks on a poison message.
type Consumer struct {
	broker  *LogBroker
	topic   string
	group   string
	handler map[string]Handler
	retrier Retrier
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// ConsumerConfig for Consumer.
type ConsumerConfig struct {
	Broker   *LogBroker
	Topic    string
	Group    string
	Handlers map[string]Handler
	Retrier  Retrier
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// NewConsumer creates a Consumer.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		broker:  cfg.Broker,
		topic:   cfg.Topic,
		group:   cfg.Group,
		handler: cfg.Handlers,
		retrier: cfg.Retrier,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	ch := c.broker.Subscribe(c.topic)

	c.logger.Info().
		Str("topic", c.topic).
		Str("group", c.group).
		Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("topic", c.topic).Msg("consumer shutting down")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				c.logger.Info().Str("topic", c.topic).Msg("broker closed, consumer stopping")
				return nil
			}
			c.consume(ctx, msg)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, msg Message) {
	var envelope domain.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		c.deadletter(ctx, msg, "decode_error", err)
		return
	}

	handler, ok := c.handler[envelope.EventType]
	if !ok {
		c.deadletter(ctx, msg, "unhandled_event_type",
			fmt.Errorf("no handler for event type %q", envelope.EventType))
		return
	}

	err := c.handle(ctx, handler, envelope)
	if err != nil {
		c.deadletter(ctx, msg, "handler_error", err)
		return
	}

	if c.metrics != nil {
		c.metrics.MessagesConsumed.WithLabelValues(envelope.EventType, "ok").Inc()
	}
}

// handle runs the handler under the retrier and converts panics into
// errors so one poison payload cannot take the consumer down.
func (c *Consumer) handle(ctx context.Context, handler Handler, envelope domain.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	operation := func() error { return handler(ctx, envelope) }
	if c.retrier != nil {
		return c.retrier.Retry(ctx, operation)
	}
	return operation()
}

// deadletter parks a failed delivery on <topic>.dlq with enough context
// headers to triage and replay it.
func (c *Consumer) deadletter(ctx context.Context, msg Message, errorClass string, cause error) {
	c.logger.Error().
		Err(cause).
		Str("topic", c.topic).
		Str("group", c.group).
		Str("error_class", errorClass).
		Msg("delivery failed, routing to dlq")

	if c.metrics != nil {
		if errorClass == "handler_error" {
			c.metrics.MessagesConsumed.WithLabelValues(headerOr(msg.Headers, "event-type", "unknown"), "error").Inc()
		}
		c.metrics.MessagesDeadlettered.WithLabelValues(c.topic + ".dlq").Inc()
	}

	headers := make(map[string]string, len(msg.Headers)+5)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-error-class"] = errorClass
	headers["x-error-message"] = cause.Error()
	headers["x-error-stacktrace"] = string(debug.Stack())
	headers["x-recovered-at"] = time.Now().UTC().Format(time.RFC3339Nano)
	headers["x-consumer-group"] = c.group

	dlq := Message{
		Topic:     c.topic + ".dlq",
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Timestamp: time.Now().UTC(),
	}

	if err := c.broker.Publish(ctx, dlq); err != nil {
		c.logger.Error().Err(err).Msg("failed to publish to dlq")
	}
}

func headerOr(headers map[string]string, key, fallback string) string {
	if v, ok := headers[key]; ok && v != "" {
		return v
	}
	return fallback
}
