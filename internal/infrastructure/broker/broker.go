package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
)

// Message is the unit carried between publisher and consumers.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// LogBroker is an in-process topic bus. Publish fans a message out to every
// subscription on the topic and logs it. Each subscription has its own
// buffer; a full buffer drops the delivery for that subscriber (the outbox
// redelivers after reclaim).
type LogBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	logger zerolog.Logger
	buffer int
}

// NewLogBroker creates a LogBroker.
func NewLogBroker(logger zerolog.Logger) *LogBroker {
	return &LogBroker{
		subs:   make(map[string][]chan Message),
		logger: logger,
		buffer: 256,
	}
}

// Publish delivers the message to all current subscribers of its topic.
func (b *LogBroker) Publish(ctx context.Context, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	b.logger.Debug().
		Str("topic", msg.Topic).
		Str("key", msg.Key).
		Int("bytes", len(msg.Value)).
		Msg("message published")

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[msg.Topic] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			b.logger.Warn().
				Str("topic", msg.Topic).
				Msg("subscriber buffer full, dropping delivery")
		}
	}

	return nil
}

// Subscribe returns a channel receiving every message published to topic
// from now on.
func (b *LogBroker) Subscribe(topic string) <-chan Message {
	ch := make(chan Message, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], ch)

	return ch
}

// Close closes every subscription channel. Publish must not be called
// after Close.
func (b *LogBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Message)
}

// Publisher adapts the LogBroker to the envelope-publishing port used by
// the outbox dispatcher and the use cases.
type Publisher struct {
	broker *LogBroker
}

// NewPublisher creates a Publisher over the given broker.
func NewPublisher(broker *LogBroker) *Publisher {
	return &Publisher{broker: broker}
}

// Publish serializes the envelope and hands it to the broker keyed by
// aggregate id.
func (p *Publisher) Publish(ctx context.Context, topic string, envelope domain.Envelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return p.broker.Publish(ctx, Message{
		Topic: topic,
		Key:   envelope.AggregateID,
		Value: value,
		Headers: map[string]string{
			"event-id":   envelope.EventID,
			"event-type": envelope.EventType,
		},
		Timestamp: envelope.Timestamp,
	})
}
