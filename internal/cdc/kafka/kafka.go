// Package kafka implements cdc.Publisher and cdc.Consumer against
// segmentio/kafka-go, grounded on the payment-network producer/consumer
// pair in the examples pack: one topic per routing key, kafka.Writer for
// publish, kafka.Reader with manual offset commit for ack, and an explicit
// reconnect state machine with exponential backoff for transport recovery.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/coreledger/ledgerd/internal/cdc"
)

// topicFor derives the physical topic name from a routing key: the bus
// "exchange" concept from spec.md §6 is implemented as a topic-name prefix.
func topicFor(exchange string, key cdc.RoutingKey) string {
	return fmt.Sprintf("%s.%s", exchange, key)
}

// Publisher publishes envelopes to one Kafka topic per routing key.
type Publisher struct {
	brokers  []string
	exchange string

	mu      sync.Mutex
	writers map[cdc.RoutingKey]*kafkago.Writer
}

// NewPublisher constructs a Publisher against brokers, namespacing topics
// under exchange.
func NewPublisher(brokers []string, exchange string) *Publisher {
	return &Publisher{
		brokers:  brokers,
		exchange: exchange,
		writers:  make(map[cdc.RoutingKey]*kafkago.Writer),
	}
}

var _ cdc.Publisher = (*Publisher)(nil)

func (p *Publisher) writerFor(key cdc.RoutingKey) *kafkago.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[key]; ok {
		return w
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(p.brokers...),
		Topic:        topicFor(p.exchange, key),
		Balancer:     &kafkago.Hash{}, // partition by message key (transfer id) to preserve per-transfer order
		Compression:  kafkago.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	p.writers[key] = w
	return w
}

// Publish writes env to its routing key's topic, keyed by transfer id so
// Kafka's partitioning preserves per-transfer ordering, per spec.md §4.D.
func (p *Publisher) Publish(ctx context.Context, env cdc.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cdc/kafka: encode envelope: %w", err)
	}
	w := p.writerFor(env.RoutingKey)
	if err := w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(env.Transfer.ID.String()),
		Value: payload,
		Time:  env.Timestamp,
	}); err != nil {
		return fmt.Errorf("%w: %v", cdc.ErrPublishUnavailable, err)
	}
	return nil
}

// Close closes every per-routing-key writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// backoff schedule from spec.md §4.D: initial 5s, doubling to a 30s ceiling.
const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Consumer consumes from one Kafka reader per routing key, dispatching
// deliveries to the caller's handle function and driving an explicit
// reconnect state machine on transport error.
type Consumer struct {
	brokers     []string
	exchange    string
	group       string
	routingKeys []cdc.RoutingKey
	deadLetter  *kafkago.Writer

	mu    sync.Mutex
	state cdc.ConnectionState
}

// NewConsumer constructs a Consumer bound to routingKeys under a consumer
// group, with deadLetterTopic receiving poison (undeserializable) messages.
func NewConsumer(brokers []string, exchange, group string, routingKeys []cdc.RoutingKey, deadLetterTopic string) *Consumer {
	return &Consumer{
		brokers:     brokers,
		exchange:    exchange,
		group:       group,
		routingKeys: routingKeys,
		deadLetter: &kafkago.Writer{
			Addr:  kafkago.TCP(brokers...),
			Topic: deadLetterTopic,
		},
	}
}

var _ cdc.Consumer = (*Consumer)(nil)

// State returns the consumer's current reconnect-state-machine position.
func (c *Consumer) State() cdc.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Consumer) setState(s cdc.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Consume runs one reader per routing key concurrently, reconnecting each
// on transport error with exponential backoff, until ctx is done.
func (c *Consumer) Consume(ctx context.Context, handle func(cdc.Delivery)) error {
	if len(c.routingKeys) == 0 {
		return errors.New("cdc/kafka: no routing keys configured")
	}

	var wg sync.WaitGroup
	for _, key := range c.routingKeys {
		wg.Add(1)
		go func(key cdc.RoutingKey) {
			defer wg.Done()
			c.consumeTopic(ctx, key, handle)
		}(key)
	}
	wg.Wait()
	return cdc.ErrConsumeClosed
}

func (c *Consumer) consumeTopic(ctx context.Context, key cdc.RoutingKey, handle func(cdc.Delivery)) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(cdc.StateConnecting)
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: c.brokers,
			Topic:   topicFor(c.exchange, key),
			GroupID: c.group,
		})
		c.setState(cdc.StateConnected)

		err := c.drain(ctx, reader, handle)
		c.setState(cdc.StateDraining)
		_ = reader.Close()
		c.setState(cdc.StateDisconnected)

		if ctx.Err() != nil || errors.Is(err, cdc.ErrConsumeClosed) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// drain reads messages from reader until ctx is done or a transport error
// occurs; per-message deserialization failures are poison messages, moved
// to the dead-letter topic rather than requeued, per spec.md §4.D.
func (c *Consumer) drain(ctx context.Context, reader *kafkago.Reader, handle func(cdc.Delivery)) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return cdc.ErrConsumeClosed
			}
			return err
		}

		var env cdc.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			c.sendToDeadLetter(ctx, msg)
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		handle(cdc.Delivery{
			Envelope: env,
			Ack: func() error {
				return reader.CommitMessages(ctx, msg)
			},
			Nack: func(requeue bool) error {
				if !requeue {
					c.sendToDeadLetter(ctx, msg)
					return reader.CommitMessages(ctx, msg)
				}
				// leaving the offset uncommitted stands in for
				// nack-with-requeue: the next poll redelivers it.
				return nil
			},
		})
	}
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg kafkago.Message) {
	_ = c.deadLetter.WriteMessages(ctx, kafkago.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
	})
}

// Close closes the dead-letter writer; per-topic readers close themselves
// once Consume's context is cancelled.
func (c *Consumer) Close() error {
	return c.deadLetter.Close()
}
