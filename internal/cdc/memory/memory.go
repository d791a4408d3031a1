// Package memory is an in-process cdc.Publisher/cdc.Consumer pair used by
// tests in place of the Kafka adapter: a buffered channel per bus instance,
// no network, no reconnect state machine (there is nothing to reconnect to).
package memory

import (
	"context"
	"sync"

	"github.com/coreledger/ledgerd/internal/cdc"
)

// Bus is an in-memory CDC transport: every Publish enqueues onto a shared
// channel; every Consume drains it.
type Bus struct {
	mu     sync.Mutex
	queue  chan cdc.Envelope
	closed bool
}

// New constructs a Bus with the given channel capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{queue: make(chan cdc.Envelope, capacity)}
}

var _ cdc.Publisher = (*Bus)(nil)
var _ cdc.Consumer = (*Bus)(nil)

// Publish enqueues env, blocking if the bus is full — at-least-once
// delivery depends on blocking rather than dropping, matching the ledger
// engine's own emit discipline.
func (b *Bus) Publish(ctx context.Context, env cdc.Envelope) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return cdc.ErrPublishUnavailable
	}
	b.mu.Unlock()

	select {
	case b.queue <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers every enqueued envelope to handle until ctx is done or
// Close is called. Ack/Nack are no-ops here: the in-memory bus has no
// offset to commit or redeliver against, so failed handling is observable
// only through the handler's own error return, not through requeueing.
func (b *Bus) Consume(ctx context.Context, handle func(cdc.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return cdc.ErrConsumeClosed
		case env, ok := <-b.queue:
			if !ok {
				return cdc.ErrConsumeClosed
			}
			handle(cdc.Delivery{
				Envelope: env,
				Ack:      func() error { return nil },
				Nack:     func(bool) error { return nil },
			})
		}
	}
}

// Close stops accepting new publishes and drains the queue for Consume.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.queue)
	return nil
}
