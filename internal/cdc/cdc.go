// Package cdc defines the change-data-capture bus contract: the envelope
// shape, the publisher/consumer interfaces, and handler dispatch, per
// spec.md §4.D. Concrete transports live in internal/cdc/kafka (production)
// and internal/cdc/memory (tests); dispatch is in internal/cdc/handlers.
package cdc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreledger/ledgerd/internal/ledger"
)

// RoutingKey names the topic/queue-binding derived from an event type.
type RoutingKey string

const (
	RoutingSinglePhase     RoutingKey = "single_phase"
	RoutingTwoPhasePending RoutingKey = "two_phase_pending"
	RoutingTwoPhasePosted  RoutingKey = "two_phase_posted"
	RoutingTwoPhaseVoided  RoutingKey = "two_phase_voided"
	RoutingTwoPhaseExpired RoutingKey = "two_phase_expired"
)

// RoutingKeyFor derives the routing key for an engine event type.
func RoutingKeyFor(t ledger.EventType) RoutingKey {
	switch t {
	case ledger.EventSinglePhase:
		return RoutingSinglePhase
	case ledger.EventTwoPhasePending:
		return RoutingTwoPhasePending
	case ledger.EventTwoPhasePosted:
		return RoutingTwoPhasePosted
	case ledger.EventTwoPhaseVoided:
		return RoutingTwoPhaseVoided
	case ledger.EventTwoPhaseExpired:
		return RoutingTwoPhaseExpired
	default:
		return RoutingKey("transfer.unknown")
	}
}

// Envelope is one message on the bus: an event type, timestamp, the full
// transfer record, both involved account snapshots, and a routing key
// derived from the event type, per spec.md §4.D / §6.
type Envelope struct {
	EventType     ledger.EventType `json:"event_type"`
	RoutingKey    RoutingKey       `json:"routing_key"`
	Timestamp     time.Time        `json:"timestamp"`
	Transfer      ledger.Transfer  `json:"transfer"`
	DebitAccount  ledger.Account   `json:"debit_account"`
	CreditAccount ledger.Account   `json:"credit_account"`
}

// FromEvent adapts an engine event into a wire envelope.
func FromEvent(ev ledger.Event) Envelope {
	return Envelope{
		EventType:     ev.Type,
		RoutingKey:    RoutingKeyFor(ev.Type),
		Timestamp:     ev.Timestamp,
		Transfer:      ev.Transfer,
		DebitAccount:  ev.DebitAccount,
		CreditAccount: ev.CreditAccount,
	}
}

// Key returns the idempotence key handlers must dedupe on: transfer_id ×
// event type, per spec.md §4.D.
func (e Envelope) Key() string {
	return fmt.Sprintf("%s:%s", e.Transfer.ID.String(), e.EventType)
}

// ErrPublishUnavailable is returned when the publisher cannot reach the bus.
var ErrPublishUnavailable = errors.New("cdc: publisher unavailable")

// ErrConsumeClosed is returned by Consume once the consumer has been
// shut down and will deliver no further messages.
var ErrConsumeClosed = errors.New("cdc: consumer closed")

// Publisher publishes envelopes to the bus, at-least-once, per spec.md §4.D.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Delivery is one message handed to a consumer, with Ack/Nack callbacks the
// caller must invoke exactly once.
type Delivery struct {
	Envelope Envelope
	Ack      func() error
	// Nack settles the message as failed. requeue controls whether the
	// message is redelivered (handler failure) or moved aside permanently
	// (poison/deserialization failure), per spec.md §4.D.
	Nack func(requeue bool) error
}

// Consumer delivers envelopes bound to a configured set of routing keys.
type Consumer interface {
	// Consume blocks until ctx is done or the transport has been shut down,
	// delivering each message to handle. Consume is responsible
	// for reconnecting on transport error per spec.md §4.D's backoff policy;
	// callers see only ErrConsumeClosed on deliberate shutdown.
	Consume(ctx context.Context, handle func(Delivery)) error
	Close() error
}

// ConnectionState names a CDC consumer's reconnect state machine position,
// per spec.md §4.D's Design Note.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDraining
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}
