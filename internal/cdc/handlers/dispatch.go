package handlers

import (
	"context"

	"github.com/coreledger/ledgerd/internal/cdc"
)

// Handler processes one envelope. Errors cause the dispatcher to nack with
// requeue, per spec.md §4.D.
type Handler interface {
	Handle(ctx context.Context, env cdc.Envelope) error
}

// Dispatcher awaits every registered handler for a delivery, then acks or
// nacks according to spec.md §4.D: all handlers succeed → ack; any handler
// fails → nack with requeue.
type Dispatcher struct {
	handlers []Handler
}

// NewDispatcher constructs a Dispatcher invoking handlers in order.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Dispatch runs every handler against delivery.Envelope and settles it:
// all handlers succeed → ack; any handler fails → nack with requeue.
func (disp *Dispatcher) Dispatch(ctx context.Context, delivery cdc.Delivery) {
	for _, h := range disp.handlers {
		if err := h.Handle(ctx, delivery.Envelope); err != nil {
			delivery.Nack(true)
			return
		}
	}
	delivery.Ack()
}
