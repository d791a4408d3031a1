package memory

import (
	"context"
	"testing"
	"time"

	"github.com/coreledger/ledgerd/internal/cdc"
	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
)

func testEnvelope(t *testing.T) cdc.Envelope {
	t.Helper()
	amt, err := money.New(1000, money.USD)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := ledger.Transfer{
		ID:     ledgerid.NewTransferID(ledgerid.New(0, 1)),
		Amount: amt,
		State:  ledger.StateSinglePhase,
	}
	return cdc.FromEvent(ledger.Event{
		Type:      ledger.EventSinglePhase,
		Timestamp: time.Now(),
		Transfer:  tr,
	})
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	b := New(4)
	env := testEnvelope(t)

	if err := b.Publish(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan cdc.Envelope, 1)
	go func() {
		_ = b.Consume(ctx, func(d cdc.Delivery) {
			received <- d.Envelope
			cancel()
		})
	}()

	select {
	case got := <-received:
		if got.Key() != env.Key() {
			t.Errorf("expected key %s, got %s", env.Key(), got.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := New(1)
	_ = b.Close()
	if err := b.Publish(context.Background(), testEnvelope(t)); err != cdc.ErrPublishUnavailable {
		t.Fatalf("expected ErrPublishUnavailable, got %v", err)
	}
}
