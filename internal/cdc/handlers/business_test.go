package handlers

import (
	"context"
	"testing"

	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/store/memory"
)

type recordingMonitor struct {
	scheduled []ledgerid.TransferID
	cancelled []ledgerid.TransferID
}

func (m *recordingMonitor) Schedule(id ledgerid.TransferID, _ ledger.Transfer) {
	m.scheduled = append(m.scheduled, id)
}

func (m *recordingMonitor) Cancel(id ledgerid.TransferID) {
	m.cancelled = append(m.cancelled, id)
}

func TestBusinessHandlerWritesHistoryOnSinglePhase(t *testing.T) {
	st := memory.New()
	h := NewBusinessHandler(st, &recordingMonitor{})
	a := ledgerid.NewAccountID(ledgerid.New(0, 1))
	b := ledgerid.NewAccountID(ledgerid.New(0, 2))
	env := testEnvelope(t, a, b, 500)

	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recent, err := st.ListRecentTransferHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(recent))
	}
	if recent[0].Amount.Minor() != 500 {
		t.Errorf("expected amount 500, got %d", recent[0].Amount.Minor())
	}
}

func TestBusinessHandlerSchedulesAndCancelsTimeout(t *testing.T) {
	st := memory.New()
	monitor := &recordingMonitor{}
	h := NewBusinessHandler(st, monitor)
	a := ledgerid.NewAccountID(ledgerid.New(0, 1))
	b := ledgerid.NewAccountID(ledgerid.New(0, 2))

	pendingEnv := testEnvelope(t, a, b, 500)
	pendingEnv.EventType = ledger.EventTwoPhasePending
	if err := h.Handle(context.Background(), pendingEnv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(monitor.scheduled) != 1 {
		t.Fatalf("expected timeout scheduled, got %d", len(monitor.scheduled))
	}

	expiredEnv := pendingEnv
	expiredEnv.EventType = ledger.EventTwoPhaseExpired
	if err := h.Handle(context.Background(), expiredEnv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(monitor.cancelled) != 1 {
		t.Fatalf("expected timeout cancelled, got %d", len(monitor.cancelled))
	}
}

func TestBusinessHandlerMarksInvoiceTag(t *testing.T) {
	st := memory.New()
	h := NewBusinessHandler(st, &recordingMonitor{})
	a := ledgerid.NewAccountID(ledgerid.New(0, 1))
	b := ledgerid.NewAccountID(ledgerid.New(0, 2))

	env := testEnvelope(t, a, b, 500)
	env.Transfer.UserTag = "invoice:INV-2026-001"

	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	marked := h.MarkedInvoices()
	if len(marked) != 1 || marked[0] != "INV-2026-001" {
		t.Fatalf("expected invoice INV-2026-001 marked, got %v", marked)
	}
}
