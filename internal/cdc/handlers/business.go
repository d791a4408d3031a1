package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/coreledger/ledgerd/internal/cdc"
	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/store"
)

// invoiceTagPrefix marks a transfer's UserTag as referencing a business
// object, e.g. "invoice:INV-2026-001".
const invoiceTagPrefix = "invoice:"

// TimeoutMonitor schedules or cancels timeout monitoring for a pending
// transfer. cmd/ledgerd wires NoOpTimeoutMonitor; tests supply a recording
// stub.
type TimeoutMonitor interface {
	Schedule(transferID ledgerid.TransferID, deadline ledger.Transfer)
	Cancel(transferID ledgerid.TransferID)
}

// BusinessHandler reacts to specific transfer lifecycle types, per
// spec.md §4.D: it writes transfer-history rows, marks invoice-tagged
// business objects, and drives timeout monitoring for pending transfers.
type BusinessHandler struct {
	historyStore store.TransferHistoryStore
	monitor      TimeoutMonitor

	mu          sync.Mutex
	seen        map[businessKey]bool
	markedTags  map[string]bool
}

type businessKey struct {
	transferID ledgerid.TransferID
	eventType  ledger.EventType
}

// NewBusinessHandler constructs a BusinessHandler writing history through
// historyStore and driving timeout scheduling through monitor.
func NewBusinessHandler(historyStore store.TransferHistoryStore, monitor TimeoutMonitor) *BusinessHandler {
	return &BusinessHandler{
		historyStore: historyStore,
		monitor:      monitor,
		seen:         make(map[businessKey]bool),
		markedTags:   make(map[string]bool),
	}
}

// Handle implements the handler signature invoked by the CDC consumer.
func (h *BusinessHandler) Handle(ctx context.Context, env cdc.Envelope) error {
	key := businessKey{transferID: env.Transfer.ID, eventType: env.EventType}

	h.mu.Lock()
	if h.seen[key] {
		h.mu.Unlock()
		return nil
	}
	h.seen[key] = true
	h.mu.Unlock()

	switch env.EventType {
	case ledger.EventSinglePhase, ledger.EventTwoPhasePosted:
		if err := h.writeHistory(ctx, env); err != nil {
			return err
		}
	case ledger.EventTwoPhasePending:
		if h.monitor != nil {
			h.monitor.Schedule(env.Transfer.ID, env.Transfer)
		}
	case ledger.EventTwoPhaseExpired, ledger.EventTwoPhaseVoided:
		if h.monitor != nil {
			h.monitor.Cancel(env.Transfer.ID)
		}
	}

	h.markInvoiceTag(env)
	return nil
}

func (h *BusinessHandler) writeHistory(ctx context.Context, env cdc.Envelope) error {
	var description *string
	if env.Transfer.UserTag != "" {
		tag := env.Transfer.UserTag
		description = &tag
	}
	return h.historyStore.InsertTransferHistory(ctx, store.TransferHistoryRecord{
		TransferID:    env.Transfer.ID,
		FromAccountID: env.Transfer.DebitAccountID,
		ToAccountID:   env.Transfer.CreditAccountID,
		Amount:        env.Transfer.Amount,
		Description:   description,
		CreatedAt:     env.Timestamp,
	})
}

func (h *BusinessHandler) markInvoiceTag(env cdc.Envelope) {
	tag := env.Transfer.UserTag
	if !strings.HasPrefix(tag, invoiceTagPrefix) {
		return
	}
	invoiceID := strings.TrimPrefix(tag, invoiceTagPrefix)
	if invoiceID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.markedTags[invoiceID] = true
}

// MarkedInvoices returns the set of invoice identifiers observed so far,
// for tests and operational inspection.
func (h *BusinessHandler) MarkedInvoices() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.markedTags))
	for id := range h.markedTags {
		out = append(out, id)
	}
	return out
}

// NoOpTimeoutMonitor discards schedule/cancel calls, used where timeout
// monitoring is not wired (e.g. audit-only consumers).
type NoOpTimeoutMonitor struct{}

func (NoOpTimeoutMonitor) Schedule(ledgerid.TransferID, ledger.Transfer) {}
func (NoOpTimeoutMonitor) Cancel(ledgerid.TransferID)                    {}

var _ TimeoutMonitor = NoOpTimeoutMonitor{}
