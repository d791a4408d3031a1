// Package handlers implements the CDC consumer's dispatch targets: the
// audit handler (append-only compliance log) and the business handler
// (transfer-history writes, invoice-tag marking, timeout scheduling),
// per spec.md §4.D. Grounded on the teacher's internal/websocket event/hub/
// publisher trio, generalized from WebSocket fan-out to idempotent CDC
// dispatch.
package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coreledger/ledgerd/internal/cdc"
	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
)

// AuditRecord is one row of the append-only audit log, keyed by
// (transfer_id, event type) for idempotent replay per spec.md §4.D/§8.
type AuditRecord struct {
	TransferID    ledgerid.TransferID
	EventType     ledger.EventType
	Timestamp     time.Time
	Amount        money.Money
	DebitAccount  ledger.Account
	CreditAccount ledger.Account
}

type auditKey struct {
	transferID ledgerid.TransferID
	eventType  ledger.EventType
}

// AuditHandler appends every delivered event to an in-process log, deduped
// by (transfer_id, event type) so replaying a delivery is a no-op — the
// idempotence law from spec.md §8.
type AuditHandler struct {
	mu      sync.Mutex
	seen    map[auditKey]bool
	records []AuditRecord
}

// NewAuditHandler constructs an empty AuditHandler.
func NewAuditHandler() *AuditHandler {
	return &AuditHandler{seen: make(map[auditKey]bool)}
}

// Handle implements the handler signature invoked by the CDC consumer.
func (h *AuditHandler) Handle(_ context.Context, env cdc.Envelope) error {
	key := auditKey{transferID: env.Transfer.ID, eventType: env.EventType}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen[key] {
		return nil
	}
	h.seen[key] = true
	h.records = append(h.records, AuditRecord{
		TransferID:    env.Transfer.ID,
		EventType:     env.EventType,
		Timestamp:     env.Timestamp,
		Amount:        env.Transfer.Amount,
		DebitAccount:  env.DebitAccount,
		CreditAccount: env.CreditAccount,
	})
	return nil
}

// Filter narrows a ListEvents query.
type Filter struct {
	AccountID *ledgerid.AccountID
	EventType *ledger.EventType
	From, To  time.Time
}

// ListEvents returns audit records matching filter, oldest first.
func (h *AuditHandler) ListEvents(filter Filter) []AuditRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []AuditRecord
	for _, r := range h.records {
		if filter.EventType != nil && r.EventType != *filter.EventType {
			continue
		}
		if filter.AccountID != nil && r.DebitAccount.ID != *filter.AccountID && r.CreditAccount.ID != *filter.AccountID {
			continue
		}
		if !filter.From.IsZero() && r.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && r.Timestamp.After(filter.To) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// ComplianceSummary aggregates audit activity for one account over a date
// range: count per event type and the net posted movement (credits minus
// debits, minor units).
type ComplianceSummary struct {
	AccountID      ledgerid.AccountID
	From, To       time.Time
	EventCounts    map[ledger.EventType]int
	NetPostedMinor int64
}

// Summarize produces a ComplianceSummary for accountID over [from, to].
// Only single_phase and two_phase_posted events move posted balances.
func (h *AuditHandler) Summarize(accountID ledgerid.AccountID, from, to time.Time) ComplianceSummary {
	summary := ComplianceSummary{
		AccountID:   accountID,
		From:        from,
		To:          to,
		EventCounts: make(map[ledger.EventType]int),
	}
	for _, r := range h.ListEvents(Filter{AccountID: &accountID, From: from, To: to}) {
		summary.EventCounts[r.EventType]++
		if r.EventType != ledger.EventSinglePhase && r.EventType != ledger.EventTwoPhasePosted {
			continue
		}
		switch accountID {
		case r.CreditAccount.ID:
			summary.NetPostedMinor += r.Amount.Minor()
		case r.DebitAccount.ID:
			summary.NetPostedMinor -= r.Amount.Minor()
		}
	}
	return summary
}
