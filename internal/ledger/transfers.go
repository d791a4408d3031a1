package ledger

import (
	"time"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
)

// CreateTransferRequest is one entry of a createTransfers batch.
type CreateTransferRequest struct {
	ID              ledgerid.TransferID // zero value means engine-allocated
	DebitAccountID  ledgerid.AccountID
	CreditAccountID ledgerid.AccountID
	Amount          money.Money
	Operation       OperationCode
	Kind            TransferKind
	PendingID       ledgerid.TransferID // required for OpPost/OpVoid
	Timeout         time.Duration       // only meaningful for OpPending
	UserTag         string
}

// CreateTransferResult is the per-entry outcome of createTransfers.
type CreateTransferResult struct {
	ID  ledgerid.TransferID
	Err error
}

// CreateTransfers processes a batch of transfer requests in arrival order.
// Expiration is sampled once per batch from the wall clock, per spec.md §4.B.
func (e *Engine) CreateTransfers(batch []CreateTransferRequest) []CreateTransferResult {
	now := e.clock()
	results := make([]CreateTransferResult, len(batch))

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	for i, req := range batch {
		switch req.Operation {
		case OpSinglePhase:
			results[i] = e.applySinglePhase(req, now)
		case OpPending:
			results[i] = e.applyPending(req, now)
		case OpPost:
			results[i] = e.applyPostOrVoid(req, now, true)
		case OpVoid:
			results[i] = e.applyPostOrVoid(req, now, false)
		default:
			results[i] = CreateTransferResult{Err: ErrAccountFlagsInvalid}
		}
	}
	return results
}

// lookupAccountsLocked returns the two account entries for a transfer,
// validating existence and shared ledger code. Caller must hold writeMu.
func (e *Engine) lookupAccountsLocked(debitID, creditID ledgerid.AccountID) (*accountEntry, *accountEntry, error) {
	e.mapsMu.RLock()
	debit, dok := e.accounts[debitID]
	credit, cok := e.accounts[creditID]
	e.mapsMu.RUnlock()
	if !dok || !cok {
		return nil, nil, ErrAccountNotFound
	}
	if debit.account.Currency != credit.account.Currency {
		return nil, nil, ErrLedgerMismatch
	}
	return debit, credit, nil
}

func (e *Engine) applySinglePhase(req CreateTransferRequest, now time.Time) CreateTransferResult {
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return CreateTransferResult{Err: ErrAmountZero}
	}
	debit, credit, err := e.lookupAccountsLocked(req.DebitAccountID, req.CreditAccountID)
	if err != nil {
		return CreateTransferResult{Err: err}
	}
	if debit.account.Currency != req.Amount.Currency() {
		return CreateTransferResult{Err: ErrLedgerMismatch}
	}

	id := req.ID
	if id.IsZero() {
		id = ledgerid.NewTransferID(e.alloc.Next())
	}
	e.mapsMu.Lock()
	if _, exists := e.transfers[id]; exists {
		e.mapsMu.Unlock()
		return CreateTransferResult{Err: ErrTransferExists}
	}
	e.mapsMu.Unlock()

	debit.account.DebitsPosted += req.Amount.Minor()
	credit.account.CreditsPosted += req.Amount.Minor()

	tr := &Transfer{
		ID:              id,
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		Amount:          req.Amount,
		Currency:        req.Amount.Currency(),
		Operation:       OpSinglePhase,
		Kind:            req.Kind,
		UserTag:         req.UserTag,
		State:           StateSinglePhase,
		CreatedAt:       now,
	}
	e.mapsMu.Lock()
	e.transfers[id] = tr
	e.mapsMu.Unlock()

	e.emit(Event{
		Type:          EventSinglePhase,
		Timestamp:     now,
		Transfer:      *tr,
		DebitAccount:  debit.account,
		CreditAccount: credit.account,
	})
	return CreateTransferResult{ID: id}
}

func (e *Engine) applyPending(req CreateTransferRequest, now time.Time) CreateTransferResult {
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return CreateTransferResult{Err: ErrAmountZero}
	}
	debit, credit, err := e.lookupAccountsLocked(req.DebitAccountID, req.CreditAccountID)
	if err != nil {
		return CreateTransferResult{Err: err}
	}
	if debit.account.Currency != req.Amount.Currency() {
		return CreateTransferResult{Err: ErrLedgerMismatch}
	}

	id := req.ID
	if id.IsZero() {
		id = ledgerid.NewTransferID(e.alloc.Next())
	}
	e.mapsMu.Lock()
	if _, exists := e.transfers[id]; exists {
		e.mapsMu.Unlock()
		return CreateTransferResult{Err: ErrTransferExists}
	}
	e.mapsMu.Unlock()

	debit.account.DebitsPending += req.Amount.Minor()
	credit.account.CreditsPending += req.Amount.Minor()

	var deadline time.Time
	if req.Timeout > 0 {
		deadline = now.Add(req.Timeout)
	}

	tr := &Transfer{
		ID:              id,
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		Amount:          req.Amount,
		Currency:        req.Amount.Currency(),
		Operation:       OpPending,
		Kind:            req.Kind,
		Timeout:         req.Timeout,
		Deadline:        deadline,
		UserTag:         req.UserTag,
		State:           StateTwoPhasePending,
		CreatedAt:       now,
	}
	e.mapsMu.Lock()
	e.transfers[id] = tr
	e.mapsMu.Unlock()

	e.emit(Event{
		Type:          EventTwoPhasePending,
		Timestamp:     now,
		Transfer:      *tr,
		DebitAccount:  debit.account,
		CreditAccount: credit.account,
	})
	return CreateTransferResult{ID: id}
}

// applyPostOrVoid resolves a pending transfer. Caller holds writeMu.
func (e *Engine) applyPostOrVoid(req CreateTransferRequest, now time.Time, post bool) CreateTransferResult {
	e.mapsMu.RLock()
	pending, ok := e.transfers[req.PendingID]
	e.mapsMu.RUnlock()
	if !ok {
		return CreateTransferResult{Err: ErrPendingNotFound}
	}

	e.expireLocked(pending, now)

	if pending.State != StateTwoPhasePending {
		if pending.State == StateTwoPhaseExpired {
			return CreateTransferResult{Err: ErrTimeout}
		}
		return CreateTransferResult{Err: ErrPendingAlreadyResolved}
	}

	e.mapsMu.RLock()
	debit := e.accounts[pending.DebitAccountID]
	credit := e.accounts[pending.CreditAccountID]
	e.mapsMu.RUnlock()
	if debit == nil || credit == nil {
		return CreateTransferResult{Err: ErrAccountNotFound}
	}

	debit.account.DebitsPending -= pending.Amount.Minor()
	credit.account.CreditsPending -= pending.Amount.Minor()

	var eventType EventType
	if post {
		debit.account.DebitsPosted += pending.Amount.Minor()
		credit.account.CreditsPosted += pending.Amount.Minor()
		pending.State = StateTwoPhasePosted
		eventType = EventTwoPhasePosted
	} else {
		pending.State = StateTwoPhaseVoided
		eventType = EventTwoPhaseVoided
	}

	id := req.ID
	if id.IsZero() {
		id = ledgerid.NewTransferID(e.alloc.Next())
	}
	resolution := &Transfer{
		ID:              id,
		DebitAccountID:  pending.DebitAccountID,
		CreditAccountID: pending.CreditAccountID,
		Amount:          pending.Amount,
		Currency:        pending.Currency,
		Operation:       req.Operation,
		Kind:            pending.Kind,
		PendingID:       req.PendingID,
		HasPendingID:    true,
		UserTag:         req.UserTag,
		State:           pending.State,
		CreatedAt:       now,
	}
	e.mapsMu.Lock()
	e.transfers[id] = resolution
	e.mapsMu.Unlock()

	e.emit(Event{
		Type:          eventType,
		Timestamp:     now,
		Transfer:      *resolution,
		DebitAccount:  debit.account,
		CreditAccount: credit.account,
	})
	return CreateTransferResult{ID: id}
}

// maybeExpire materializes a timed-out pending transfer lazily on touch,
// acquiring writeMu itself (for callers, like LookupTransfers, that are not
// already holding it).
func (e *Engine) maybeExpire(tr *Transfer, now time.Time) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.expireLocked(tr, now)
}

// expireLocked is the writeMu-held half of maybeExpire, reused by the
// post/void path so expiry and resolution share one lock acquisition.
func (e *Engine) expireLocked(tr *Transfer, now time.Time) {
	if tr.State != StateTwoPhasePending {
		return
	}
	if tr.Deadline.IsZero() || now.Before(tr.Deadline) {
		return
	}

	e.mapsMu.RLock()
	debit := e.accounts[tr.DebitAccountID]
	credit := e.accounts[tr.CreditAccountID]
	e.mapsMu.RUnlock()
	if debit == nil || credit == nil {
		// Accounts cannot outlive their transfers in this engine; defensive
		// only, nothing sensible to do but leave the transfer pending.
		return
	}

	debit.account.DebitsPending -= tr.Amount.Minor()
	credit.account.CreditsPending -= tr.Amount.Minor()
	tr.State = StateTwoPhaseExpired

	e.emit(Event{
		Type:          EventTwoPhaseExpired,
		Timestamp:     now,
		Transfer:      *tr,
		DebitAccount:  debit.account,
		CreditAccount: credit.account,
	})
}
