package ledger

import (
	"sync"
	"time"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
)

// EventType names a transfer-lifecycle CDC event, per spec.md §4.B/§4.D.
type EventType string

const (
	EventSinglePhase     EventType = "single_phase"
	EventTwoPhasePending EventType = "two_phase_pending"
	EventTwoPhasePosted  EventType = "two_phase_posted"
	EventTwoPhaseVoided  EventType = "two_phase_voided"
	EventTwoPhaseExpired EventType = "two_phase_expired"
)

// Event is emitted exactly once per committed state transition, carrying
// the full transfer record plus snapshots of both involved accounts at
// commit time, per spec.md §4.B.
type Event struct {
	Type         EventType
	Timestamp    time.Time
	Transfer     Transfer
	DebitAccount Account
	CreditAccount Account
}

type accountEntry struct {
	account Account
}

// Engine is the ledger's in-process append-only store: accounts and
// transfers keyed by id with O(1) lookup, concurrent callers serialized
// through one engine-wide write lock, batches committed in arrival order.
type Engine struct {
	mapsMu    sync.RWMutex
	accounts  map[ledgerid.AccountID]*accountEntry
	transfers map[ledgerid.TransferID]*Transfer

	alloc ledgerid.Allocator
	clock func() time.Time

	// writeMu serializes every mutation of account counters or a
	// transfer's lifecycle state (createTransfers, lazy expiry), and
	// LookupAccounts takes it too so balance reads never see half a
	// transfer. There is no per-account lock: all writers share this one.
	writeMu sync.Mutex

	events chan Event
	// dropWhenFull is set when New allocated events itself.
	dropWhenFull bool
}

// New constructs an empty Engine. events, if non-nil, receives exactly one
// Event per committed transition; the caller (the CDC publisher) is
// responsible for draining it. If nil, an internal buffered channel is used
// and events are dropped once full — callers that need guaranteed delivery
// must supply their own channel.
func New(events chan Event) *Engine {
	dropWhenFull := false
	if events == nil {
		events = make(chan Event, 1024)
		dropWhenFull = true
	}
	return &Engine{
		accounts:     make(map[ledgerid.AccountID]*accountEntry),
		transfers:    make(map[ledgerid.TransferID]*Transfer),
		clock:        time.Now,
		events:       events,
		dropWhenFull: dropWhenFull,
	}
}

// Events returns the channel on which the engine publishes lifecycle events.
func (e *Engine) Events() <-chan Event { return e.events }

// emit hands the event to the configured channel. On a caller-supplied
// channel it blocks if the channel is full rather than drop the event:
// at-least-once delivery depends on every committed transition reaching
// the CDC publisher. On the internal channel New allocates, a full channel
// drops the event.
func (e *Engine) emit(ev Event) {
	if e.dropWhenFull {
		select {
		case e.events <- ev:
		default:
		}
		return
	}
	e.events <- ev
}

// CreateAccountRequest is one entry of a createAccounts batch.
type CreateAccountRequest struct {
	ID         ledgerid.AccountID // zero value means engine-allocated
	Currency   money.Currency
	Type       AccountType
	CustomerID ledgerid.CustomerID
	UserTag    string
}

// CreateAccountResult is the per-entry outcome of createAccounts.
type CreateAccountResult struct {
	ID  ledgerid.AccountID
	Err error
}

// CreateAccounts processes a batch of account-creation requests in arrival
// order. Each entry succeeds or fails independently; a failure in one entry
// never aborts the batch, per spec.md §4.B.
func (e *Engine) CreateAccounts(batch []CreateAccountRequest) []CreateAccountResult {
	results := make([]CreateAccountResult, len(batch))
	now := e.clock()

	for i, req := range batch {
		if !money.ValidCurrency(req.Currency) {
			results[i] = CreateAccountResult{Err: ErrAccountCodeInvalid}
			continue
		}
		if !validAccountType(req.Type) {
			results[i] = CreateAccountResult{Err: ErrAccountFlagsInvalid}
			continue
		}

		id := req.ID
		if id.IsZero() {
			id = ledgerid.NewAccountID(e.alloc.Next())
		}

		e.mapsMu.Lock()
		if _, exists := e.accounts[id]; exists {
			e.mapsMu.Unlock()
			results[i] = CreateAccountResult{Err: ErrAccountExists}
			continue
		}
		entry := &accountEntry{account: Account{
			ID:         id,
			Currency:   req.Currency,
			Type:       req.Type,
			CustomerID: req.CustomerID,
			UserTag:    req.UserTag,
			CreatedAt:  now,
		}}
		e.accounts[id] = entry
		e.mapsMu.Unlock()

		results[i] = CreateAccountResult{ID: id}
	}
	return results
}

func validAccountType(t AccountType) bool {
	switch t {
	case AccountDeposit, AccountLoan, AccountCredit, AccountEquity, AccountSuspense:
		return true
	default:
		return false
	}
}

// LookupAccounts returns, for each requested id, the current account state
// or nil if absent.
func (e *Engine) LookupAccounts(ids []ledgerid.AccountID) []*Account {
	out := make([]*Account, len(ids))
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	for i, id := range ids {
		e.mapsMu.RLock()
		entry, ok := e.accounts[id]
		e.mapsMu.RUnlock()
		if !ok {
			continue
		}
		acc := entry.account
		out[i] = &acc
	}
	return out
}

// LookupTransfers returns, for each requested id, the current transfer
// state (materializing lazy expiry on touch) or nil if absent.
func (e *Engine) LookupTransfers(ids []ledgerid.TransferID) []*Transfer {
	now := e.clock()
	out := make([]*Transfer, len(ids))
	for i, id := range ids {
		e.mapsMu.RLock()
		tr, ok := e.transfers[id]
		e.mapsMu.RUnlock()
		if !ok {
			continue
		}
		e.maybeExpire(tr, now)
		cp := *tr
		out[i] = &cp
	}
	return out
}
