// Package ledger is the strongly-consistent double-entry ledger engine:
// accounts, single- and two-phase transfers, balance invariants, and
// deterministic identifier allocation. Durability is delegated to whatever
// stores the host process configures; this package owns only the
// in-process append-only logs and the per-account serialization discipline.
package ledger

import (
	"time"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
)

// AccountType is one of the closed set of ledger account roles.
type AccountType string

const (
	AccountDeposit  AccountType = "DEPOSIT"
	AccountLoan     AccountType = "LOAN"
	AccountCredit   AccountType = "CREDIT"
	AccountEquity   AccountType = "EQUITY"
	AccountSuspense AccountType = "SUSPENSE"
)

// Account is a ledger book entry: two running posted totals and two
// running pending totals, scoped to one currency (the "ledger code").
type Account struct {
	ID             ledgerid.AccountID
	Currency       money.Currency
	Type           AccountType
	CustomerID     ledgerid.CustomerID
	DebitsPosted   int64
	CreditsPosted  int64
	DebitsPending  int64
	CreditsPending int64
	UserTag        string
	CreatedAt      time.Time
}

// Balance returns credits_posted - debits_posted, the definition used for
// DEPOSIT/LOAN/CREDIT accounts per spec.md §3.
func (a Account) Balance() (money.Money, error) {
	return moneyOf(a.CreditsPosted-a.DebitsPosted, a.Currency)
}

func moneyOf(minor int64, c money.Currency) (money.Money, error) {
	return money.New(minor, c)
}

// TransferState is the lifecycle state of a transfer.
type TransferState string

const (
	StateSinglePhase      TransferState = "SINGLE_PHASE"
	StateTwoPhasePending  TransferState = "TWO_PHASE_PENDING"
	StateTwoPhasePosted   TransferState = "TWO_PHASE_POSTED"
	StateTwoPhaseVoided   TransferState = "TWO_PHASE_VOIDED"
	StateTwoPhaseExpired  TransferState = "TWO_PHASE_EXPIRED"
)

// TransferKind tags the business purpose of a transfer. Spec.md §9 asks for
// a dedicated enum field rather than packed user-data integer slots.
type TransferKind string

const (
	KindOrdinary     TransferKind = "ORDINARY"
	KindDisbursement TransferKind = "DISBURSEMENT"
	KindLoanPayment  TransferKind = "LOAN_PAYMENT"
	KindSepaInbound  TransferKind = "SEPA_INBOUND"
	KindSepaOutbound TransferKind = "SEPA_OUTBOUND"
)

// OperationCode distinguishes the three createTransfers request shapes.
type OperationCode string

const (
	OpSinglePhase OperationCode = "SINGLE_PHASE"
	OpPending     OperationCode = "TWO_PHASE_PENDING"
	OpPost        OperationCode = "TWO_PHASE_POST"
	OpVoid        OperationCode = "TWO_PHASE_VOID"
)

// Transfer is a single movement (or reservation) between two accounts.
type Transfer struct {
	ID              ledgerid.TransferID
	DebitAccountID  ledgerid.AccountID
	CreditAccountID ledgerid.AccountID
	Amount          money.Money
	Currency        money.Currency
	Operation       OperationCode
	Kind            TransferKind
	PendingID       ledgerid.TransferID // set for POST/VOID; zero otherwise
	HasPendingID    bool
	Timeout         time.Duration // zero means no timeout
	Deadline        time.Time     // computed at creation when Timeout > 0
	UserTag         string
	State           TransferState
	CreatedAt       time.Time
}
