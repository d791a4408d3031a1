package ledger

import "errors"

// Per-entry failure reasons for createAccounts, per spec.md §4.B.
var (
	ErrAccountExists         = errors.New("ledger: account already exists")
	ErrAccountLedgerMismatch = errors.New("ledger: account ledger mismatch")
	ErrAccountCodeInvalid    = errors.New("ledger: account code invalid")
	ErrAccountFlagsInvalid   = errors.New("ledger: account flags invalid")
)

// Per-entry failure reasons for createTransfers, per spec.md §4.B.
var (
	ErrAccountNotFound        = errors.New("ledger: account not found")
	ErrLedgerMismatch         = errors.New("ledger: debit/credit accounts on different ledgers")
	ErrAmountZero             = errors.New("ledger: amount must be positive")
	ErrPendingNotFound        = errors.New("ledger: referenced pending transfer not found")
	ErrPendingAlreadyResolved = errors.New("ledger: pending transfer already resolved")
	ErrTimeout                = errors.New("ledger: pending transfer has timed out")
	ErrTransferExists         = errors.New("ledger: transfer already exists")
)
