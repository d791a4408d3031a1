package sepa

import (
	"time"

	"github.com/coreledger/ledgerd/internal/money"
)

// Direction distinguishes an outgoing SEPA credit transfer from an
// incoming one, per spec.md §3.
type Direction string

const (
	DirectionOutgoing Direction = "OUTGOING"
	DirectionIncoming Direction = "INCOMING"
)

// Urgency is the requested processing speed, driving both cut-off/weekend
// rules and settlement scheduling, per spec.md §4.G.
type Urgency string

const (
	UrgencyStandard Urgency = "STANDARD"
	UrgencyExpress  Urgency = "EXPRESS"
	UrgencyInstant  Urgency = "INSTANT"
)

// ResponseState is the outcome of validation and business-rule evaluation.
type ResponseState string

const (
	ResponseAccepted ResponseState = "ACCEPTED"
	ResponseRejected ResponseState = "REJECTED"
	ResponsePending  ResponseState = "PENDING"
)

// TransferState is the settlement lifecycle of an accepted message.
type TransferState string

const (
	TransferPending TransferState = "PENDING"
	TransferSettled TransferState = "SETTLED"
	TransferFailed  TransferState = "FAILED"
)

// ErrorCode enumerates the rejection/failure reasons from spec.md §4.G's
// retryable-vs-terminal table.
type ErrorCode string

const (
	ErrInvalidIBANCode        ErrorCode = "InvalidIBAN"
	ErrCurrencyNotSupported   ErrorCode = "CurrencyNotSupported"
	ErrAmountLimitExceeded    ErrorCode = "AmountLimitExceeded"
	ErrComplianceViolation    ErrorCode = "ComplianceViolation"
	ErrAccountClosed          ErrorCode = "AccountClosed"
	ErrFraudBlock             ErrorCode = "FraudBlock"
	ErrBankRejection          ErrorCode = "BankRejection"
	ErrInsufficientFunds      ErrorCode = "InsufficientFunds"
	ErrNetworkTimeout         ErrorCode = "NetworkTimeout"
	ErrCutOffTimeExceeded     ErrorCode = "CutOffTimeExceeded"
	ErrHolidayProcessing      ErrorCode = "HolidayProcessing"
)

// retryable classifies each ErrorCode per spec.md §4.G's table.
var retryable = map[ErrorCode]bool{
	ErrInvalidIBANCode:      false,
	ErrCurrencyNotSupported: false,
	ErrAmountLimitExceeded:  false,
	ErrComplianceViolation:  false,
	ErrAccountClosed:        false,
	ErrFraudBlock:           false,
	ErrBankRejection:        false,
	ErrInsufficientFunds:    true,
	ErrNetworkTimeout:       true,
	ErrCutOffTimeExceeded:   true,
	ErrHolidayProcessing:    true,
}

// Retryable reports whether a failure of this code is worth retrying.
func (c ErrorCode) Retryable() bool { return retryable[c] }

// Party mirrors the pain.001 debtor/creditor party shape, narrowed to what
// this adapter's validation needs: an IBAN and an optional BIC (the party
// name is not carried).
type Party struct {
	IBAN string
	BIC  string
}

// Message is one SEPA credit-transfer instruction, per spec.md §3.
type Message struct {
	MessageID   string
	Direction   Direction
	Amount      money.Money
	Debtor      Party
	Creditor    Party
	Urgency     Urgency
	Description string
	CreatedAt   time.Time

	// ForcedError is a test hook: when set, it overrides all other
	// validation/business-rule outcomes and is returned immediately, per
	// spec.md §4.G.
	ForcedError ErrorCode
}

// Response is the outcome of validating and evaluating a Message.
type Response struct {
	MessageID string
	State     ResponseState
	Code      ErrorCode // zero value when State == ResponseAccepted
}

// Transfer tracks one accepted message's settlement lifecycle.
type Transfer struct {
	MessageID          string
	State               TransferState
	EstimatedSettlement time.Time
	SettledAt           time.Time
	FailureCode          ErrorCode
}
