// Package store defines the metadata-store repository contract: account
// metadata, payment plans, transfer history, and external SEPA transaction
// records. The ledger engine itself never depends on this package; it is
// consumed by the loan service, the scheduler, and the CDC business handler,
// per spec.md §9's "ledger engine oblivious to plans" design note.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
)

// ErrUnavailable is returned by every repository call on a transport error,
// leaving retry decisions to the caller, per spec.md §4.C.
var ErrUnavailable = errors.New("store: unavailable")

// ErrNotFound is returned when a lookup by unique key finds nothing.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned when a uniqueness constraint is violated.
var ErrAlreadyExists = errors.New("store: already exists")

// ErrReferenced is returned when a delete is rejected because the row is
// referenced by an open plan or a recent transfer (cascade-reject), per
// spec.md §3.
var ErrReferenced = errors.New("store: referenced by open plan or recent transfer")

// AccountMetadata is one row per ledger account: customer ownership,
// account type/currency mirror, and an optional nickname.
type AccountMetadata struct {
	AccountID   ledgerid.AccountID
	CustomerID  ledgerid.CustomerID
	AccountType string
	Currency    money.Currency
	Nickname    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LoanType distinguishes amortization methods.
type LoanType string

// PaymentFrequency distinguishes scheduled-payment cadences.
type PaymentFrequency string

const (
	LoanAnnuity LoanType = "ANNUITY"
	LoanSerial  LoanType = "SERIAL"

	FrequencyWeekly   PaymentFrequency = "WEEKLY"
	FrequencyBiWeekly PaymentFrequency = "BI_WEEKLY"
	FrequencyMonthly  PaymentFrequency = "MONTHLY"
)

// Fee is a tagged fee line item attached to a loan, per spec.md §9's
// "tagged variants with explicit field sets" design note.
type Fee struct {
	Type        string
	Amount      money.Money
	Description string
}

// PaymentPlan is the persisted loan-amortization plan for one loan account.
type PaymentPlan struct {
	AccountID         ledgerid.AccountID
	CustomerID        ledgerid.CustomerID
	Principal         money.Money
	AnnualRateNum     int64 // scaled decimal rate, numerator over RateScale
	Fees              []Fee
	TotalLoanAmount   money.Money
	TermMonths        int32
	LoanType          LoanType
	PaymentFrequency  PaymentFrequency
	PaymentAmount     money.Money
	RemainingPayments int32
	NextPaymentDate   time.Time
	PrimaryAccountID  ledgerid.AccountID // optional, resolves the scheduler's account-selection open question
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RateScale is the fixed-point denominator used for AnnualRateNum, giving
// four decimal digits of precision (e.g. 4.5% == 450 / RateScale).
const RateScale = 10000

// TransferHistoryRecord mirrors spec.md §3's transfer history row, authored
// only by the CDC consumer's business handler, never by request handlers.
type TransferHistoryRecord struct {
	TransferID    ledgerid.TransferID
	FromAccountID ledgerid.AccountID
	ToAccountID   ledgerid.AccountID
	Amount        money.Money
	Description   *string
	CreatedAt     time.Time
}

// ExternalTransactionStatus is the lifecycle of an external (SEPA) transfer
// as reflected in the metadata store.
type ExternalTransactionStatus string

const (
	ExternalPending ExternalTransactionStatus = "PENDING"
	ExternalSettled ExternalTransactionStatus = "SETTLED"
	ExternalFailed  ExternalTransactionStatus = "FAILED"
)

// ExternalTransaction records one SEPA message's settlement lifecycle.
type ExternalTransaction struct {
	ExternalID      string
	AccountID       ledgerid.AccountID
	TransferID      ledgerid.TransferID
	TransactionType string
	Amount          money.Money
	Status          ExternalTransactionStatus
	BankInfo        map[string]string
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AccountMetadataStore is the account-metadata half of the repository
// contract, per spec.md §4.C.
type AccountMetadataStore interface {
	UpsertAccount(ctx context.Context, m AccountMetadata) error
	GetAccountByID(ctx context.Context, id ledgerid.AccountID) (*AccountMetadata, error)
	ListByCustomer(ctx context.Context, customerID ledgerid.CustomerID) ([]AccountMetadata, error)
	ListByCustomerAndType(ctx context.Context, customerID ledgerid.CustomerID, accountType string) ([]AccountMetadata, error)
	UpdateNickname(ctx context.Context, id ledgerid.AccountID, nickname string) error
	DeleteAccount(ctx context.Context, id ledgerid.AccountID) error
}

// PaymentPlanStore is the loan-plan half of the repository contract.
type PaymentPlanStore interface {
	UpsertPlan(ctx context.Context, p PaymentPlan) error
	GetPlanByAccountID(ctx context.Context, accountID ledgerid.AccountID) (*PaymentPlan, error)
	ListAllPlans(ctx context.Context) ([]PaymentPlan, error)
	ListPlansDueOnOrBefore(ctx context.Context, date time.Time) ([]PaymentPlan, error)
	DecrementRemaining(ctx context.Context, accountID ledgerid.AccountID) error
	SetNextPaymentDate(ctx context.Context, accountID ledgerid.AccountID, next time.Time) error
	DeletePlan(ctx context.Context, accountID ledgerid.AccountID) error
}

// TransferHistoryStore is the transfer-history half of the repository
// contract, written only by the CDC consumer.
type TransferHistoryStore interface {
	InsertTransferHistory(ctx context.Context, r TransferHistoryRecord) error
	ListTransferHistoryByAccount(ctx context.Context, accountID ledgerid.AccountID, limit int) ([]TransferHistoryRecord, error)
	ListRecentTransferHistory(ctx context.Context, limit int) ([]TransferHistoryRecord, error)
}

// ExternalTransactionStore is the external-transaction half of the
// repository contract, used by the SEPA adapter.
type ExternalTransactionStore interface {
	InsertExternalTransaction(ctx context.Context, t ExternalTransaction) error
	GetExternalTransactionByID(ctx context.Context, externalID string) (*ExternalTransaction, error)
	ListExternalTransactionsByAccount(ctx context.Context, accountID ledgerid.AccountID) ([]ExternalTransaction, error)
	UpdateExternalTransactionStatus(ctx context.Context, externalID string, status ExternalTransactionStatus) error
}

// Store bundles all four repository contracts behind one handle, the shape
// cmd/ledgerd wires components against.
type Store interface {
	AccountMetadataStore
	PaymentPlanStore
	TransferHistoryStore
	ExternalTransactionStore
}
