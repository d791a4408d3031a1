package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

// ErrInsufficientLoanFunds is returned when a disbursement requests more
// than the loan account's available balance, per spec.md §4.E.
var ErrInsufficientLoanFunds = errors.New("loan: insufficient loan funds")

// ErrAccountTypeInvalid is returned when disbursement targets a non-DEPOSIT
// account or originates from a non-LOAN account.
var ErrAccountTypeInvalid = errors.New("loan: account type invalid for this operation")

// ErrAmountNonPositive is returned when a disbursement amount is zero or
// negative.
var ErrAmountNonPositive = errors.New("loan: amount must be positive")

// defaultFirstPaymentOffset is the "now + 30 days" default from spec.md §4.E,
// overridable via Service.FirstPaymentOffset.
const defaultFirstPaymentOffset = 30 * 24 * time.Hour

// Service implements loan creation and disbursement, grounded on the
// teacher's LoanService: an input struct per operation, validated before
// any mutation, and explicit sentinel errors instead of generic wrapping.
type Service struct {
	engine *ledger.Engine
	plans  store.PaymentPlanStore
	clock  func() time.Time

	// FirstPaymentOffset overrides the default 30-day next-payment-date
	// offset used at loan creation; zero value uses the default.
	FirstPaymentOffset time.Duration
}

// New constructs a loan Service bound to the ledger engine and the
// payment-plan half of the metadata store.
func New(engine *ledger.Engine, plans store.PaymentPlanStore) *Service {
	return &Service{
		engine: engine,
		plans:  plans,
		clock:  time.Now,
	}
}

// CreateLoanInput is the input to CreateLoan, mirroring the teacher's
// CreateLoanInput shape generalized to this domain's loan-plan fields.
type CreateLoanInput struct {
	CustomerID       ledgerid.CustomerID
	Principal        money.Money
	Fees             []store.Fee
	AnnualRateNum    int64 // scaled decimal, numerator over store.RateScale
	TermMonths       int32
	LoanType         store.LoanType
	PaymentFrequency store.PaymentFrequency
	EquityAccountID  ledgerid.AccountID // currency-specific equity source funding the loan account
	PrimaryAccountID ledgerid.AccountID // optional, for the scheduler's account-selection policy
}

// CreateLoanResult is the outcome of a successful CreateLoan call.
type CreateLoanResult struct {
	LoanAccountID ledgerid.AccountID
	Plan          store.PaymentPlan
}

// CreateLoan computes the total loan amount, creates the loan account in
// the ledger funded from the equity source, computes the per-period
// payment, and persists the plan, per spec.md §4.E.
func (s *Service) CreateLoan(ctx context.Context, input CreateLoanInput) (*CreateLoanResult, error) {
	if input.TermMonths <= 0 || input.AnnualRateNum < 0 {
		return nil, ErrLoanValidation
	}
	if !input.Principal.IsPositive() {
		return nil, ErrLoanValidation
	}

	total := input.Principal
	for _, fee := range input.Fees {
		sum, err := total.Add(fee.Amount)
		if err != nil {
			return nil, fmt.Errorf("loan: fee currency: %w", err)
		}
		total = sum
	}

	n, err := NumPayments(input.TermMonths, input.PaymentFrequency)
	if err != nil {
		return nil, err
	}
	payment, err := PaymentAmount(input.Principal, input.AnnualRateNum, n, input.LoanType, input.PaymentFrequency)
	if err != nil {
		return nil, err
	}

	accountResults := s.engine.CreateAccounts([]ledger.CreateAccountRequest{{
		Currency:   input.Principal.Currency(),
		Type:       ledger.AccountLoan,
		CustomerID: input.CustomerID,
	}})
	if accountResults[0].Err != nil {
		return nil, fmt.Errorf("loan: create loan account: %w", accountResults[0].Err)
	}
	loanAccountID := accountResults[0].ID

	transferResults := s.engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  input.EquityAccountID,
		CreditAccountID: loanAccountID,
		Amount:          total,
		Operation:       ledger.OpSinglePhase,
		Kind:            ledger.KindDisbursement,
	}})
	if transferResults[0].Err != nil {
		return nil, fmt.Errorf("loan: fund loan account: %w", transferResults[0].Err)
	}

	offset := s.FirstPaymentOffset
	if offset == 0 {
		offset = defaultFirstPaymentOffset
	}
	now := s.clock()

	plan := store.PaymentPlan{
		AccountID:         loanAccountID,
		CustomerID:        input.CustomerID,
		Principal:         input.Principal,
		AnnualRateNum:     input.AnnualRateNum,
		Fees:              input.Fees,
		TotalLoanAmount:   total,
		TermMonths:        input.TermMonths,
		LoanType:          input.LoanType,
		PaymentFrequency:  input.PaymentFrequency,
		PaymentAmount:     payment,
		RemainingPayments: n,
		NextPaymentDate:   now.Add(offset),
		PrimaryAccountID:  input.PrimaryAccountID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.plans.UpsertPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("loan: persist plan: %w", err)
	}

	return &CreateLoanResult{LoanAccountID: loanAccountID, Plan: plan}, nil
}

// DisburseInput is the input to Disburse.
type DisburseInput struct {
	LoanAccountID    ledgerid.AccountID
	DepositAccountID ledgerid.AccountID
	Amount           *money.Money // optional; nil means the account's full available balance
}

// Disburse moves funds from the loan account to a deposit account, per
// spec.md §4.E. A nil Amount disburses the loan account's full available
// balance.
func (s *Service) Disburse(ctx context.Context, input DisburseInput) (ledgerid.TransferID, error) {
	accounts := s.engine.LookupAccounts([]ledgerid.AccountID{input.LoanAccountID, input.DepositAccountID})
	loanAccount, depositAccount := accounts[0], accounts[1]
	if loanAccount == nil || depositAccount == nil {
		return ledgerid.TransferID{}, ledger.ErrAccountNotFound
	}
	if loanAccount.Type != ledger.AccountLoan {
		return ledgerid.TransferID{}, ErrAccountTypeInvalid
	}
	if depositAccount.Type != ledger.AccountDeposit {
		return ledgerid.TransferID{}, ErrAccountTypeInvalid
	}

	balance, err := loanAccount.Balance()
	if err != nil {
		return ledgerid.TransferID{}, err
	}

	amount := balance
	if input.Amount != nil {
		amount = *input.Amount
		if !amount.IsPositive() {
			return ledgerid.TransferID{}, ErrAmountNonPositive
		}
		cmp, err := amount.Cmp(balance)
		if err != nil {
			return ledgerid.TransferID{}, err
		}
		if cmp > 0 {
			return ledgerid.TransferID{}, ErrInsufficientLoanFunds
		}
	} else if !amount.IsPositive() {
		return ledgerid.TransferID{}, ErrAmountNonPositive
	}

	results := s.engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  input.LoanAccountID,
		CreditAccountID: input.DepositAccountID,
		Amount:          amount,
		Operation:       ledger.OpSinglePhase,
		Kind:            ledger.KindDisbursement,
	}})
	if results[0].Err != nil {
		return ledgerid.TransferID{}, results[0].Err
	}
	return results[0].ID, nil
}
