package loan

import (
	"context"
	"testing"

	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
	"github.com/coreledger/ledgerd/internal/store/memory"
)

func mustMoney(t *testing.T, minor int64, c money.Currency) money.Money {
	t.Helper()
	m, err := money.New(minor, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func newTestService(t *testing.T) (*Service, *ledger.Engine, ledgerid.AccountID) {
	t.Helper()
	engine := ledger.New(nil)
	equity := engine.CreateAccounts([]ledger.CreateAccountRequest{{Currency: money.USD, Type: ledger.AccountEquity}})[0].ID
	svc := New(engine, memory.New())
	return svc, engine, equity
}

func TestCreateLoanFundsAccountAndPersistsPlan(t *testing.T) {
	svc, engine, equity := newTestService(t)
	customer, err := ledgerid.NewCustomerID("cust-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:       customer,
		Principal:        mustMoney(t, 1000000, money.USD),
		AnnualRateNum:    1200,
		TermMonths:       12,
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	accounts := engine.LookupAccounts([]ledgerid.AccountID{result.LoanAccountID})
	if accounts[0] == nil {
		t.Fatal("expected loan account to exist")
	}
	balance, err := accounts[0].Balance()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.Minor() != 1000000 {
		t.Errorf("expected loan account balance 1000000, got %d", balance.Minor())
	}
	if result.Plan.RemainingPayments != 12 {
		t.Errorf("expected 12 remaining payments, got %d", result.Plan.RemainingPayments)
	}
}

func TestCreateLoanWithFeesIncludesFeesInTotal(t *testing.T) {
	svc, engine, equity := newTestService(t)
	customer, _ := ledgerid.NewCustomerID("cust-2")

	result, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:    customer,
		Principal:     mustMoney(t, 100000, money.USD),
		AnnualRateNum: 0,
		TermMonths:    10,
		Fees: []store.Fee{
			{Type: "ORIGINATION", Amount: mustMoney(t, 5000, money.USD)},
		},
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Plan.TotalLoanAmount.Minor() != 105000 {
		t.Errorf("expected total 105000, got %d", result.Plan.TotalLoanAmount.Minor())
	}
	accounts := engine.LookupAccounts([]ledgerid.AccountID{result.LoanAccountID})
	balance, _ := accounts[0].Balance()
	if balance.Minor() != 105000 {
		t.Errorf("expected loan account funded with fees included, got %d", balance.Minor())
	}
}

func TestCreateLoanRejectsInvalidTerm(t *testing.T) {
	svc, _, equity := newTestService(t)
	customer, _ := ledgerid.NewCustomerID("cust-3")
	_, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:       customer,
		Principal:        mustMoney(t, 1000, money.USD),
		TermMonths:       0,
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err == nil {
		t.Fatal("expected ErrLoanValidation")
	}
}

func TestDisburseMovesFundsToDepositAccount(t *testing.T) {
	svc, engine, equity := newTestService(t)
	customer, _ := ledgerid.NewCustomerID("cust-4")

	result, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:       customer,
		Principal:        mustMoney(t, 200000, money.USD),
		AnnualRateNum:    0,
		TermMonths:       10,
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deposit := engine.CreateAccounts([]ledger.CreateAccountRequest{{Currency: money.USD, Type: ledger.AccountDeposit}})[0].ID

	if _, err := svc.Disburse(context.Background(), DisburseInput{
		LoanAccountID:    result.LoanAccountID,
		DepositAccountID: deposit,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	accounts := engine.LookupAccounts([]ledgerid.AccountID{result.LoanAccountID, deposit})
	loanBalance, _ := accounts[0].Balance()
	depositBalance, _ := accounts[1].Balance()
	if loanBalance.Minor() != 0 {
		t.Errorf("expected loan account drained, got %d", loanBalance.Minor())
	}
	if depositBalance.Minor() != 200000 {
		t.Errorf("expected deposit account funded, got %d", depositBalance.Minor())
	}
}

func TestDisbursePartialAmount(t *testing.T) {
	svc, engine, equity := newTestService(t)
	customer, _ := ledgerid.NewCustomerID("cust-5")

	result, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:       customer,
		Principal:        mustMoney(t, 200000, money.USD),
		TermMonths:       10,
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deposit := engine.CreateAccounts([]ledger.CreateAccountRequest{{Currency: money.USD, Type: ledger.AccountDeposit}})[0].ID

	partial := mustMoney(t, 50000, money.USD)
	if _, err := svc.Disburse(context.Background(), DisburseInput{
		LoanAccountID:    result.LoanAccountID,
		DepositAccountID: deposit,
		Amount:           &partial,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	accounts := engine.LookupAccounts([]ledgerid.AccountID{result.LoanAccountID})
	remaining, _ := accounts[0].Balance()
	if remaining.Minor() != 150000 {
		t.Errorf("expected 150000 remaining in loan account, got %d", remaining.Minor())
	}
}

func TestDisburseRejectsOverdraw(t *testing.T) {
	svc, engine, equity := newTestService(t)
	customer, _ := ledgerid.NewCustomerID("cust-6")

	result, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:       customer,
		Principal:        mustMoney(t, 1000, money.USD),
		TermMonths:       10,
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deposit := engine.CreateAccounts([]ledger.CreateAccountRequest{{Currency: money.USD, Type: ledger.AccountDeposit}})[0].ID

	tooMuch := mustMoney(t, 5000, money.USD)
	if _, err := svc.Disburse(context.Background(), DisburseInput{
		LoanAccountID:    result.LoanAccountID,
		DepositAccountID: deposit,
		Amount:           &tooMuch,
	}); err != ErrInsufficientLoanFunds {
		t.Fatalf("expected ErrInsufficientLoanFunds, got %v", err)
	}
}

func TestDisburseRejectsWrongAccountTypes(t *testing.T) {
	svc, engine, equity := newTestService(t)
	customer, _ := ledgerid.NewCustomerID("cust-7")

	result, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:       customer,
		Principal:        mustMoney(t, 1000, money.USD),
		TermMonths:       10,
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	notADeposit := engine.CreateAccounts([]ledger.CreateAccountRequest{{Currency: money.USD, Type: ledger.AccountSuspense}})[0].ID
	if _, err := svc.Disburse(context.Background(), DisburseInput{
		LoanAccountID:    result.LoanAccountID,
		DepositAccountID: notADeposit,
	}); err != ErrAccountTypeInvalid {
		t.Fatalf("expected ErrAccountTypeInvalid, got %v", err)
	}
}
