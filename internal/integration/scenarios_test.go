// Package integration exercises the six end-to-end scenarios from spec.md
// §8 against the in-memory store and CDC adapters, wiring the ledger
// engine, loan service, scheduler, and SEPA adapter the way cmd/ledgerd
// does in production.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreledger/ledgerd/internal/cdc"
	"github.com/coreledger/ledgerd/internal/cdc/handlers"
	cdcmemory "github.com/coreledger/ledgerd/internal/cdc/memory"
	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/loan"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/scheduler"
	"github.com/coreledger/ledgerd/internal/sepa"
	"github.com/coreledger/ledgerd/internal/store"
	"github.com/coreledger/ledgerd/internal/store/memory"
	"github.com/coreledger/ledgerd/internal/sysaccounts"
)

func mustMoney(t *testing.T, minor int64, c money.Currency) money.Money {
	t.Helper()
	m, err := money.New(minor, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func openAccount(t *testing.T, engine *ledger.Engine, currency money.Currency, typ ledger.AccountType) ledgerid.AccountID {
	t.Helper()
	results := engine.CreateAccounts([]ledger.CreateAccountRequest{{Currency: currency, Type: typ}})
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	return results[0].ID
}

func balanceOf(t *testing.T, engine *ledger.Engine, id ledgerid.AccountID) money.Money {
	t.Helper()
	accs := engine.LookupAccounts([]ledgerid.AccountID{id})
	if accs[0] == nil {
		t.Fatalf("account %s not found", id)
	}
	bal, err := accs[0].Balance()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return bal
}

// Scenario 1 from spec.md §8: deposit + transfer.
func TestScenarioDepositAndTransfer(t *testing.T) {
	events := make(chan ledger.Event, 8)
	engine := ledger.New(events)

	a := openAccount(t, engine, money.USD, ledger.AccountDeposit)
	b := openAccount(t, engine, money.USD, ledger.AccountDeposit)

	fundResult := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  openAccount(t, engine, money.USD, ledger.AccountEquity),
		CreditAccountID: a,
		Amount:          mustMoney(t, 50000, money.USD),
		Operation:       ledger.OpSinglePhase,
		Kind:            ledger.KindOrdinary,
	}})
	if fundResult[0].Err != nil {
		t.Fatalf("unexpected error funding A: %v", fundResult[0].Err)
	}
	<-events // drain the funding event

	transferResult := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  a,
		CreditAccountID: b,
		Amount:          mustMoney(t, 3000, money.USD),
		Operation:       ledger.OpSinglePhase,
		Kind:            ledger.KindOrdinary,
	}})
	if transferResult[0].Err != nil {
		t.Fatalf("unexpected error: %v", transferResult[0].Err)
	}

	if got, want := balanceOf(t, engine, a).Minor(), int64(47000); got != want {
		t.Errorf("A.balance = %d, want %d", got, want)
	}
	if got, want := balanceOf(t, engine, b).Minor(), int64(3000); got != want {
		t.Errorf("B.balance = %d, want %d", got, want)
	}

	select {
	case ev := <-events:
		if ev.Type != ledger.EventSinglePhase {
			t.Errorf("expected single_phase event, got %v", ev.Type)
		}
		if ev.Transfer.DebitAccountID != a || ev.Transfer.CreditAccountID != b {
			t.Error("expected the A->B transfer's event")
		}
	default:
		t.Fatal("expected a CDC event for the A->B transfer")
	}
}

// Scenario 2 from spec.md §8: loan disbursement.
func TestScenarioLoanDisbursement(t *testing.T) {
	engine := ledger.New(nil)
	plans := memory.New()
	equity := openAccount(t, engine, money.USD, ledger.AccountEquity)
	deposit := openAccount(t, engine, money.USD, ledger.AccountDeposit)

	loanSvc := loan.New(engine, plans)
	result, err := loanSvc.CreateLoan(context.Background(), loan.CreateLoanInput{
		CustomerID:       "customer-1",
		Principal:        mustMoney(t, 200000, money.USD),
		AnnualRateNum:    450, // 4.5% scaled by store.RateScale == 10000
		TermMonths:       360,
		LoanType:         store.LoanAnnuity,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := loanSvc.Disburse(context.Background(), loan.DisburseInput{
		LoanAccountID:    result.LoanAccountID,
		DepositAccountID: deposit,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := balanceOf(t, engine, result.LoanAccountID).Minor(); got != 0 {
		t.Errorf("L.balance = %d, want 0", got)
	}
	if got, want := balanceOf(t, engine, deposit).Minor(), int64(200000); got != want {
		t.Errorf("D.balance = %d, want %d", got, want)
	}

	// r = 0.045/12; monthly_payment = round(200000 * r*(1+r)^360 / ((1+r)^360-1))
	r := 0.045 / 12
	n := 360.0
	factor := pow(1+r, n)
	expected := round(200000 * r * factor / (factor - 1))
	if got := result.Plan.PaymentAmount.Minor(); got != expected {
		t.Errorf("monthly_payment = %d, want %d", got, expected)
	}
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

func round(f float64) int64 {
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// Scenario 3 from spec.md §8: scheduled payment with no deposit account.
func TestScenarioScheduledPaymentMissingDepositAccount(t *testing.T) {
	engine := ledger.New(nil)
	plans := memory.New()
	accounts := memory.New()

	equity := openAccount(t, engine, money.USD, ledger.AccountEquity)
	loanSvc := loan.New(engine, plans)
	loanSvc.FirstPaymentOffset = -time.Hour // plan is due today, per spec.md §8 scenario 3
	result, err := loanSvc.CreateLoan(context.Background(), loan.CreateLoanInput{
		CustomerID:       "customer-2",
		Principal:        mustMoney(t, 120000, money.USD),
		AnnualRateNum:    600,
		TermMonths:       24,
		LoanType:         store.LoanSerial,
		PaymentFrequency: store.FrequencyMonthly,
		EquityAccountID:  equity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched := scheduler.New(engine, plans, accounts, zerolog.Nop(), scheduler.DefaultConfig())
	cycle := sched.RunCycle(context.Background())

	if cycle.Succeeded != 0 || cycle.Failed != 1 {
		t.Fatalf("expected 1 failed/0 succeeded, got succeeded=%d failed=%d", cycle.Succeeded, cycle.Failed)
	}
	res := cycle.Results[0]
	if res.Reason != scheduler.ReasonNoDepositAccount {
		t.Fatalf("expected ReasonNoDepositAccount, got %v (%v)", res.Reason, res.Err)
	}
	if res.Err == nil {
		t.Fatal("expected a non-nil error describing the missing deposit account")
	}

	plan, err := plans.GetPlanByAccountID(context.Background(), result.LoanAccountID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.RemainingPayments != 24 {
		t.Errorf("remaining_payments = %d, want unchanged 24", plan.RemainingPayments)
	}
}

// Scenario 4 from spec.md §8: two-phase post.
func TestScenarioTwoPhasePost(t *testing.T) {
	engine := ledger.New(nil)
	a := openAccount(t, engine, money.USD, ledger.AccountDeposit)
	b := openAccount(t, engine, money.USD, ledger.AccountDeposit)

	fund := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  openAccount(t, engine, money.USD, ledger.AccountEquity),
		CreditAccountID: a,
		Amount:          mustMoney(t, 50000, money.USD),
		Operation:       ledger.OpSinglePhase,
		Kind:            ledger.KindOrdinary,
	}})
	if fund[0].Err != nil {
		t.Fatalf("unexpected error: %v", fund[0].Err)
	}

	pendResult := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  a,
		CreditAccountID: b,
		Amount:          mustMoney(t, 10000, money.USD),
		Operation:       ledger.OpPending,
		Kind:            ledger.KindOrdinary,
	}})
	if pendResult[0].Err != nil {
		t.Fatalf("unexpected error: %v", pendResult[0].Err)
	}
	t1 := pendResult[0].ID

	accs := engine.LookupAccounts([]ledgerid.AccountID{a})
	if accs[0].DebitsPending != 10000 {
		t.Fatalf("A.pending_debits = %d, want 10000", accs[0].DebitsPending)
	}
	if accs[0].DebitsPosted != 0 {
		t.Fatalf("A.debits_posted = %d, want unchanged 0", accs[0].DebitsPosted)
	}

	postResult := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		PendingID: t1,
		Operation: ledger.OpPost,
	}})
	if postResult[0].Err != nil {
		t.Fatalf("unexpected error posting: %v", postResult[0].Err)
	}

	accs = engine.LookupAccounts([]ledgerid.AccountID{a})
	if accs[0].DebitsPosted != 10000 {
		t.Errorf("A.debits_posted = %d, want 10000", accs[0].DebitsPosted)
	}
	if accs[0].DebitsPending != 0 {
		t.Errorf("A.pending_debits = %d, want cleared", accs[0].DebitsPending)
	}

	secondPost := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		PendingID: t1,
		Operation: ledger.OpPost,
	}})
	if secondPost[0].Err != ledger.ErrPendingAlreadyResolved {
		t.Errorf("expected ErrPendingAlreadyResolved on a second post, got %v", secondPost[0].Err)
	}

	secondVoid := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		PendingID: t1,
		Operation: ledger.OpVoid,
	}})
	if secondVoid[0].Err != ledger.ErrPendingAlreadyResolved {
		t.Errorf("expected ErrPendingAlreadyResolved on a void after post, got %v", secondVoid[0].Err)
	}
}

// Scenario 5 from spec.md §8: SEPA accept and settle.
func TestScenarioSEPAAcceptAndSettle(t *testing.T) {
	st := memory.New()
	engine := ledger.New(nil)

	systemAccountsPath := t.TempDir() + "/system-accounts.json"
	sysAccounts, err := sysaccounts.Bootstrap(engine, systemAccountsPath, money.All())
	if err != nil {
		t.Fatalf("unexpected error bootstrapping system accounts: %v", err)
	}

	customer, _ := ledgerid.NewCustomerID("cust-sepa-scenario")
	acctResults := engine.CreateAccounts([]ledger.CreateAccountRequest{
		{Currency: money.EUR, Type: ledger.AccountDeposit, CustomerID: customer},
	})
	accountID := acctResults[0].ID

	validator := sepa.NewValidator(sepa.Config{}, func() time.Time {
		return time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC) // a Monday
	})
	wheel := sepa.NewTimerWheel()
	defer wheel.Close()
	svc := sepa.NewService(validator, wheel, st, engine, sysAccounts, zerolog.Nop())

	msg := sepa.Message{
		MessageID: "SEPA_OUT_EUR_1_TESTCASE",
		Direction: sepa.DirectionOutgoing,
		Amount:    mustMoney(t, 10000, money.EUR),
		Debtor:    sepa.Party{IBAN: "DE89370400440532013000"},
		Creditor:  sepa.Party{IBAN: "FR1420041010050500013M02606"},
		Urgency:   sepa.UrgencyStandard,
	}

	resp, err := svc.Accept(context.Background(), msg, accountID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.State != sepa.ResponseAccepted {
		t.Fatalf("expected accepted, got %v/%v", resp.State, resp.Code)
	}

	tx, err := st.GetExternalTransactionByID(context.Background(), msg.MessageID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != store.ExternalPending {
		t.Fatalf("expected PENDING after accept, got %v", tx.Status)
	}

	if err := svc.Settle(context.Background(), msg.MessageID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx, err = st.GetExternalTransactionByID(context.Background(), msg.MessageID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != store.ExternalSettled {
		t.Fatalf("expected SETTLED after settle, got %v", tx.Status)
	}
}

// Scenario 6 from spec.md §8: SEPA daily cap.
func TestScenarioSEPADailyCap(t *testing.T) {
	fixed := time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC)
	validator := sepa.NewValidator(sepa.Config{
		DailyCap: mustMoney(t, 20000, money.EUR),
	}, func() time.Time { return fixed })

	first := sepa.Message{
		MessageID: "msg-cap-1",
		Amount:    mustMoney(t, 15000, money.EUR),
		Debtor:    sepa.Party{IBAN: "DE89370400440532013000"},
		Creditor:  sepa.Party{IBAN: "FR1420041010050500013M02606"},
		Urgency:   sepa.UrgencyStandard,
	}
	if resp := validator.Validate(first); resp.State != sepa.ResponseAccepted {
		t.Fatalf("expected first message accepted, got %v/%v", resp.State, resp.Code)
	}

	second := first
	second.MessageID = "msg-cap-2"
	second.Amount = mustMoney(t, 10000, money.EUR)
	resp := validator.Validate(second)
	if resp.State != sepa.ResponseRejected || resp.Code != sepa.ErrAmountLimitExceeded {
		t.Fatalf("expected AmountLimitExceeded rejection, got %v/%v", resp.State, resp.Code)
	}
}

// Confirms the CDC dispatcher's idempotence law holds across the in-memory
// bus: replaying the same delivered envelope leaves the audit handler's
// record count unchanged, per spec.md §8.
func TestCDCIdempotenceAcrossReplay(t *testing.T) {
	bus := cdcmemory.New(4)
	defer bus.Close()
	audit := handlers.NewAuditHandler()
	dispatcher := handlers.NewDispatcher(audit)

	engine := ledger.New(nil)
	a := openAccount(t, engine, money.USD, ledger.AccountDeposit)
	b := openAccount(t, engine, money.USD, ledger.AccountEquity)
	result := engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  b,
		CreditAccountID: a,
		Amount:          mustMoney(t, 500, money.USD),
		Operation:       ledger.OpSinglePhase,
		Kind:            ledger.KindOrdinary,
	}})
	if result[0].Err != nil {
		t.Fatalf("unexpected error: %v", result[0].Err)
	}

	transfers := engine.LookupTransfers([]ledgerid.TransferID{result[0].ID})
	accs := engine.LookupAccounts([]ledgerid.AccountID{b, a})
	env := cdc.Envelope{
		EventType:     ledger.EventSinglePhase,
		RoutingKey:    cdc.RoutingKeyFor(ledger.EventSinglePhase),
		Timestamp:     time.Now(),
		Transfer:      *transfers[0],
		DebitAccount:  *accs[0],
		CreditAccount: *accs[1],
	}

	for i := 0; i < 3; i++ {
		dispatcher.Dispatch(context.Background(), cdc.Delivery{
			Envelope: env,
			Ack:      func() error { return nil },
			Nack:     func(bool) error { return nil },
		})
	}

	if got := len(audit.ListEvents(handlers.Filter{})); got != 1 {
		t.Errorf("expected exactly one audit record after 3 replays, got %d", got)
	}
}
