package memory

import (
	"context"
	"testing"
	"time"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

func testAccountID(n uint64) ledgerid.AccountID {
	return ledgerid.NewAccountID(ledgerid.New(0, n))
}

func TestUpsertAndGetAccount(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := testAccountID(1)

	m := store.AccountMetadata{
		AccountID:   id,
		CustomerID:  "cust-1",
		AccountType: "DEPOSIT",
		Currency:    money.USD,
		CreatedAt:   time.Now(),
	}
	if err := s.UpsertAccount(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetAccountByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CustomerID != "cust-1" {
		t.Errorf("expected customer cust-1, got %s", got.CustomerID)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := New()
	_, err := s.GetAccountByID(context.Background(), testAccountID(99))
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAccountReferencedByOpenPlan(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := testAccountID(2)

	_ = s.UpsertAccount(ctx, store.AccountMetadata{AccountID: id, CustomerID: "cust-1", AccountType: "LOAN", Currency: money.USD, CreatedAt: time.Now()})
	_ = s.UpsertPlan(ctx, store.PaymentPlan{AccountID: id, RemainingPayments: 5, NextPaymentDate: time.Now()})

	if err := s.DeleteAccount(ctx, id); err != store.ErrReferenced {
		t.Fatalf("expected ErrReferenced, got %v", err)
	}
}

func TestListPlansDueOnOrBefore(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	due := testAccountID(10)
	notYetDue := testAccountID(11)
	exhausted := testAccountID(12)

	_ = s.UpsertPlan(ctx, store.PaymentPlan{AccountID: due, RemainingPayments: 3, NextPaymentDate: now.Add(-time.Hour)})
	_ = s.UpsertPlan(ctx, store.PaymentPlan{AccountID: notYetDue, RemainingPayments: 3, NextPaymentDate: now.Add(48 * time.Hour)})
	_ = s.UpsertPlan(ctx, store.PaymentPlan{AccountID: exhausted, RemainingPayments: 0, NextPaymentDate: now.Add(-time.Hour)})

	plans, err := s.ListPlansDueOnOrBefore(ctx, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 1 || plans[0].AccountID != due {
		t.Fatalf("expected only the due plan, got %+v", plans)
	}
}

func TestDecrementRemainingNeverGoesNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := testAccountID(20)
	_ = s.UpsertPlan(ctx, store.PaymentPlan{AccountID: id, RemainingPayments: 0})

	if err := s.DecrementRemaining(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := s.GetPlanByAccountID(ctx, id)
	if p.RemainingPayments != 0 {
		t.Errorf("expected remaining payments to stay at 0, got %d", p.RemainingPayments)
	}
}

func TestTransferHistoryOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := testAccountID(30), testAccountID(31)

	base := time.Now()
	for i := 0; i < 3; i++ {
		amt, _ := money.New(int64(i+1)*100, money.USD)
		_ = s.InsertTransferHistory(ctx, store.TransferHistoryRecord{
			TransferID:    ledgerid.NewTransferID(ledgerid.New(0, uint64(i))),
			FromAccountID: a,
			ToAccountID:   b,
			Amount:        amt,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}

	recent, err := s.ListRecentTransferHistory(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Amount.Minor() != 300 {
		t.Errorf("expected most recent first (300), got %d", recent[0].Amount.Minor())
	}
}

func TestExternalTransactionLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	acc := testAccountID(40)
	amt, _ := money.New(5000, money.EUR)

	tx := store.ExternalTransaction{
		ExternalID:      "sepa-abc-123",
		AccountID:       acc,
		TransactionType: "SEPA_CREDIT_TRANSFER",
		Amount:          amt,
		Status:          store.ExternalPending,
		CreatedAt:       time.Now(),
	}
	if err := s.InsertExternalTransaction(ctx, tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.InsertExternalTransaction(ctx, tx); err != store.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	if err := s.UpdateExternalTransactionStatus(ctx, tx.ExternalID, store.ExternalSettled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetExternalTransactionByID(ctx, tx.ExternalID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != store.ExternalSettled {
		t.Errorf("expected status SETTLED, got %s", got.Status)
	}
}
