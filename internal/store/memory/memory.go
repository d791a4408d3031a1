// Package memory is an in-process implementation of store.Store, used by
// unit and scenario tests in place of the Postgres adapter. Grounded on the
// teacher's internal/testutil mock-repository style: plain maps guarded by
// a mutex, no behavior beyond what the interface promises.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu sync.Mutex

	accounts map[ledgerid.AccountID]store.AccountMetadata
	plans    map[ledgerid.AccountID]store.PaymentPlan
	history  []store.TransferHistoryRecord
	external map[string]store.ExternalTransaction
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		accounts: make(map[ledgerid.AccountID]store.AccountMetadata),
		plans:    make(map[ledgerid.AccountID]store.PaymentPlan),
		external: make(map[string]store.ExternalTransaction),
	}
}

var _ store.Store = (*Store)(nil)

// UpsertAccount inserts or replaces account metadata.
func (s *Store) UpsertAccount(_ context.Context, m store.AccountMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[m.AccountID] = m
	return nil
}

// GetAccountByID looks up account metadata by ledger account id.
func (s *Store) GetAccountByID(_ context.Context, id ledgerid.AccountID) (*store.AccountMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := m
	return &cp, nil
}

// ListByCustomer returns every account owned by customerID.
func (s *Store) ListByCustomer(_ context.Context, customerID ledgerid.CustomerID) ([]store.AccountMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.AccountMetadata
	for _, m := range s.accounts {
		if m.CustomerID == customerID {
			out = append(out, m)
		}
	}
	sortAccountsByCreatedAt(out)
	return out, nil
}

// ListByCustomerAndType returns accounts owned by customerID of the given type.
func (s *Store) ListByCustomerAndType(_ context.Context, customerID ledgerid.CustomerID, accountType string) ([]store.AccountMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.AccountMetadata
	for _, m := range s.accounts {
		if m.CustomerID == customerID && m.AccountType == accountType {
			out = append(out, m)
		}
	}
	sortAccountsByCreatedAt(out)
	return out, nil
}

func sortAccountsByCreatedAt(out []store.AccountMetadata) {
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
}

// UpdateNickname sets the nickname for an existing account.
func (s *Store) UpdateNickname(_ context.Context, id ledgerid.AccountID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Nickname = &nickname
	m.UpdatedAt = time.Now()
	s.accounts[id] = m
	return nil
}

// DeleteAccount removes account metadata, rejecting when referenced by an
// open plan.
func (s *Store) DeleteAccount(_ context.Context, id ledgerid.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return store.ErrNotFound
	}
	if plan, ok := s.plans[id]; ok && plan.RemainingPayments > 0 {
		return store.ErrReferenced
	}
	delete(s.accounts, id)
	return nil
}

// UpsertPlan inserts or replaces a payment plan.
func (s *Store) UpsertPlan(_ context.Context, p store.PaymentPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.AccountID] = p
	return nil
}

// GetPlanByAccountID looks up a payment plan by loan account id.
func (s *Store) GetPlanByAccountID(_ context.Context, accountID ledgerid.AccountID) (*store.PaymentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

// ListAllPlans returns every payment plan, oldest first.
func (s *Store) ListAllPlans(_ context.Context) ([]store.PaymentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.PaymentPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPlansDueOnOrBefore returns every plan whose next payment date has
// arrived, the working set for one scheduler cycle.
func (s *Store) ListPlansDueOnOrBefore(_ context.Context, date time.Time) ([]store.PaymentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.PaymentPlan
	for _, p := range s.plans {
		if p.RemainingPayments > 0 && !p.NextPaymentDate.After(date) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPaymentDate.Before(out[j].NextPaymentDate) })
	return out, nil
}

// DecrementRemaining decrements a plan's remaining-payments counter.
func (s *Store) DecrementRemaining(_ context.Context, accountID ledgerid.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[accountID]
	if !ok {
		return store.ErrNotFound
	}
	if p.RemainingPayments > 0 {
		p.RemainingPayments--
	}
	p.UpdatedAt = time.Now()
	s.plans[accountID] = p
	return nil
}

// SetNextPaymentDate advances a plan's next-payment-date marker.
func (s *Store) SetNextPaymentDate(_ context.Context, accountID ledgerid.AccountID, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[accountID]
	if !ok {
		return store.ErrNotFound
	}
	p.NextPaymentDate = next
	p.UpdatedAt = time.Now()
	s.plans[accountID] = p
	return nil
}

// DeletePlan removes a payment plan.
func (s *Store) DeletePlan(_ context.Context, accountID ledgerid.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[accountID]; !ok {
		return store.ErrNotFound
	}
	delete(s.plans, accountID)
	return nil
}

// InsertTransferHistory appends a transfer-history record.
func (s *Store) InsertTransferHistory(_ context.Context, r store.TransferHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, r)
	return nil
}

// ListTransferHistoryByAccount returns up to limit history records touching
// accountID, most recent first.
func (s *Store) ListTransferHistoryByAccount(_ context.Context, accountID ledgerid.AccountID, limit int) ([]store.TransferHistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.TransferHistoryRecord
	for i := len(s.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		r := s.history[i]
		if r.FromAccountID == accountID || r.ToAccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListRecentTransferHistory returns the most recent limit history records
// across all accounts.
func (s *Store) ListRecentTransferHistory(_ context.Context, limit int) ([]store.TransferHistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]store.TransferHistoryRecord, n)
	for i := 0; i < n; i++ {
		out[i] = s.history[len(s.history)-1-i]
	}
	return out, nil
}

// InsertExternalTransaction records a new external (SEPA) transaction.
func (s *Store) InsertExternalTransaction(_ context.Context, t store.ExternalTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.external[t.ExternalID]; exists {
		return store.ErrAlreadyExists
	}
	s.external[t.ExternalID] = t
	return nil
}

// GetExternalTransactionByID looks up an external transaction by its
// counterparty-assigned identifier.
func (s *Store) GetExternalTransactionByID(_ context.Context, externalID string) (*store.ExternalTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.external[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := t
	return &cp, nil
}

// ListExternalTransactionsByAccount returns every external transaction
// touching accountID.
func (s *Store) ListExternalTransactionsByAccount(_ context.Context, accountID ledgerid.AccountID) ([]store.ExternalTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.ExternalTransaction
	for _, t := range s.external {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateExternalTransactionStatus transitions an external transaction's
// settlement status.
func (s *Store) UpdateExternalTransactionStatus(_ context.Context, externalID string, status store.ExternalTransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.external[externalID]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	s.external[externalID] = t
	return nil
}
