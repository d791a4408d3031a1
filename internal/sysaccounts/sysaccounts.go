// Package sysaccounts bootstraps the ledger's per-currency system accounts
// (SEPA suspense, equity) and persists their ids to disk so they stay
// stable across process restarts of the in-process ledger engine.
//
// The persistence file is written atomically, grounded on the temp-file-
// then-rename pattern used throughout the pack's file-backed stores (e.g.
// FileStore.writeJSON): encode to a sibling temp file, close it, then
// os.Rename into place, so a crash mid-write never leaves a
// torn or partially-written bootstrap file behind.
package sysaccounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
)

// systemCustomerID tags every system account; it is never a real customer.
const systemCustomerID = ledgerid.CustomerID("system")

// CurrencyAccounts holds one currency's pair of system account ids.
type CurrencyAccounts struct {
	SuspenseAccountID ledgerid.AccountID `json:"suspense_account_id"`
	EquityAccountID   ledgerid.AccountID `json:"equity_account_id"`
}

// SystemAccounts maps each configured currency to its system accounts.
type SystemAccounts map[money.Currency]CurrencyAccounts

// Bootstrap ensures every currency in currencies has a SUSPENSE and an
// EQUITY account in engine, reusing the ids recorded at path when present
// so they remain stable across restarts, and atomically persisting any
// newly allocated ids back to path. It is idempotent: calling it again
// against the same path and engine reuses the accounts already present and
// returns the same ids.
func Bootstrap(engine *ledger.Engine, path string, currencies []money.Currency) (SystemAccounts, error) {
	existing, err := load(path)
	if err != nil {
		return nil, err
	}

	result := make(SystemAccounts, len(currencies))
	dirty := false
	for _, c := range currencies {
		prior := existing[c]
		if !prior.SuspenseAccountID.IsZero() && !prior.EquityAccountID.IsZero() {
			found := engine.LookupAccounts([]ledgerid.AccountID{prior.SuspenseAccountID, prior.EquityAccountID})
			if found[0] != nil && found[1] != nil {
				result[c] = prior
				continue
			}
		}
		reqs := []ledger.CreateAccountRequest{
			{ID: prior.SuspenseAccountID, Currency: c, Type: ledger.AccountSuspense, CustomerID: systemCustomerID, UserTag: "system-suspense"},
			{ID: prior.EquityAccountID, Currency: c, Type: ledger.AccountEquity, CustomerID: systemCustomerID, UserTag: "system-equity"},
		}
		created := engine.CreateAccounts(reqs)
		for _, r := range created {
			if r.Err != nil {
				return nil, fmt.Errorf("sysaccounts: create system accounts for %s: %w", c, r.Err)
			}
		}
		ca := CurrencyAccounts{SuspenseAccountID: created[0].ID, EquityAccountID: created[1].ID}
		if ca != prior {
			dirty = true
		}
		result[c] = ca
	}

	if dirty {
		if err := writeAtomic(path, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// SuspenseAccountID returns the suspense account id for c, or the zero
// AccountID if c was not bootstrapped.
func (sa SystemAccounts) SuspenseAccountID(c money.Currency) ledgerid.AccountID {
	return sa[c].SuspenseAccountID
}

func load(path string) (SystemAccounts, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sysaccounts: read %s: %w", path, err)
	}
	var sa SystemAccounts
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("sysaccounts: decode %s: %w", path, err)
	}
	return sa, nil
}

func writeAtomic(path string, sa SystemAccounts) error {
	data, err := json.MarshalIndent(sa, "", "  ")
	if err != nil {
		return fmt.Errorf("sysaccounts: encode: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".system-accounts-*.tmp")
	if err != nil {
		return fmt.Errorf("sysaccounts: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sysaccounts: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sysaccounts: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sysaccounts: rename temp file into place: %w", err)
	}
	return nil
}
