// Package postgres implements store.Store against a PostgreSQL database via
// pgx/v5. Grounded on the teacher's internal/repository/postgres package:
// a pooled connection, pgtype.Numeric/shopspring-decimal for decimal-safe
// amounts, pgx.ErrNoRows mapped to a package-level not-found sentinel.
//
// Unlike the teacher, queries here are written by hand rather than through
// sqlc: sqlc requires a generation step this module cannot run, so Store
// issues raw SQL through pgxpool directly. The pgx/pgtype/decimal stack
// itself is unchanged from the teacher.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { s.pool.Close() }

var _ store.Store = (*Store)(nil)

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		if pgErr.SQLState() == "23505" { // unique_violation
			return store.ErrAlreadyExists
		}
		if pgErr.SQLState() == "23503" { // foreign_key_violation
			return store.ErrReferenced
		}
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

// UpsertAccount inserts or replaces account metadata.
func (s *Store) UpsertAccount(ctx context.Context, m store.AccountMetadata) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (account_id, customer_id, account_type, currency, nickname, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			account_type = EXCLUDED.account_type,
			currency = EXCLUDED.currency,
			nickname = EXCLUDED.nickname,
			updated_at = EXCLUDED.updated_at
	`, m.AccountID.String(), string(m.CustomerID), m.AccountType, string(m.Currency), m.Nickname, m.CreatedAt, m.UpdatedAt)
	return mapErr(err)
}

// GetAccountByID looks up account metadata by ledger account id.
func (s *Store) GetAccountByID(ctx context.Context, id ledgerid.AccountID) (*store.AccountMetadata, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, customer_id, account_type, currency, nickname, created_at, updated_at
		FROM accounts WHERE account_id = $1
	`, id.String())
	m, err := scanAccount(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

// ListByCustomer returns every account owned by customerID.
func (s *Store) ListByCustomer(ctx context.Context, customerID ledgerid.CustomerID) ([]store.AccountMetadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, customer_id, account_type, currency, nickname, created_at, updated_at
		FROM accounts WHERE customer_id = $1 ORDER BY created_at
	`, string(customerID))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListByCustomerAndType returns accounts owned by customerID of the given type.
func (s *Store) ListByCustomerAndType(ctx context.Context, customerID ledgerid.CustomerID, accountType string) ([]store.AccountMetadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, customer_id, account_type, currency, nickname, created_at, updated_at
		FROM accounts WHERE customer_id = $1 AND account_type = $2 ORDER BY created_at
	`, string(customerID), accountType)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// UpdateNickname sets the nickname for an existing account.
func (s *Store) UpdateNickname(ctx context.Context, id ledgerid.AccountID, nickname string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE accounts SET nickname = $1, updated_at = now() WHERE account_id = $2`, nickname, id.String())
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteAccount removes account metadata; a foreign-key violation from an
// open plan surfaces as store.ErrReferenced via mapErr.
func (s *Store) DeleteAccount(ctx context.Context, id ledgerid.AccountID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE account_id = $1`, id.String())
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*store.AccountMetadata, error) {
	var (
		m          store.AccountMetadata
		accountID  string
		customerID string
		currency   string
	)
	if err := row.Scan(&accountID, &customerID, &m.AccountType, &currency, &m.Nickname, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := ledgerid.Parse(accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: corrupt account_id %q: %w", accountID, err)
	}
	m.AccountID = ledgerid.NewAccountID(id)
	m.CustomerID = ledgerid.CustomerID(customerID)
	m.Currency = money.Currency(currency)
	return &m, nil
}

func scanAccounts(rows pgx.Rows) ([]store.AccountMetadata, error) {
	var out []store.AccountMetadata
	for rows.Next() {
		m, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// accountIDFromString is a small helper shared by the plan/history/external
// scan functions below.
func accountIDFromString(s string) (ledgerid.AccountID, error) {
	id, err := ledgerid.Parse(s)
	if err != nil {
		return ledgerid.AccountID{}, err
	}
	return ledgerid.NewAccountID(id), nil
}

func transferIDFromString(s string) (ledgerid.TransferID, error) {
	id, err := ledgerid.Parse(s)
	if err != nil {
		return ledgerid.TransferID{}, err
	}
	return ledgerid.NewTransferID(id), nil
}
