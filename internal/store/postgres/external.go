package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

// InsertExternalTransaction records a new external (SEPA) transaction.
func (s *Store) InsertExternalTransaction(ctx context.Context, t store.ExternalTransaction) error {
	amount, err := decimalNumeric(t.Amount.DecimalString())
	if err != nil {
		return err
	}
	bankInfo, err := json.Marshal(t.BankInfo)
	if err != nil {
		return fmt.Errorf("postgres: encode bank_info: %w", err)
	}
	_, execErr := s.pool.Exec(ctx, `
		INSERT INTO external_transactions (
			external_id, account_id, transfer_id, transaction_type, amount, currency,
			status, bank_info, description, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, t.ExternalID, t.AccountID.String(), nullableTransferID(t.TransferID), t.TransactionType, amount, string(t.Amount.Currency()),
		string(t.Status), bankInfo, t.Description, t.CreatedAt, t.UpdatedAt)
	return mapErr(execErr)
}

// GetExternalTransactionByID looks up an external transaction by its
// counterparty-assigned identifier.
func (s *Store) GetExternalTransactionByID(ctx context.Context, externalID string) (*store.ExternalTransaction, error) {
	row := s.pool.QueryRow(ctx, externalSelect+` WHERE external_id = $1`, externalID)
	t, err := scanExternal(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

// ListExternalTransactionsByAccount returns every external transaction
// touching accountID.
func (s *Store) ListExternalTransactionsByAccount(ctx context.Context, accountID ledgerid.AccountID) ([]store.ExternalTransaction, error) {
	rows, err := s.pool.Query(ctx, externalSelect+` WHERE account_id = $1 ORDER BY created_at`, accountID.String())
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []store.ExternalTransaction
	for rows.Next() {
		t, err := scanExternal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateExternalTransactionStatus transitions an external transaction's
// settlement status.
func (s *Store) UpdateExternalTransactionStatus(ctx context.Context, externalID string, status store.ExternalTransactionStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE external_transactions SET status = $1, updated_at = now() WHERE external_id = $2
	`, string(status), externalID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const externalSelect = `
	SELECT external_id, account_id, transfer_id, transaction_type, amount, currency,
		status, bank_info, description, created_at, updated_at
	FROM external_transactions`

func scanExternal(row rowScanner) (*store.ExternalTransaction, error) {
	var (
		t               store.ExternalTransaction
		accountID       string
		transferID      *string
		amount          pgtype.Numeric
		currency        string
		status          string
		bankInfo        []byte
	)
	if err := row.Scan(&t.ExternalID, &accountID, &transferID, &t.TransactionType, &amount, &currency,
		&status, &bankInfo, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	aid, err := accountIDFromString(accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: corrupt account_id %q: %w", accountID, err)
	}
	t.AccountID = aid
	if transferID != nil {
		tid, err := transferIDFromString(*transferID)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt transfer_id %q: %w", *transferID, err)
		}
		t.TransferID = tid
	}
	t.Status = store.ExternalTransactionStatus(status)
	t.Amount, err = money.ParseDecimal(numericToDecimal(amount).String(), money.Currency(currency))
	if err != nil {
		return nil, err
	}
	if len(bankInfo) > 0 {
		if err := json.Unmarshal(bankInfo, &t.BankInfo); err != nil {
			return nil, fmt.Errorf("postgres: decode bank_info: %w", err)
		}
	}
	return &t, nil
}

func nullableTransferID(id ledgerid.TransferID) *string {
	if id.IsZero() {
		return nil
	}
	s := id.String()
	return &s
}
