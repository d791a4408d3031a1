package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

// InsertTransferHistory appends a transfer-history record. Written only by
// the CDC consumer's business handler, never by request handlers, per
// spec.md §3.
func (s *Store) InsertTransferHistory(ctx context.Context, r store.TransferHistoryRecord) error {
	amount, err := decimalNumeric(r.Amount.DecimalString())
	if err != nil {
		return err
	}
	_, execErr := s.pool.Exec(ctx, `
		INSERT INTO transfers (transfer_id, from_account_id, to_account_id, amount, currency, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (transfer_id) DO NOTHING
	`, r.TransferID.String(), r.FromAccountID.String(), r.ToAccountID.String(), amount, string(r.Amount.Currency()), r.Description, r.CreatedAt)
	return mapErr(execErr)
}

// ListTransferHistoryByAccount returns up to limit records touching
// accountID, most recent first.
func (s *Store) ListTransferHistoryByAccount(ctx context.Context, accountID ledgerid.AccountID, limit int) ([]store.TransferHistoryRecord, error) {
	rows, err := s.pool.Query(ctx, historySelect+`
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, accountID.String(), limitOrAll(limit))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// ListRecentTransferHistory returns the most recent limit records across all
// accounts.
func (s *Store) ListRecentTransferHistory(ctx context.Context, limit int) ([]store.TransferHistoryRecord, error) {
	rows, err := s.pool.Query(ctx, historySelect+` ORDER BY created_at DESC LIMIT $1`, limitOrAll(limit))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

func limitOrAll(limit int) int64 {
	if limit <= 0 {
		return 1 << 32
	}
	return int64(limit)
}

const historySelect = `
	SELECT transfer_id, from_account_id, to_account_id, amount, currency, description, created_at
	FROM transfers`

func scanHistory(rows pgx.Rows) ([]store.TransferHistoryRecord, error) {
	var out []store.TransferHistoryRecord
	for rows.Next() {
		var (
			r                      store.TransferHistoryRecord
			transferID             string
			fromAccountID          string
			toAccountID            string
			amount                 pgtype.Numeric
			currency               string
		)
		if err := rows.Scan(&transferID, &fromAccountID, &toAccountID, &amount, &currency, &r.Description, &r.CreatedAt); err != nil {
			return nil, err
		}
		tid, err := transferIDFromString(transferID)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt transfer_id %q: %w", transferID, err)
		}
		fromID, err := accountIDFromString(fromAccountID)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt from_account_id %q: %w", fromAccountID, err)
		}
		toID, err := accountIDFromString(toAccountID)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt to_account_id %q: %w", toAccountID, err)
		}
		r.TransferID = tid
		r.FromAccountID = fromID
		r.ToAccountID = toID
		r.Amount, err = money.ParseDecimal(numericToDecimal(amount).String(), money.Currency(currency))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
