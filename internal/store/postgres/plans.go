package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

// UpsertPlan inserts or replaces a payment plan, including its fee list as
// a JSON array — fees are a small, variably-shaped attachment, not a
// queried-on column, so JSON avoids a join for every read.
func (s *Store) UpsertPlan(ctx context.Context, p store.PaymentPlan) error {
	feesJSON, err := feesToJSON(p.Fees)
	if err != nil {
		return fmt.Errorf("postgres: encode fees: %w", err)
	}
	principal, err := decimalNumeric(p.Principal.DecimalString())
	if err != nil {
		return err
	}
	total, err := decimalNumeric(p.TotalLoanAmount.DecimalString())
	if err != nil {
		return err
	}
	payment, err := decimalNumeric(p.PaymentAmount.DecimalString())
	if err != nil {
		return err
	}

	_, execErr := s.pool.Exec(ctx, `
		INSERT INTO payment_plans (
			account_id, customer_id, principal, currency, annual_rate_num, fees,
			total_loan_amount, term_months, loan_type, payment_frequency,
			payment_amount, remaining_payments, next_payment_date, primary_account_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (account_id) DO UPDATE SET
			principal = EXCLUDED.principal,
			annual_rate_num = EXCLUDED.annual_rate_num,
			fees = EXCLUDED.fees,
			total_loan_amount = EXCLUDED.total_loan_amount,
			term_months = EXCLUDED.term_months,
			loan_type = EXCLUDED.loan_type,
			payment_frequency = EXCLUDED.payment_frequency,
			payment_amount = EXCLUDED.payment_amount,
			remaining_payments = EXCLUDED.remaining_payments,
			next_payment_date = EXCLUDED.next_payment_date,
			primary_account_id = EXCLUDED.primary_account_id,
			updated_at = EXCLUDED.updated_at
	`,
		p.AccountID.String(), string(p.CustomerID), principal, string(p.Principal.Currency()), p.AnnualRateNum, feesJSON,
		total, p.TermMonths, string(p.LoanType), string(p.PaymentFrequency),
		payment, p.RemainingPayments, p.NextPaymentDate, nullableAccountID(p.PrimaryAccountID),
		p.CreatedAt, p.UpdatedAt,
	)
	return mapErr(execErr)
}

// GetPlanByAccountID looks up a payment plan by loan account id.
func (s *Store) GetPlanByAccountID(ctx context.Context, accountID ledgerid.AccountID) (*store.PaymentPlan, error) {
	row := s.pool.QueryRow(ctx, planSelect+` WHERE account_id = $1`, accountID.String())
	p, err := scanPlan(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

// ListAllPlans returns every payment plan, oldest first.
func (s *Store) ListAllPlans(ctx context.Context) ([]store.PaymentPlan, error) {
	rows, err := s.pool.Query(ctx, planSelect+` ORDER BY created_at`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

// ListPlansDueOnOrBefore returns every open plan whose next payment date has
// arrived, the scheduler's per-cycle working set.
func (s *Store) ListPlansDueOnOrBefore(ctx context.Context, date time.Time) ([]store.PaymentPlan, error) {
	rows, err := s.pool.Query(ctx, planSelect+` WHERE remaining_payments > 0 AND next_payment_date <= $1 ORDER BY next_payment_date`, date)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

// DecrementRemaining decrements a plan's remaining-payments counter, never
// going below zero.
func (s *Store) DecrementRemaining(ctx context.Context, accountID ledgerid.AccountID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_plans SET remaining_payments = GREATEST(remaining_payments - 1, 0), updated_at = now()
		WHERE account_id = $1
	`, accountID.String())
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetNextPaymentDate advances a plan's next-payment-date marker.
func (s *Store) SetNextPaymentDate(ctx context.Context, accountID ledgerid.AccountID, next time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE payment_plans SET next_payment_date = $1, updated_at = now() WHERE account_id = $2`, next, accountID.String())
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeletePlan removes a payment plan.
func (s *Store) DeletePlan(ctx context.Context, accountID ledgerid.AccountID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM payment_plans WHERE account_id = $1`, accountID.String())
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const planSelect = `
	SELECT account_id, customer_id, principal, currency, annual_rate_num, fees,
		total_loan_amount, term_months, loan_type, payment_frequency,
		payment_amount, remaining_payments, next_payment_date, primary_account_id,
		created_at, updated_at
	FROM payment_plans`

func scanPlan(row rowScanner) (*store.PaymentPlan, error) {
	var (
		p                store.PaymentPlan
		accountID        string
		customerID       string
		currency         string
		principal        pgtype.Numeric
		totalLoan        pgtype.Numeric
		payment          pgtype.Numeric
		feesJSON         []byte
		loanType         string
		frequency        string
		primaryAccountID *string
	)
	if err := row.Scan(
		&accountID, &customerID, &principal, &currency, &p.AnnualRateNum, &feesJSON,
		&totalLoan, &p.TermMonths, &loanType, &frequency,
		&payment, &p.RemainingPayments, &p.NextPaymentDate, &primaryAccountID,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := ledgerid.Parse(accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: corrupt account_id %q: %w", accountID, err)
	}
	p.AccountID = ledgerid.NewAccountID(id)
	p.CustomerID = ledgerid.CustomerID(customerID)
	p.LoanType = store.LoanType(loanType)
	p.PaymentFrequency = store.PaymentFrequency(frequency)

	cur := money.Currency(currency)
	if p.Principal, err = money.ParseDecimal(numericToDecimal(principal).String(), cur); err != nil {
		return nil, err
	}
	if p.TotalLoanAmount, err = money.ParseDecimal(numericToDecimal(totalLoan).String(), cur); err != nil {
		return nil, err
	}
	if p.PaymentAmount, err = money.ParseDecimal(numericToDecimal(payment).String(), cur); err != nil {
		return nil, err
	}
	if p.Fees, err = feesFromJSON(feesJSON, cur); err != nil {
		return nil, err
	}
	if primaryAccountID != nil {
		pid, err := ledgerid.Parse(*primaryAccountID)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt primary_account_id %q: %w", *primaryAccountID, err)
		}
		p.PrimaryAccountID = ledgerid.NewAccountID(pid)
	}
	return &p, nil
}

func scanPlans(rows pgx.Rows) ([]store.PaymentPlan, error) {
	var out []store.PaymentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func decimalNumeric(decimalStr string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(decimalStr); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("postgres: invalid decimal %q: %w", decimalStr, err)
	}
	return n, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func nullableAccountID(id ledgerid.AccountID) *string {
	if id.IsZero() {
		return nil
	}
	s := id.String()
	return &s
}
