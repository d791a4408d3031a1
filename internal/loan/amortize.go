// Package loan implements loan creation, disbursement, and amortization
// math on top of the ledger engine and the metadata store, grounded on the
// teacher's loan_service.go / loan_payment_service.go method shape and
// input-struct validation style.
package loan

import (
	"errors"
	"math"
	"time"

	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

// ErrLoanValidation is returned when loan terms are invalid: term <= 0 or
// rate < 0, per spec.md §4.E.
var ErrLoanValidation = errors.New("loan: invalid loan terms")

// NumPayments returns the total number of scheduled payments for a term in
// months at the given frequency, per spec.md §4.E's rounding rules:
// WEEKLY = ceil(months*52/12), BI_WEEKLY = ceil(months*26/12), MONTHLY = months.
func NumPayments(termMonths int32, freq store.PaymentFrequency) (int32, error) {
	if termMonths <= 0 {
		return 0, ErrLoanValidation
	}
	switch freq {
	case store.FrequencyMonthly:
		return termMonths, nil
	case store.FrequencyWeekly:
		return int32(ceilDiv(int64(termMonths)*52, 12)), nil
	case store.FrequencyBiWeekly:
		return int32(ceilDiv(int64(termMonths)*26, 12)), nil
	default:
		return 0, ErrLoanValidation
	}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// periodRate converts an annual scaled-decimal rate (numerator over
// store.RateScale) to the per-period rate as a float64, isolating the
// transcendental pow computation to this package per the Design Note that
// floating point never touches stored balances directly.
func periodRate(annualRateNum int64, periodsPerYear float64) float64 {
	annual := float64(annualRateNum) / float64(store.RateScale)
	return annual / periodsPerYear
}

// periodsPerYear maps a payment frequency to its nominal annual period
// count, used only to derive the period rate (not the payment count).
func periodsPerYear(freq store.PaymentFrequency) float64 {
	switch freq {
	case store.FrequencyWeekly:
		return 52
	case store.FrequencyBiWeekly:
		return 26
	default:
		return 12
	}
}

// PaymentAmount computes the per-period payment for principal, an annual
// scaled-decimal rate, n total payments, loan type and frequency, per
// spec.md §4.E. Floating point (math.Pow) is used for the transcendental
// annuity factor and confined to this function; the result is rounded to
// the nearest minor unit before returning.
func PaymentAmount(principal money.Money, annualRateNum int64, n int32, loanType store.LoanType, freq store.PaymentFrequency) (money.Money, error) {
	if n <= 0 || annualRateNum < 0 {
		return money.Money{}, ErrLoanValidation
	}
	r := periodRate(annualRateNum, periodsPerYear(freq))
	currency := principal.Currency()

	switch loanType {
	case store.LoanAnnuity:
		if r == 0 {
			minor := principal.Minor() / int64(n)
			return money.New(minor, currency)
		}
		factor := math.Pow(1+r, float64(n))
		m := float64(principal.Minor()) * r * factor / (factor - 1)
		return money.New(int64(math.Round(m)), currency)

	case store.LoanSerial:
		principalPortion := principal.Minor() / int64(n)
		interestPortion := float64(principal.Minor()) * r
		m := float64(principalPortion) + interestPortion
		return money.New(int64(math.Round(m)), currency)

	default:
		return money.Money{}, ErrLoanValidation
	}
}

// ScheduleEntry is one row of an amortization schedule, per spec.md §4.E.
type ScheduleEntry struct {
	PaymentNumber    int32
	PaymentDate      time.Time
	PaymentAmount    money.Money
	PrincipalAmount  money.Money
	InterestAmount   money.Money
	RemainingBalance money.Money
}

// Schedule generates the ordered amortization schedule for a plan, stopping
// when the remaining balance reaches zero or n entries have been emitted.
// The reconciliation rule adjusts the last entry's principal portion so
// that the sum of all principal portions equals principal exactly, per
// spec.md §4.E.
func Schedule(principal money.Money, annualRateNum int64, n int32, loanType store.LoanType, freq store.PaymentFrequency, firstPaymentDate time.Time) ([]ScheduleEntry, error) {
	if n <= 0 || annualRateNum < 0 {
		return nil, ErrLoanValidation
	}
	currency := principal.Currency()
	r := periodRate(annualRateNum, periodsPerYear(freq))

	var fixedPayment money.Money
	var fixedPrincipalPortion int64
	switch loanType {
	case store.LoanAnnuity:
		payment, err := PaymentAmount(principal, annualRateNum, n, loanType, freq)
		if err != nil {
			return nil, err
		}
		fixedPayment = payment
	case store.LoanSerial:
		fixedPrincipalPortion = principal.Minor() / int64(n)
	default:
		return nil, ErrLoanValidation
	}

	entries := make([]ScheduleEntry, 0, n)
	remaining := principal.Minor()
	step := stepFor(freq)

	for i := int32(1); i <= n && remaining > 0; i++ {
		interest := int64(math.Round(float64(remaining) * r))

		var principalPortion int64
		switch loanType {
		case store.LoanAnnuity:
			principalPortion = fixedPayment.Minor() - interest
		case store.LoanSerial:
			principalPortion = fixedPrincipalPortion
		}

		last := i == n || principalPortion >= remaining
		if last {
			// reconciliation rule: absorb any drift into the final
			// scheduled payment so principal portions sum exactly.
			principalPortion = remaining
		}
		remaining -= principalPortion

		paymentAmt, err := money.New(principalPortion+interest, currency)
		if err != nil {
			return nil, err
		}
		principalAmt, err := money.New(principalPortion, currency)
		if err != nil {
			return nil, err
		}
		interestAmt, err := money.New(interest, currency)
		if err != nil {
			return nil, err
		}
		remainingAmt, err := money.New(remaining, currency)
		if err != nil {
			return nil, err
		}

		entries = append(entries, ScheduleEntry{
			PaymentNumber:    i,
			PaymentDate:      firstPaymentDate.AddDate(0, 0, 0).Add(step * time.Duration(i-1)),
			PaymentAmount:    paymentAmt,
			PrincipalAmount:  principalAmt,
			InterestAmount:   interestAmt,
			RemainingBalance: remainingAmt,
		})

		if last {
			break
		}
	}
	return entries, nil
}

func stepFor(freq store.PaymentFrequency) time.Duration {
	switch freq {
	case store.FrequencyWeekly:
		return 7 * 24 * time.Hour
	case store.FrequencyBiWeekly:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}
