// Package money implements exact integer money for the ledger engine.
//
// Amounts are stored as signed 64-bit minor units (cents, öre, etc.) paired
// with a currency code. No floating point is ever stored; arithmetic across
// currencies fails rather than silently converting.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCurrencyMismatch is returned whenever an operation combines two Money
// values (or a Money value and an account) whose currencies differ.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// ErrOverflow is returned when an arithmetic operation would overflow the
// signed 64-bit minor-unit representation.
var ErrOverflow = errors.New("money: amount overflow")

// ErrUnknownCurrency is returned when a currency code is not in the
// configured closed set.
var ErrUnknownCurrency = errors.New("money: unknown currency")

// Currency is a closed, configured set of three-letter ISO 4217-style codes.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	NOK Currency = "NOK"
	SEK Currency = "SEK"
	DKK Currency = "DKK"
)

// supported is the closed set of currencies this ledger instance accepts.
var supported = map[Currency]bool{
	USD: true,
	EUR: true,
	NOK: true,
	SEK: true,
	DKK: true,
}

// ValidCurrency reports whether c is in the configured closed set.
func ValidCurrency(c Currency) bool {
	return supported[c]
}

// All returns every currency in the configured closed set, in a fixed
// order, for callers that must enumerate it (e.g. system-account bootstrap).
func All() []Currency {
	return []Currency{USD, EUR, NOK, SEK, DKK}
}

// Money is an exact amount of a single currency, stored as minor units
// (e.g. cents). It is a value type and safe to copy.
type Money struct {
	minor    int64
	currency Currency
}

// New constructs a Money value from minor units. It fails with
// ErrUnknownCurrency if the currency is not configured.
func New(minor int64, currency Currency) (Money, error) {
	if !ValidCurrency(currency) {
		return Money{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return Money{minor: minor, currency: currency}, nil
}

// Zero returns the zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{minor: 0, currency: currency}
}

// Minor returns the raw minor-unit amount.
func (m Money) Minor() int64 { return m.minor }

// Currency returns the money's currency code.
func (m Money) Currency() Currency { return m.currency }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.minor == 0 }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.minor > 0 }

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool { return m.minor < 0 }

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return nil
}

// Add returns m + o. Fails with ErrCurrencyMismatch if currencies differ.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	sum := m.minor + o.minor
	if (o.minor > 0 && sum < m.minor) || (o.minor < 0 && sum > m.minor) {
		return Money{}, ErrOverflow
	}
	return Money{minor: sum, currency: m.currency}, nil
}

// Sub returns m - o. Fails with ErrCurrencyMismatch if currencies differ.
func (m Money) Sub(o Money) (Money, error) {
	neg := Money{minor: -o.minor, currency: o.currency}
	return m.Add(neg)
}

// MulScaled multiplies m by a rational factor expressed as numerator/denominator
// (denominator > 0), rounding to the nearest minor unit (half away from zero).
// Used to apply scaled-decimal rates (e.g. interest) to an integer amount.
func (m Money) MulScaled(numerator, denominator int64) (Money, error) {
	if denominator == 0 {
		return Money{}, errors.New("money: zero denominator")
	}
	product := m.minor * numerator
	// overflow check via division back out, sufficient for the magnitudes
	// this ledger deals in (interest-rate scaling on bounded principal amounts).
	if numerator != 0 && product/numerator != m.minor {
		return Money{}, ErrOverflow
	}
	quotient := product / denominator
	remainder := product % denominator
	if remainder*2 >= denominator || remainder*2 <= -denominator {
		if product >= 0 {
			quotient++
		} else {
			quotient--
		}
	}
	return Money{minor: quotient, currency: m.currency}, nil
}

// Cmp returns -1, 0, or 1 as m is less than, equal to, or greater than o.
// Fails with ErrCurrencyMismatch if currencies differ.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	switch {
	case m.minor < o.minor:
		return -1, nil
	case m.minor > o.minor:
		return 1, nil
	default:
		return 0, nil
	}
}

// Abs returns the absolute value of m.
func (m Money) Abs() Money {
	if m.minor < 0 {
		return Money{minor: -m.minor, currency: m.currency}
	}
	return m
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{minor: -m.minor, currency: m.currency}
}

// String formats the amount as a decimal string with two implied minor-unit
// digits followed by the currency code, e.g. "123.45 USD"; Parse reads it
// back. Repository columns and the JSON (CDC) encoding use DecimalString
// with the currency carried separately.
func (m Money) String() string {
	sign := ""
	v := m.minor
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / 100
	frac := v % 100
	return fmt.Sprintf("%s%d.%02d %s", sign, whole, frac, m.currency)
}

// DecimalString returns just the numeric decimal string (no currency
// suffix), for storage in decimal-typed database columns.
func (m Money) DecimalString() string {
	sign := ""
	v := m.minor
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Parse parses the canonical "123.45 USD" form produced by String.
func Parse(s string) (Money, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Money{}, fmt.Errorf("money: invalid format %q", s)
	}
	return ParseDecimal(parts[0], Currency(parts[1]))
}

// ParseDecimal parses a bare decimal string ("123.45" or "-5") against an
// explicit currency, as used when reading amount/currency columns
// separately from a repository row.
func ParseDecimal(decimalStr string, currency Currency) (Money, error) {
	if !ValidCurrency(currency) {
		return Money{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	neg := false
	s := decimalStr
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	wholeStr, fracStr, hasFrac := strings.Cut(s, ".")
	if wholeStr == "" {
		wholeStr = "0"
	}
	whole, err := strconv.ParseInt(wholeStr, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", decimalStr, err)
	}
	frac := int64(0)
	if hasFrac {
		for len(fracStr) < 2 {
			fracStr += "0"
		}
		fracStr = fracStr[:2]
		frac, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return Money{}, fmt.Errorf("money: invalid amount %q: %w", decimalStr, err)
		}
	}
	minor := whole*100 + frac
	if neg {
		minor = -minor
	}
	return Money{minor: minor, currency: currency}, nil
}

// wireMoney is the JSON wire shape for Money: a decimal string plus
// currency, matching the Postgres adapter's DecimalString encoding so every
// consumer of a money field (CDC included) sees the same precision-safe
// shape rather than a raw integer.
type wireMoney struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON encodes m as {"amount": "<decimal string>", "currency": ...}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMoney{Amount: m.DecimalString(), Currency: m.currency})
}

// UnmarshalJSON decodes m from the {"amount", "currency"} wire shape.
func (m *Money) UnmarshalJSON(data []byte) error {
	var w wireMoney
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := ParseDecimal(w.Amount, w.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
