// Package sepa implements the SEPA credit-transfer adapter: IBAN
// validation, business-rule checks, and a settlement state machine driven
// by a cancellable timer wheel. Field shapes are grounded on the pack's
// pain.001 message structures (debtor/creditor party, IBAN/BIC, instructed
// amount, remittance information), adapted into this module's own message
// and validation types rather than the XML wire format itself.
package sepa

import (
	"errors"
	"math/big"
	"strings"
)

// ErrInvalidIBAN is returned when an IBAN fails country-length or mod-97
// checksum validation, per spec.md §4.G.
var ErrInvalidIBAN = errors.New("sepa: invalid IBAN")

// ibanLength is the per-country total IBAN length (letters+digits), the
// "country table" referenced by spec.md §4.G. Limited to the SEPA
// currencies this adapter accepts plus their common counterpart countries.
var ibanLength = map[string]int{
	"AT": 20, "BE": 16, "DE": 22, "DK": 18, "EE": 20,
	"ES": 24, "FI": 18, "FR": 27, "GB": 22, "IE": 22,
	"IT": 27, "LU": 20, "NL": 18, "NO": 15, "PT": 25,
	"SE": 24, "CH": 21, "PL": 28,
}

// ValidateIBAN checks country code presence, per-country length, and the
// mod-97 checksum (ISO 7064), in that order per spec.md §4.G.
func ValidateIBAN(iban string) error {
	s := strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(s) < 4 {
		return ErrInvalidIBAN
	}
	country := s[0:2]
	wantLen, ok := ibanLength[country]
	if !ok {
		return ErrInvalidIBAN
	}
	if len(s) != wantLen {
		return ErrInvalidIBAN
	}
	if !isAlnum(s) {
		return ErrInvalidIBAN
	}
	if !mod97Valid(s) {
		return ErrInvalidIBAN
	}
	return nil
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// mod97Valid implements the IBAN checksum: move the first four characters
// to the end, convert letters to numbers (A=10 ... Z=35), and verify the
// resulting decimal value mod 97 equals 1.
func mod97Valid(iban string) bool {
	rearranged := iban[4:] + iban[0:4]
	var digits strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			digits.WriteString(big.NewInt(int64(r-'A'+10)).String())
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	remainder := new(big.Int).Mod(n, big.NewInt(97))
	return remainder.Int64() == 1
}
