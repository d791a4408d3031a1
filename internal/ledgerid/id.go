// Package ledgerid defines the opaque identifier types used across the
// ledger engine: 128-bit account/transfer ids and validated customer ids.
package ledgerid

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"regexp"
)

// ErrInvalidCustomerID is returned when a customer id does not match the
// constrained character set and length.
var ErrInvalidCustomerID = errors.New("ledgerid: invalid customer id")

// ID is an opaque 128-bit identifier shared by accounts and transfers.
// Its textual form (String) is a decimal integer, matching spec.md §4.A.
type ID struct {
	hi, lo uint64
}

// Zero is the reserved all-zero id, never valid as an allocated identifier.
var Zero ID

// New constructs an ID from its two 64-bit halves. Used when the caller
// supplies its own identifier (e.g. deterministic test ids).
func New(hi, lo uint64) ID {
	return ID{hi: hi, lo: lo}
}

// IsZero reports whether id is the reserved zero value.
func (id ID) IsZero() bool { return id.hi == 0 && id.lo == 0 }

// Bytes returns the 16-byte big-endian encoding of id.
func (id ID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.hi)
	binary.BigEndian.PutUint64(b[8:16], id.lo)
	return b
}

// String renders id as a decimal integer, per spec.md §4.A.
func (id ID) String() string {
	b := id.Bytes()
	n := new(big.Int).SetBytes(b[:])
	return n.String()
}

// MarshalJSON encodes id as its decimal string form, matching String.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes id from its decimal string form, matching Parse.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse reconstructs an ID from its decimal textual form.
func Parse(s string) (ID, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ID{}, errors.New("ledgerid: invalid id string")
	}
	b := n.Bytes()
	if len(b) > 16 {
		return ID{}, errors.New("ledgerid: id out of range")
	}
	var padded [16]byte
	copy(padded[16-len(b):], b)
	return ID{
		hi: binary.BigEndian.Uint64(padded[0:8]),
		lo: binary.BigEndian.Uint64(padded[8:16]),
	}, nil
}

// AccountID identifies a ledger account.
type AccountID struct{ ID }

// TransferID identifies a ledger transfer.
type TransferID struct{ ID }

// NewAccountID wraps a raw ID as an AccountID.
func NewAccountID(id ID) AccountID { return AccountID{id} }

// NewTransferID wraps a raw ID as a TransferID.
func NewTransferID(id ID) TransferID { return TransferID{id} }

var customerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// CustomerID is a constrained string identifier for a customer.
type CustomerID string

// NewCustomerID validates s against the `[A-Za-z0-9_-]+`, <=50 chars rule
// from spec.md §4.A, failing with ErrInvalidCustomerID otherwise.
func NewCustomerID(s string) (CustomerID, error) {
	if !customerIDPattern.MatchString(s) {
		return "", ErrInvalidCustomerID
	}
	return CustomerID(s), nil
}
