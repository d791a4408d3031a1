package sepa

import "testing"

func TestValidateIBANValid(t *testing.T) {
	// a well-known valid test IBAN (Germany, 22 chars)
	if err := ValidateIBAN("DE89370400440532013000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateIBANWithSpaces(t *testing.T) {
	if err := ValidateIBAN("DE89 3704 0044 0532 0130 00"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateIBANBadChecksum(t *testing.T) {
	if err := ValidateIBAN("DE89370400440532013001"); err == nil {
		t.Fatal("expected ErrInvalidIBAN")
	}
}

func TestValidateIBANUnknownCountry(t *testing.T) {
	if err := ValidateIBAN("ZZ89370400440532013000"); err == nil {
		t.Fatal("expected ErrInvalidIBAN")
	}
}

func TestValidateIBANWrongLength(t *testing.T) {
	if err := ValidateIBAN("DE8937040044053201300"); err == nil {
		t.Fatal("expected ErrInvalidIBAN")
	}
}

func TestValidateIBANTooShort(t *testing.T) {
	if err := ValidateIBAN("DE"); err == nil {
		t.Fatal("expected ErrInvalidIBAN")
	}
}
