package auth

import (
	"encoding/hex"
	"strings"

	"github.com/juju/errors"
)

// Hex-encoded material sizes, in hex characters, without the 0x prefix.
const (
	addressHexLen   = 40  // 20 bytes
	publicKeyHexLen = 64  // 32 bytes
	signatureHexLen = 128 // 64 bytes
)

// EnsureHexPrefix returns s with a "0x" prefix, adding one if missing.
func EnsureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

// StripHexPrefix returns s without a leading "0x".
func StripHexPrefix(s string) string {
	return strings.TrimPrefix(s, "0x")
}

// ValidateAddress checks that s is a valid 20-byte hex address, with or
// without the 0x prefix.
func ValidateAddress(s string) error {
	return errors.Trace(validateHex(s, addressHexLen, "address"))
}

// ValidatePublicKey checks that s is a valid 32-byte hex public key.
func ValidatePublicKey(s string) error {
	return errors.Trace(validateHex(s, publicKeyHexLen, "public key"))
}

// ValidateSignature checks that s is a valid 64-byte hex signature.
func ValidateSignature(s string) error {
	return errors.Trace(validateHex(s, signatureHexLen, "signature"))
}

// NormalizeAddress validates and lowercases the address, with the 0x prefix.
func NormalizeAddress(s string) (string, error) {
	if err := ValidateAddress(s); err != nil {
		return "", errors.Trace(err)
	}
	return EnsureHexPrefix(strings.ToLower(StripHexPrefix(s))), nil
}

// NormalizePublicKey validates and lowercases the public key, with the 0x
// prefix.
func NormalizePublicKey(s string) (string, error) {
	if err := ValidatePublicKey(s); err != nil {
		return "", errors.Trace(err)
	}
	return EnsureHexPrefix(strings.ToLower(StripHexPrefix(s))), nil
}

// NormalizeSignature validates and lowercases the signature, with the 0x
// prefix.
func NormalizeSignature(s string) (string, error) {
	if err := ValidateSignature(s); err != nil {
		return "", errors.Trace(err)
	}
	return EnsureHexPrefix(strings.ToLower(StripHexPrefix(s))), nil
}

func validateHex(s string, wantLen int, what string) error {
	s = StripHexPrefix(s)

	if len(s) != wantLen {
		return errors.Errorf("%s must be %d hex characters (%d bytes), got %d",
			what, wantLen, wantLen/2, len(s))
	}

	if _, err := hex.DecodeString(s); err != nil {
		return errors.Errorf("invalid hex characters in %s", what)
	}

	return nil
}
