package solana

import (
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
)

// Validator checks base58 public keys and transaction signatures.
type Validator struct{}

func NewValidator() Validator {
	return Validator{}
}

func (Validator) ValidateAddress(address string) error {
	if n := len(address); n < 32 || n > 44 {
		return chaindomain.ErrInvalidFormat
	}
	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return chaindomain.ErrInvalidFormat
	}
	return nil
}

func (Validator) ValidateReference(reference string) error {
	if n := len(reference); n < 64 || n > 88 {
		return chaindomain.ErrInvalidFormat
	}
	if _, err := solanago.SignatureFromBase58(reference); err != nil {
		return chaindomain.ErrInvalidFormat
	}
	return nil
}

// NormalizeAddress is the identity: base58 is case sensitive.
func (Validator) NormalizeAddress(address string) string {
	return strings.TrimSpace(address)
}

// NormalizeReference is the identity for the same reason.
func (Validator) NormalizeReference(reference string) string {
	return strings.TrimSpace(reference)
}
