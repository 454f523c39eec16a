package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
)

// Validator checks 0x-prefixed hex addresses and transaction hashes.
type Validator struct{}

func NewValidator() Validator {
	return Validator{}
}

func (Validator) ValidateAddress(address string) error {
	if !hasHexPrefix(address) || !common.IsHexAddress(address) {
		return chaindomain.ErrInvalidFormat
	}
	return nil
}

func (Validator) ValidateReference(reference string) error {
	if len(reference) != 2+2*common.HashLength || !hasHexPrefix(reference) {
		return chaindomain.ErrInvalidFormat
	}
	if _, err := hexutil.Decode(reference); err != nil {
		return chaindomain.ErrInvalidFormat
	}
	return nil
}

// NormalizeAddress returns the EIP-55 checksummed form.
func (v Validator) NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if v.ValidateAddress(address) != nil {
		return address
	}
	return common.HexToAddress(address).Hex()
}

// NormalizeReference lowercases the hash and its prefix. Nodes resolve hashes
// case-insensitively.
func (v Validator) NormalizeReference(reference string) string {
	reference = strings.TrimSpace(reference)
	if v.ValidateReference(reference) != nil {
		return reference
	}
	return "0x" + strings.ToLower(reference[2:])
}

func hasHexPrefix(value string) bool {
	return strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X")
}
