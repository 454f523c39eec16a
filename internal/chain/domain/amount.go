package domain

import (
	"strings"

	"github.com/holiman/uint256"
)

// ParseAmount converts a decimal amount in native units into base units.
// Zero, negative and over-precise values are rejected.
func ParseAmount(raw string, decimals int) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || decimals < 0 {
		return nil, ErrInvalidFormat
	}

	whole, frac, hasDot := strings.Cut(raw, ".")
	if whole == "" || (hasDot && frac == "") {
		return nil, ErrInvalidFormat
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, ErrInvalidFormat
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return nil, ErrInvalidFormat
	}

	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", decimals-len(frac)), "0")
	if digits == "" {
		return nil, ErrInvalidFormat
	}

	value, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	return value, nil
}

// FormatAmount renders base units as a decimal string in native units.
func FormatAmount(value *uint256.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	digits := value.Dec()
	if decimals <= 0 {
		return digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
