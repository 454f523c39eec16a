package masking

import "strings"

const maskToken = "****"

// IsAddressKey reports whether a metadata key carries a ledger address.
func IsAddressKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "recipient_address", "sender_address", "previous_recipient_address":
		return true
	default:
		return false
	}
}

// MaskAddress keeps a short prefix and suffix so operators can still match wallets.
func MaskAddress(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= 12 {
		return trimmed
	}
	return trimmed[:6] + maskToken + trimmed[len(trimmed)-4:]
}

// MaskMap returns a copy of input with address values masked.
func MaskMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			masked[trimmedKey] = MaskMap(nested)
			continue
		}
		if address, ok := value.(string); ok && IsAddressKey(trimmedKey) {
			masked[trimmedKey] = MaskAddress(address)
			continue
		}
		masked[trimmedKey] = value
	}
	return masked
}
