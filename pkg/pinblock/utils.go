package pinblock

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Helper to XOR two hex strings. Result is uppercase hex.
func xorHexStrings(s1, s2 string) (string, error) {
	b1, err := hex.DecodeString(s1)
	if err != nil {
		return "", fmt.Errorf("invalid hex string s1: %w", err)
	}
	b2, err := hex.DecodeString(s2)
	if err != nil {
		return "", fmt.Errorf("invalid hex string s2: %w", err)
	}

	if len(b1) != len(b2) {
		return "", fmt.Errorf(
			"hex strings must have equal length to xor (s1 len %d, s2 len %d)",
			len(b1),
			len(b2),
		)
	}

	resultBytes := make([]byte, len(b1))
	for i := 0; i < len(b1); i++ {
		resultBytes[i] = b1[i] ^ b2[i]
	}

	return strings.ToUpper(hex.EncodeToString(resultBytes)), nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// PartialPAN returns the 12 rightmost PAN digits excluding the check digit.
// A value that is already exactly 12 digits is returned unchanged.
func PartialPAN(pan string) (string, error) {
	if !digitsOnly(pan) {
		return "", fmt.Errorf("%w: PAN must be numeric", ErrInvalidPAN)
	}
	if len(pan) == PartialPANLength {
		return pan, nil
	}
	if len(pan) <= PartialPANLength {
		return "", fmt.Errorf("%w: need at least 13 digits, got %d", ErrInvalidPAN, len(pan))
	}

	withoutCheck := pan[:len(pan)-1]

	return withoutCheck[len(withoutCheck)-PartialPANLength:], nil
}

// pinField builds control || length || PIN || F..F as 16 hex characters.
func pinField(control byte, pin string) (string, error) {
	if !digitsOnly(pin) || len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return "", fmt.Errorf("%w: got %d characters", ErrInvalidPIN, len(pin))
	}
	field := fmt.Sprintf("%c%X%s", control, len(pin), pin)

	return field + strings.Repeat("F", BlockHexLength-len(field)), nil
}
