package cryptoutils

import (
	"crypto/des"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
)

const (
	COMMON_SESSION_DIVERSIFICATION_LEN = 16
	ATC_DIVERSIFICATION_LEN            = 4
)

// ErrDiversification is returned for diversification data of an unsupported length.
var ErrDiversification = errors.New("diversification must be 16 hex digits (common session) or 4 hex digits (ATC)")

// DeriveSessionKey derives a double length session key from a double length
// ICC master key. The method is selected by the length of the hex diversification:
//   - 16 digits (EMV common session): R with byte 2 forced to F0 and to 0F,
//     each encrypted under the full master key, concatenated.
//   - 4 digits (ATC): MKL XOR 00..ATC and MKR XOR 00..(ATC XOR FFFF).
func DeriveSessionKey(iccMK []byte, diversification string) ([]byte, error) {
	if len(iccMK) != KEY_LENGTH_DOUBLE {
		return nil, fmt.Errorf("%w: ICC master key must be 16 bytes, got %d", ErrInvalidKeyLength, len(iccMK))
	}

	r, err := hex.DecodeString(diversification)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiversification, err)
	}

	switch len(diversification) {
	case COMMON_SESSION_DIVERSIFICATION_LEN:
		return deriveCommonSessionKey(iccMK, r)
	case ATC_DIVERSIFICATION_LEN:
		return deriveATCSessionKey(iccMK, binary.BigEndian.Uint16(r))
	default:
		return nil, ErrDiversification
	}
}

func deriveCommonSessionKey(iccMK, r []byte) ([]byte, error) {
	f1 := slices.Clone(r)
	f2 := slices.Clone(r)
	f1[2] = 0xF0
	f2[2] = 0x0F

	left, err := TripleDESECBEncrypt(iccMK, f1)
	if err != nil {
		return nil, err
	}
	right, err := TripleDESECBEncrypt(iccMK, f2)
	if err != nil {
		return nil, err
	}

	return slices.Concat(left, right), nil
}

func deriveATCSessionKey(iccMK []byte, atc uint16) ([]byte, error) {
	left := make([]byte, des.BlockSize)
	right := make([]byte, des.BlockSize)
	binary.BigEndian.PutUint16(left[6:], atc)
	binary.BigEndian.PutUint16(right[6:], atc^0xFFFF)

	skl, err := XORBytes(iccMK[:KEY_LENGTH_SINGLE], left)
	if err != nil {
		return nil, err
	}
	skr, err := XORBytes(iccMK[KEY_LENGTH_SINGLE:], right)
	if err != nil {
		return nil, err
	}

	return slices.Concat(skl, skr), nil
}
