package cryptoutils

import (
	"crypto/des"
	"errors"
	"fmt"
	"slices"
	"strings"
)

const ICC_DERIVATION_DIGITS = 16

// ErrInvalidPAN is returned when a PAN or PAN sequence number contains non-decimal characters.
var ErrInvalidPAN = errors.New("invalid PAN: must contain decimal digits only")

// DeriveICCMasterKey derives the double length ICC master key from an issuer
// master key (EMV option A). The derivation block is the rightmost 16 digits of
// PAN || PAN sequence, left padded with zeros; the key is E(Y) || E(Y XOR FF..FF).
// An empty PAN sequence is treated as "00". Parity is left as produced.
func DeriveICCMasterKey(imk []byte, pan, panSeq string) ([]byte, error) {
	if panSeq == "" {
		panSeq = "00"
	}
	x := pan + panSeq
	if len(x) < ICC_DERIVATION_DIGITS {
		x = strings.Repeat("0", ICC_DERIVATION_DIGITS-len(x)) + x
	} else if len(x) > ICC_DERIVATION_DIGITS {
		x = x[len(x)-ICC_DERIVATION_DIGITS:]
	}
	y, err := bcdEncode(x)
	if err != nil {
		return nil, err
	}

	return derive3DESKey(imk, y)
}

// derive3DESKey returns ZL || ZR where ZL = E(block8) and ZR = E(^block8).
func derive3DESKey(imk, block8 []byte) ([]byte, error) {
	if len(block8) != des.BlockSize {
		return nil, errors.New("invalid block size for 3DES")
	}
	zl, err := TripleDESECBEncrypt(imk, block8)
	if err != nil {
		return nil, err
	}
	zr, err := TripleDESECBEncrypt(imk, XORConst(block8, 0xFF))
	if err != nil {
		return nil, err
	}

	return slices.Concat(zl, zr), nil
}

// bcdEncode converts an even-length string of decimal digits into BCD bytes.
func bcdEncode(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		return nil, errors.New("must be even number of digits for BCD")
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi := digits[2*i] - '0'
		lo := digits[2*i+1] - '0'
		if hi > 9 || lo > 9 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPAN, digits)
		}

		out[i] = hi<<4 | lo
	}

	return out, nil
}
