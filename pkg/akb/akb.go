// Package akb implements the Atalla key block: an 8-character header, a
// 3DES-CBC encrypted key padded to 24 bytes and a CBC-MAC over both, all bound
// to a key encryption key.
package akb

import (
	"crypto/des"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

const (
	EncryptedKeyHexLength = 48
	MACHexLength          = 16
	CheckDigitsLength     = 4

	paddedKeyLength = 24
	singlePad       = 0x53
	doublePad       = 0x44
	encryptionMask  = 0x45
	macMask         = 0x4D
)

var (
	// ErrMACMismatch is returned when the stored MAC does not match the recomputed one.
	ErrMACMismatch = errors.New("akb: MAC verification failed")
	// ErrMalformed is returned for text that is not header,encryptedKey,mac.
	ErrMalformed = errors.New("akb: expected header,encryptedKey,mac")
)

// KeyBlock is an encrypted key in its wire form. The ciphertext is only
// trusted after Decode has verified the MAC.
type KeyBlock struct {
	Header       string
	EncryptedKey string
	MAC          string
}

// Parse splits the flattened "header,encryptedKeyHex,macHex" representation.
func Parse(s string) (*KeyBlock, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}
	kb := &KeyBlock{
		Header:       parts[0],
		EncryptedKey: strings.ToUpper(parts[1]),
		MAC:          strings.ToUpper(parts[2]),
	}
	if err := validateHeader(kb.Header); err != nil {
		return nil, err
	}
	if len(kb.EncryptedKey) != EncryptedKeyHexLength || !isHex(kb.EncryptedKey) {
		return nil, fmt.Errorf("%w: encrypted key must be %d hex characters", ErrMalformed, EncryptedKeyHexLength)
	}
	if len(kb.MAC) != MACHexLength || !isHex(kb.MAC) {
		return nil, fmt.Errorf("%w: MAC must be %d hex characters", ErrMalformed, MACHexLength)
	}

	return kb, nil
}

// String returns the flattened wire form.
func (kb *KeyBlock) String() string {
	return kb.Header + "," + kb.EncryptedKey + "," + kb.MAC
}

// Usage returns the key usage byte from the header.
func (kb *KeyBlock) Usage() byte {
	if len(kb.Header) < 2 {
		return 0
	}

	return kb.Header[1]
}

// Encode wraps key (8, 16 or 24 bytes) under kek with the given header.
func Encode(header string, kek, key []byte) (*KeyBlock, error) {
	if err := validateHeader(header); err != nil {
		return nil, err
	}
	plain, err := padKey(key)
	if err != nil {
		return nil, err
	}

	ct, err := cryptoutils.TripleDESCBCEncrypt(
		cryptoutils.XORConst(kek, encryptionMask),
		[]byte(header),
		plain,
	)
	if err != nil {
		return nil, fmt.Errorf("akb: encrypt key: %w", err)
	}
	mac, err := computeMAC(kek, header, ct)
	if err != nil {
		return nil, err
	}

	return &KeyBlock{
		Header:       header,
		EncryptedKey: cryptoutils.Raw2Str(ct),
		MAC:          mac,
	}, nil
}

// Decode verifies the MAC under kek and returns the clear key. Decryption only
// happens after the MAC check passes.
func Decode(kb *KeyBlock, kek []byte) ([]byte, error) {
	if err := validateHeader(kb.Header); err != nil {
		return nil, err
	}
	ct, err := hex.DecodeString(kb.EncryptedKey)
	if err != nil || len(ct) != paddedKeyLength {
		return nil, fmt.Errorf("%w: bad encrypted key", ErrMalformed)
	}

	mac, err := computeMAC(kek, kb.Header, ct)
	if err != nil {
		return nil, err
	}
	if !cryptoutils.EqualHex(mac, kb.MAC) {
		return nil, ErrMACMismatch
	}

	plain, err := cryptoutils.TripleDESCBCDecrypt(
		cryptoutils.XORConst(kek, encryptionMask),
		[]byte(kb.Header),
		ct,
	)
	if err != nil {
		return nil, fmt.Errorf("akb: decrypt key: %w", err)
	}

	return unpadKey(plain), nil
}

// CheckDigits decodes the block and returns the key check digits.
func (kb *KeyBlock) CheckDigits(kek []byte) (string, error) {
	key, err := Decode(kb, kek)
	if err != nil {
		return "", err
	}

	return cryptoutils.CheckDigits(key, CheckDigitsLength)
}

func computeMAC(kek []byte, header string, ct []byte) (string, error) {
	mac, err := cryptoutils.CBCMAC(
		cryptoutils.XORConst(kek, macMask),
		slices.Concat([]byte(header), ct),
		MACHexLength,
	)
	if err != nil {
		return "", fmt.Errorf("akb: compute MAC: %w", err)
	}

	return mac, nil
}

func padKey(key []byte) ([]byte, error) {
	out := make([]byte, paddedKeyLength)
	copy(out, key)
	switch len(key) {
	case cryptoutils.KEY_LENGTH_SINGLE:
		fill(out[cryptoutils.KEY_LENGTH_SINGLE:], singlePad)
	case cryptoutils.KEY_LENGTH_DOUBLE:
		fill(out[cryptoutils.KEY_LENGTH_DOUBLE:], doublePad)
	case cryptoutils.KEY_LENGTH_TRIPLE:
	default:
		return nil, fmt.Errorf("akb: %w: got %d", cryptoutils.ErrInvalidKeyLength, len(key))
	}

	return out, nil
}

// unpadKey recovers the key length: bytes 8-15 all 0x53 means a single length
// key, otherwise bytes 16-23 all 0x44 means double length.
func unpadKey(plain []byte) []byte {
	switch {
	case all(plain[des.BlockSize:2*des.BlockSize], singlePad):
		return plain[:cryptoutils.KEY_LENGTH_SINGLE]
	case all(plain[2*des.BlockSize:], doublePad):
		return plain[:cryptoutils.KEY_LENGTH_DOUBLE]
	default:
		return plain
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func all(b []byte, v byte) bool {
	for _, c := range b {
		if c != v {
			return false
		}
	}

	return true
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)

	return err == nil
}
