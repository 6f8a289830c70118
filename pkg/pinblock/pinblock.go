// Package pinblock implements the ANSI X9.8 (ISO 9564 format 0) PIN block used
// on the wire, and the ISO format 2 plaintext blocks embedded in EMV PIN change
// payloads.
package pinblock

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

const (
	BlockHexLength   = 16
	PartialPANLength = 12
	MinPINLength     = 4
	MaxPINLength     = 12

	controlANSI = '0'
)

var (
	ErrInvalidPAN      = errors.New("invalid partial PAN")
	ErrInvalidPIN      = errors.New("PIN must be 4 to 12 decimal digits")
	ErrInvalidPinBlock = errors.New("PIN block must be 16 hex characters")
)

// PinBlock is a disassembled PIN block. SanityCheck is false when the clear
// block is not a well formed ANSI block; PIN is then meaningless.
type PinBlock struct {
	PIN         string
	PartialPAN  string
	SanityCheck bool
}

// EncodeANSI builds the clear ANSI PIN block for pin and a 12-digit partial PAN.
func EncodeANSI(pin, partialPAN string) (string, error) {
	if len(partialPAN) != PartialPANLength || !digitsOnly(partialPAN) {
		return "", fmt.Errorf("%w: need %d digits", ErrInvalidPAN, PartialPANLength)
	}
	field, err := pinField(controlANSI, pin)
	if err != nil {
		return "", err
	}

	return xorHexStrings(field, "0000"+partialPAN)
}

// DecodeANSI disassembles a clear ANSI PIN block. Only a malformed block or PAN
// is an error; a block that decodes to nonsense returns SanityCheck=false.
func DecodeANSI(clearBlock, partialPAN string) (PinBlock, error) {
	if len(partialPAN) != PartialPANLength || !digitsOnly(partialPAN) {
		return PinBlock{}, fmt.Errorf("%w: need %d digits", ErrInvalidPAN, PartialPANLength)
	}
	if len(clearBlock) != BlockHexLength {
		return PinBlock{}, ErrInvalidPinBlock
	}
	field, err := xorHexStrings(clearBlock, "0000"+partialPAN)
	if err != nil {
		return PinBlock{}, fmt.Errorf("%w: %v", ErrInvalidPinBlock, err)
	}

	pb := PinBlock{PartialPAN: partialPAN}
	pin, ok := parsePINField(field, controlANSI)
	if ok {
		pb.PIN = pin
		pb.SanityCheck = true
	}

	return pb, nil
}

// parsePINField checks control nibble, length 4-12, decimal digits and F fill.
func parsePINField(field string, control byte) (string, bool) {
	if field[0] != control {
		return "", false
	}
	n, err := strconv.ParseUint(field[1:2], 16, 8)
	if err != nil || n < MinPINLength || n > MaxPINLength {
		return "", false
	}
	pin := field[2 : 2+n]
	if !digitsOnly(pin) {
		return "", false
	}
	for _, c := range field[2+n:] {
		if c != 'F' {
			return "", false
		}
	}

	return pin, true
}

// Decrypt decrypts an ANSI PIN block under kpe and disassembles it.
func Decrypt(kpe []byte, encBlock, partialPAN string) (PinBlock, error) {
	raw, err := hex.DecodeString(encBlock)
	if err != nil || len(raw) != BlockHexLength/2 {
		return PinBlock{}, ErrInvalidPinBlock
	}
	plain, err := cryptoutils.TripleDESECBDecrypt(kpe, raw)
	if err != nil {
		return PinBlock{}, fmt.Errorf("decrypt PIN block: %w", err)
	}

	return DecodeANSI(cryptoutils.Raw2Str(plain), partialPAN)
}

// Encrypt assembles an ANSI PIN block and encrypts it under kpe.
func Encrypt(kpe []byte, pin, partialPAN string) (string, error) {
	clearBlock, err := EncodeANSI(pin, partialPAN)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(clearBlock)
	if err != nil {
		return "", err
	}
	enc, err := cryptoutils.TripleDESECBEncrypt(kpe, raw)
	if err != nil {
		return "", fmt.Errorf("encrypt PIN block: %w", err)
	}

	return cryptoutils.Raw2Str(enc), nil
}
