package pinblock

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

// PinChangeMode selects the plaintext layout of an EMV PIN change payload.
type PinChangeMode int

const (
	// PinChangeCommonSession is the bare 8-byte ISO format 2 block.
	PinChangeCommonSession PinChangeMode = iota
	// PinChangeLegacy masks the new PIN with the ICC encryption key and the old PIN.
	PinChangeLegacy
	// PinChangePadded is 08 || ISO format 2 block || 80 00.. (16 bytes).
	PinChangePadded
)

const (
	payloadLengthByte = 0x08
	oldPINDigits      = 8
)

// EncodeISO2 returns the 8-byte ISO format 2 block: 2 || length || PIN || F..F.
func EncodeISO2(pin string) ([]byte, error) {
	field, err := pinField('2', pin)
	if err != nil {
		return nil, err
	}

	return hex.DecodeString(field)
}

// EMVPinChangePayload builds the plaintext that is enciphered and sent to the
// card in a PIN change script. iccEncMK is only used by PinChangeLegacy, whose
// block is the ISO format 0 PIN field XOR 00000000||MK[4:8] XOR the old PIN
// right justified in 16 zero digits. An empty oldPIN leaves the last mask out.
func EMVPinChangePayload(mode PinChangeMode, newPIN, oldPIN string, iccEncMK []byte) ([]byte, error) {
	switch mode {
	case PinChangeCommonSession:
		return EncodeISO2(newPIN)
	case PinChangePadded:
		block, err := EncodeISO2(newPIN)
		if err != nil {
			return nil, err
		}

		return wrapPayload(block), nil
	case PinChangeLegacy:
		block, err := legacyPINBlock(newPIN, oldPIN, iccEncMK)
		if err != nil {
			return nil, err
		}

		return wrapPayload(block), nil
	default:
		return nil, fmt.Errorf("unsupported PIN change mode %d", mode)
	}
}

func legacyPINBlock(newPIN, oldPIN string, iccEncMK []byte) ([]byte, error) {
	if len(iccEncMK) < cryptoutils.KEY_LENGTH_SINGLE {
		return nil, fmt.Errorf("%w: ICC key too short", cryptoutils.ErrInvalidKeyLength)
	}
	field, err := pinField(controlANSI, newPIN)
	if err != nil {
		return nil, err
	}
	block, err := hex.DecodeString(field)
	if err != nil {
		return nil, err
	}

	mask := make([]byte, 8)
	copy(mask[4:], iccEncMK[4:8])
	block, err = cryptoutils.XORBytes(block, mask)
	if err != nil {
		return nil, err
	}

	if oldPIN == "" {
		return block, nil
	}
	if !digitsOnly(oldPIN) || len(oldPIN) < MinPINLength || len(oldPIN) > MaxPINLength {
		return nil, fmt.Errorf("%w: old PIN", ErrInvalidPIN)
	}
	if len(oldPIN) > oldPINDigits {
		oldPIN = oldPIN[len(oldPIN)-oldPINDigits:]
	}
	old, err := hex.DecodeString(strings.Repeat("0", 16-len(oldPIN)) + oldPIN)
	if err != nil {
		return nil, err
	}

	return cryptoutils.XORBytes(block, old)
}

func wrapPayload(block []byte) []byte {
	out := slices.Concat([]byte{payloadLengthByte}, block, []byte{cryptoutils.ISO9797_METHOD2_PADDING_BYTE})

	return slices.Concat(out, make([]byte, 16-len(out)))
}
