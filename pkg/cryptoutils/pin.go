package cryptoutils

import (
	"crypto/des"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	PVV_PAN_LENGTH        = 11
	PVV_LENGTH            = 4
	CVV_DATA_LENGTH       = 32
	CVV_PADDING_BYTE      = "0"
	IBM_VALIDATION_LENGTH = 16
	DEC_TABLE_LENGTH      = 16
	MIN_PIN_LENGTH        = 4
	MAX_PIN_LENGTH        = 12
)

var (
	ErrInvalidDecTable      = errors.New("decimalization table must be 16 decimal digits")
	ErrInvalidValidation    = errors.New("validation data must be at most 16 hex digits")
	ErrInvalidPIN           = errors.New("PIN must be 4 to 12 decimal digits")
	ErrInvalidCVVData       = errors.New("card verification data must be at most 32 decimal digits")
	ErrInvalidPVVParameters = errors.New("invalid PVV parameters")
)

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}

func validPIN(pin string) bool {
	return isDigits(pin) && len(pin) >= MIN_PIN_LENGTH && len(pin) <= MAX_PIN_LENGTH
}

// IBM3624IntermediatePIN returns the 16 decimalised digits used by the IBM 3624
// method: the validation data, right padded with pad to 16 hex digits, is
// encrypted with single DES under the leftmost 8 bytes of the PIN verification
// key and every nibble is mapped through the decimalization table.
func IBM3624IntermediatePIN(pvk []byte, decTable, validationData string, pad byte) (string, error) {
	if len(decTable) != DEC_TABLE_LENGTH || !isDigits(decTable) {
		return "", ErrInvalidDecTable
	}
	if len(validationData) > IBM_VALIDATION_LENGTH {
		return "", ErrInvalidValidation
	}
	if len(pvk) < KEY_LENGTH_SINGLE {
		return "", fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(pvk))
	}

	padded := validationData + strings.Repeat(string(pad), IBM_VALIDATION_LENGTH-len(validationData))
	raw, err := hex.DecodeString(padded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidValidation, err)
	}

	block, err := des.NewCipher(pvk[:KEY_LENGTH_SINGLE])
	if err != nil {
		return "", err
	}
	enc := make([]byte, des.BlockSize)
	block.Encrypt(enc, raw)

	out := make([]byte, 0, IBM_VALIDATION_LENGTH)
	for _, c := range Raw2Str(enc) {
		nibble := hexNibble(byte(c))
		out = append(out, decTable[nibble])
	}

	return string(out), nil
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + HEX_TO_DECIMAL_OFFSET
	default:
		return c - 'a' + HEX_TO_DECIMAL_OFFSET
	}
}

// IBM3624Offset computes the PIN offset: (PIN[i] - intermediate[i]) mod 10
// for every digit of the customer PIN.
func IBM3624Offset(pvk []byte, decTable, validationData string, pad byte, pin string) (string, error) {
	if !validPIN(pin) {
		return "", ErrInvalidPIN
	}
	natural, err := IBM3624IntermediatePIN(pvk, decTable, validationData, pad)
	if err != nil {
		return "", err
	}

	offset := make([]byte, len(pin))
	for i := range pin {
		d := (int(pin[i]-'0') - int(natural[i]-'0') + HEX_TO_DECIMAL_OFFSET) % HEX_TO_DECIMAL_OFFSET
		offset[i] = byte('0' + d)
	}

	return string(offset), nil
}

// GetVisaPVV generates a 4-digit PIN Verification Value (PVV) using 3DES ECB
// over partialPAN(11) || PVKI || PIN(4).
func GetVisaPVV(partialPAN, keyIndex, pin string, pvk []byte) (string, error) {
	if len(partialPAN) < PVV_PAN_LENGTH || !isDigits(partialPAN) {
		return "", fmt.Errorf("%w: partial PAN needs %d digits", ErrInvalidPVVParameters, PVV_PAN_LENGTH)
	}
	if len(keyIndex) != 1 || !isDigits(keyIndex) {
		return "", fmt.Errorf("%w: PVKI must be one digit", ErrInvalidPVVParameters)
	}
	if !validPIN(pin) {
		return "", ErrInvalidPIN
	}

	pan11 := partialPAN[len(partialPAN)-PVV_PAN_LENGTH:]
	tsp, err := hex.DecodeString(pan11 + keyIndex + pin[:PVV_LENGTH])
	if err != nil {
		return "", err
	}
	enc, err := TripleDESECBEncrypt(pvk, tsp)
	if err != nil {
		return "", err
	}

	return GetDigitsFromString(Raw2Str(enc), PVV_LENGTH), nil
}

// GetCVV computes a card verification value of length digits from data
// (PAN || expiry || service code), zero padded on the right to 32 digits.
// Only the double length key halves are used: DES_K1(A) XOR B, then 3DES.
func GetCVV(cvk []byte, data string, length int) (string, error) {
	if len(cvk) != KEY_LENGTH_DOUBLE {
		return "", fmt.Errorf("%w: CVK must be double length, got %d", ErrInvalidKeyLength, len(cvk))
	}
	if len(data) > CVV_DATA_LENGTH || !isDigits(data) {
		return "", ErrInvalidCVVData
	}
	if length < 1 || length > 2*des.BlockSize {
		return "", fmt.Errorf("invalid CVV length %d", length)
	}
	data += strings.Repeat(CVV_PADDING_BYTE, CVV_DATA_LENGTH-len(data))

	raw, err := hex.DecodeString(data)
	if err != nil {
		return "", err
	}
	a, b := raw[:des.BlockSize], raw[des.BlockSize:]

	k1, err := des.NewCipher(cvk[:KEY_LENGTH_SINGLE])
	if err != nil {
		return "", err
	}
	step := make([]byte, des.BlockSize)
	k1.Encrypt(step, a)
	xored, err := XORBytes(step, b)
	if err != nil {
		return "", err
	}
	out, err := TripleDESECBEncrypt(cvk, xored)
	if err != nil {
		return "", err
	}

	return GetDigitsFromString(Raw2Str(out), length), nil
}
