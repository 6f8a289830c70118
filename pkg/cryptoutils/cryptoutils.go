// Package cryptoutils provides the DES/3DES building blocks used by the Atalla
// command handlers: block modes, MACs, check digits, key derivation,
// decimalisation and the PIN, PVV and CVV algorithms.
package cryptoutils

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

const (
	ISO9797_METHOD2_PADDING_BYTE = 0x80
	KEY_LENGTH_SINGLE            = 8
	KEY_LENGTH_DOUBLE            = 16
	KEY_LENGTH_TRIPLE            = 24
	HEX_TO_DECIMAL_OFFSET        = 10
	XOR_BIT_FLIP                 = 1
)

var (
	// ErrInvalidKeyLength is returned for key material that is not 8, 16 or 24 bytes.
	ErrInvalidKeyLength = errors.New("invalid key length: must be 8, 16, or 24 bytes")
	// ErrBlockSize is returned when data is not a whole number of DES blocks.
	ErrBlockSize = errors.New("data length is not a multiple of the DES block size")
)

// ecb wraps a cipher.Block to provide ECB mode.
type ecb struct{ b cipher.Block }

type ecbEncrypter ecb

type ecbDecrypter ecb

// padISO9797Method2 implements ISO/IEC 9797-1 padding method 2 (EMV padding).
// Always appends 0x80 and then the smallest number of 0x00 bytes to reach a block boundary.
func padISO9797Method2(msg []byte, bs int) []byte {
	return padISO9797Method1(slices.Concat(msg, []byte{ISO9797_METHOD2_PADDING_BYTE}), bs)
}

// padISO9797Method1 implements ISO/IEC 9797-1 padding method 1.
// Adds the smallest number of 0x00 bytes to make data multiple of block size.
// If data is already a multiple of block size and non-empty, no padding is added.
func padISO9797Method1(data []byte, blockSize int) []byte {
	remainder := len(data) % blockSize
	if remainder == 0 && len(data) > 0 {
		return data
	}

	if len(data) == 0 {
		return make([]byte, blockSize)
	}

	padding := make([]byte, blockSize-remainder)

	return slices.Concat(data, padding)
}

// Raw2Str converts raw binary data to an uppercase hex string.
func Raw2Str(raw []byte) string {
	return strings.ToUpper(hex.EncodeToString(raw))
}

// PrepareTripleDESKey extends a single or double length key to triple length.
// Single length keys are replicated (K1K1K1), double length keys become K1K2K1.
func PrepareTripleDESKey(key []byte) []byte {
	var key24 []byte
	switch len(key) {
	case KEY_LENGTH_SINGLE:
		key24 = make([]byte, KEY_LENGTH_TRIPLE)
		copy(key24, key)
		copy(key24[KEY_LENGTH_SINGLE:], key)
		copy(key24[KEY_LENGTH_DOUBLE:], key)
	case KEY_LENGTH_DOUBLE:
		key24 = make([]byte, KEY_LENGTH_TRIPLE)
		copy(key24, key)
		copy(key24[KEY_LENGTH_DOUBLE:], key[:KEY_LENGTH_SINGLE])
	default:
		key24 = key
	}

	return key24
}

// ValidKeyLength reports whether n is a supported DES key length in bytes.
func ValidKeyLength(n int) bool {
	return n == KEY_LENGTH_SINGLE || n == KEY_LENGTH_DOUBLE || n == KEY_LENGTH_TRIPLE
}

// NewTripleDESCipher expands key to triple length and returns the 3DES block cipher.
func NewTripleDESCipher(key []byte) (cipher.Block, error) {
	if !ValidKeyLength(len(key)) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(key))
	}

	return des.NewTripleDESCipher(PrepareTripleDESKey(key))
}

// NewECBEncrypter returns a cipher.BlockMode for ECB encryption.
func NewECBEncrypter(b cipher.Block) cipher.BlockMode {
	return (*ecbEncrypter)(&ecb{b: b})
}

func (x *ecbEncrypter) BlockSize() int { return x.b.BlockSize() }

func (x *ecbEncrypter) CryptBlocks(dst, src []byte) {
	if len(src)%x.BlockSize() != 0 {
		panic(fmt.Sprintf(
			"cryptoutils: input length %d not a multiple of block size %d",
			len(src),
			x.BlockSize(),
		))
	}
	for len(src) > 0 {
		x.b.Encrypt(dst[:x.BlockSize()], src[:x.BlockSize()])
		src = src[x.BlockSize():]
		dst = dst[x.BlockSize():]
	}
}

// NewECBDecrypter returns a cipher.BlockMode for ECB decryption.
func NewECBDecrypter(b cipher.Block) cipher.BlockMode {
	return (*ecbDecrypter)(&ecb{b: b})
}

func (x *ecbDecrypter) BlockSize() int { return x.b.BlockSize() }

func (x *ecbDecrypter) CryptBlocks(dst, src []byte) {
	if len(src)%x.BlockSize() != 0 {
		panic(fmt.Sprintf(
			"cryptoutils: input length %d not a multiple of block size %d",
			len(src),
			x.BlockSize(),
		))
	}
	for len(src) > 0 {
		x.b.Decrypt(dst[:x.BlockSize()], src[:x.BlockSize()])
		src = src[x.BlockSize():]
		dst = dst[x.BlockSize():]
	}
}

func checkBlocks(data []byte) error {
	if len(data) == 0 || len(data)%des.BlockSize != 0 {
		return fmt.Errorf("%w: got %d bytes", ErrBlockSize, len(data))
	}

	return nil
}

// TripleDESECBEncrypt encrypts data in ECB mode under a single, double or triple length key.
func TripleDESECBEncrypt(key, data []byte) ([]byte, error) {
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	block, err := NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	NewECBEncrypter(block).CryptBlocks(out, data)

	return out, nil
}

// TripleDESECBDecrypt is the inverse of TripleDESECBEncrypt.
func TripleDESECBDecrypt(key, data []byte) ([]byte, error) {
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	block, err := NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	NewECBDecrypter(block).CryptBlocks(out, data)

	return out, nil
}

// TripleDESCBCEncrypt encrypts data in CBC mode with the given 8-byte IV. No padding is applied.
func TripleDESCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	if len(iv) != des.BlockSize {
		return nil, fmt.Errorf("invalid IV length %d", len(iv))
	}
	block, err := NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)

	return out, nil
}

// TripleDESCBCDecrypt is the inverse of TripleDESCBCEncrypt.
func TripleDESCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	if len(iv) != des.BlockSize {
		return nil, fmt.Errorf("invalid IV length %d", len(iv))
	}
	block, err := NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	return out, nil
}

// CheckDigits returns the first hexLen characters of the key encrypted over a zero block.
func CheckDigits(key []byte, hexLen int) (string, error) {
	if hexLen <= 0 || hexLen > 2*des.BlockSize {
		return "", fmt.Errorf("check digits: invalid length %d", hexLen)
	}
	out, err := TripleDESECBEncrypt(key, make([]byte, des.BlockSize))
	if err != nil {
		return "", err
	}

	return Raw2Str(out)[:hexLen], nil
}

// GetDigitsFromString extracts up to 'length' decimal digits from a hex string,
// applying a second pass on non-decimal hex chars if needed.
func GetDigitsFromString(ct string, length int) string {
	var digits strings.Builder
	// First pass: pick decimal digits
	for _, c := range ct {
		if digits.Len() >= length {
			break
		}
		if unicode.IsDigit(c) {
			digits.WriteRune(c)
		}
	}
	// Second pass: non-decimal hex chars
	if digits.Len() < length {
		for _, c := range ct {
			if digits.Len() >= length {
				break
			}
			val, err := strconv.ParseInt(string(c), 16, 0)
			if err != nil {
				continue
			}
			if val-HEX_TO_DECIMAL_OFFSET >= 0 {
				digits.WriteString(strconv.Itoa(int(val - HEX_TO_DECIMAL_OFFSET)))
			}
		}
	}

	return digits.String()
}

// ParityOf returns 0 for even number of set bits, -1 for odd.
func ParityOf(x int) int {
	parity := 0
	for x != 0 {
		parity = ^parity
		x &= (x - 1)
	}

	return parity
}

// CheckKeyParity returns true if every byte in key has ODD parity.
func CheckKeyParity(key []byte) bool {
	for _, b := range key {
		if ParityOf(int(b)) != -1 {
			return false
		}
	}

	return true
}

// FixKeyParity sets each byte to have ODD parity (as required by DES).
func FixKeyParity(key []byte) []byte {
	res := make([]byte, len(key))
	for i, b := range key {
		parity := 0
		for x := b; x != 0; x &= x - 1 {
			parity ^= 1
		}
		if parity == 0 {
			res[i] = b ^ XOR_BIT_FLIP
		} else {
			res[i] = b
		}
	}

	return res
}

// GenerateRandomKey generates a random odd-parity DES key of 8, 16 or 24 bytes.
func GenerateRandomKey(length int) ([]byte, error) {
	if !ValidKeyLength(length) {
		return nil, ErrInvalidKeyLength
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	return FixKeyParity(key), nil
}

// Chunk splits b into blocks of size sz. The last block may be shorter if needed.
func Chunk(b []byte, sz int) [][]byte {
	if sz <= 0 {
		return nil
	}
	n := (len(b) + sz - 1) / sz
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * sz
		end := start + sz
		if end > len(b) {
			end = len(b)
		}
		out[i] = b[start:end]
	}

	return out
}

// XORBytes returns a^b for equal-length slices. Returns error if lengths differ.
func XORBytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, errors.New("xor: length mismatch")
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}

	return out, nil
}

// XORConst returns a copy of b with every byte XORed with c.
func XORConst(b []byte, c byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ c
	}

	return out
}

// EqualHex compares two hex strings case-insensitively in constant time.
func EqualHex(a, b string) bool {
	return subtle.ConstantTimeCompare(
		[]byte(strings.ToUpper(a)),
		[]byte(strings.ToUpper(b)),
	) == 1
}
