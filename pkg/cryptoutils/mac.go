package cryptoutils

import (
	"crypto/des"
	"errors"
	"fmt"
)

// CBCMAC chains data through 3DES-CBC with a zero IV and returns the last
// output block as uppercase hex truncated to truncHex characters.
// data must already be a whole number of blocks.
func CBCMAC(key, data []byte, truncHex int) (string, error) {
	if truncHex <= 0 || truncHex > 2*des.BlockSize {
		return "", fmt.Errorf("invalid MAC length %d", truncHex)
	}
	out, err := TripleDESCBCEncrypt(key, make([]byte, des.BlockSize), data)
	if err != nil {
		return "", err
	}

	return Raw2Str(out[len(out)-des.BlockSize:])[:truncHex], nil
}

// CalculateMAC computes an s-byte MAC (4 ≤ s ≤ 8) over msg using
// ISO/IEC 9797-1 CBC-DES Method 1 or 3 (algo == 1 or 3).
// ks must be 8 bytes (single-DES) or 16 bytes (two-key DES: k1||k2).
// s is the truncation length in bytes
// msg is already padded data.
func CalculateMAC(msg, ks []byte, s, algo int) ([]byte, error) {
	if s < 4 || s > 8 {
		return nil, fmt.Errorf("invalid MAC length %d", s)
	}
	if len(ks) != KEY_LENGTH_SINGLE && len(ks) != KEY_LENGTH_DOUBLE {
		return nil, fmt.Errorf("ks must be 8 or 16 bytes, got %d", len(ks))
	}
	if err := checkBlocks(msg); err != nil {
		return nil, err
	}

	// CBC with k1 and zero IV.
	h := make([]byte, des.BlockSize)
	cipher1, err := des.NewCipher(ks[:KEY_LENGTH_SINGLE])
	if err != nil {
		return nil, err
	}
	for _, x := range Chunk(msg, des.BlockSize) {
		xorIn, err := XORBytes(x, h)
		if err != nil {
			return nil, err
		}
		cipher1.Encrypt(h, xorIn)
	}

	var result []byte
	switch {
	case algo == 1, len(ks) == KEY_LENGTH_SINGLE:
		result = h
	case algo == 3:
		// Output transformation: decrypt with k2, encrypt with k1.
		cipher2, err := des.NewCipher(ks[KEY_LENGTH_SINGLE:KEY_LENGTH_DOUBLE])
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, des.BlockSize)
		cipher2.Decrypt(tmp, h)
		cipher1.Encrypt(tmp, tmp)
		result = tmp
	default:
		return nil, errors.New("unknown algorithm, must be 1 or 3")
	}

	return result[:s], nil
}

// RetailMAC is ISO 9797-1 algorithm 3 over data padded with method 1 (zero fill)
// or method 2 (0x80 then zero fill) when method2 is set.
func RetailMAC(key, data []byte, method2 bool) ([]byte, error) {
	var padded []byte
	if method2 {
		padded = padISO9797Method2(data, des.BlockSize)
	} else {
		padded = padISO9797Method1(data, des.BlockSize)
	}

	return CalculateMAC(padded, key, des.BlockSize, 3)
}
