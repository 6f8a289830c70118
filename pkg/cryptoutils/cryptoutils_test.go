package cryptoutils

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func TestRaw2Str(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "01AB0F", Raw2Str([]byte{0x01, 0xAB, 0x0F}))
	assert.Empty(t, Raw2Str(nil))
}

func TestPrepareTripleDESKey(t *testing.T) {
	t.Parallel()

	k1 := mustHex(t, "0123456789ABCDEF")
	k2 := mustHex(t, "FEDCBA9876543210")

	assert.Equal(t, append(append(append([]byte{}, k1...), k1...), k1...), PrepareTripleDESKey(k1))
	assert.Equal(t, append(append(append([]byte{}, k1...), k2...), k1...),
		PrepareTripleDESKey(append(append([]byte{}, k1...), k2...)))
}

func TestTripleDESECB(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	plain := mustHex(t, "0000000000000000")

	enc, err := TripleDESECBEncrypt(key, plain)
	require.NoError(t, err)
	assert.Equal(t, "08D7B4FB629D0885", Raw2Str(enc))

	dec, err := TripleDESECBDecrypt(key, enc)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)

	_, err = TripleDESECBEncrypt(key, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBlockSize)

	_, err = TripleDESECBEncrypt(key[:10], plain)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestTripleDESCBCRoundTrip(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "0123456789ABCDEFFEDCBA987654321089ABCDEF01234567")
	iv := []byte("1PDNE000")
	plain := mustHex(t, "11111111111111114444444444444444DDDDDDDDDDDDDDDD")

	enc, err := TripleDESCBCEncrypt(key, iv, plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, enc)

	dec, err := TripleDESCBCDecrypt(key, iv, enc)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)

	_, err = TripleDESCBCEncrypt(key, iv[:4], plain)
	assert.Error(t, err)
}

func TestCheckDigits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		n    int
		want string
	}{
		{name: "double length", key: "0123456789ABCDEFFEDCBA9876543210", n: 4, want: "08D7"},
		{name: "six digits", key: "0123456789ABCDEFFEDCBA9876543210", n: 6, want: "08D7B4"},
		{name: "single length", key: "1111111111111111", n: 4, want: "82E1"},
		{name: "pvk", key: "33333333333333334444444444444444", n: 4, want: "E18D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CheckDigits(mustHex(t, tt.key), tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CheckDigits(mustHex(t, "0123"), 4)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestGetDigitsFromString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "9365", GetDigitsFromString("936A59BB", 4))
	assert.Equal(t, "1234", GetDigitsFromString("1A2B3C4D", 4))
	assert.Equal(t, "0123", GetDigitsFromString("ABCDEF", 4))
	assert.Equal(t, "905", GetDigitsFromString("9AF", 4))
}

func TestKeyParity(t *testing.T) {
	t.Parallel()

	fixed := FixKeyParity([]byte{0x00, 0x01, 0xFE, 0x7F})
	assert.True(t, CheckKeyParity(fixed))
	assert.Equal(t, []byte{0x01, 0x01, 0xFE, 0x7F}, fixed)
	assert.False(t, CheckKeyParity([]byte{0x00}))
}

func TestGenerateRandomKey(t *testing.T) {
	t.Parallel()

	for _, n := range []int{8, 16, 24} {
		key, err := GenerateRandomKey(n)
		require.NoError(t, err)
		assert.Len(t, key, n)
		assert.True(t, CheckKeyParity(key))
	}

	_, err := GenerateRandomKey(12)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestChunkAndXOR(t *testing.T) {
	t.Parallel()

	chunks := Chunk([]byte{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}, {5}}, chunks)
	assert.Nil(t, Chunk([]byte{1}, 0))

	x, err := XORBytes([]byte{0xAA, 0x55}, []byte{0xFF, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0x55}, x)

	_, err = XORBytes([]byte{1}, []byte{1, 2})
	assert.Error(t, err)

	assert.Equal(t, []byte{0x45 ^ 0x11, 0x45}, XORConst([]byte{0x11, 0x00}, 0x45))
}

func TestEqualHex(t *testing.T) {
	t.Parallel()

	assert.True(t, EqualHex("abcd", "ABCD"))
	assert.False(t, EqualHex("ABCD", "ABCE"))
	assert.False(t, EqualHex("ABCD", "ABC"))
}

func TestPadding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, make([]byte, 8), padISO9797Method1(nil, 8))
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, padISO9797Method1([]byte{1}, 8))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, padISO9797Method1([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 8))
	assert.Equal(t,
		[]byte{1, 2, 3, 4, 5, 6, 7, 8, 0x80, 0, 0, 0, 0, 0, 0, 0},
		padISO9797Method2([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 8))
}
