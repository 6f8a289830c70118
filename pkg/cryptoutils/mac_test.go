package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBCMAC(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	data := mustHex(t, "0102030405060708090A0B0C0D0E0F10")

	got, err := CBCMAC(key, data, 16)
	require.NoError(t, err)
	assert.Equal(t, "EA8F47C073E4C55D", got)

	short, err := CBCMAC(key, data, 8)
	require.NoError(t, err)
	assert.Equal(t, "EA8F47C0", short)

	_, err = CBCMAC(key, data[:5], 16)
	assert.ErrorIs(t, err, ErrBlockSize)

	_, err = CBCMAC(key, data, 17)
	assert.Error(t, err)
}

func TestRetailMAC(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "2F02C8B1E9CBC7B15B5067F7A0CD191A")
	data := mustHex(t, "0102030405")

	tests := []struct {
		name    string
		method2 bool
		want    string
	}{
		{name: "zero padding", want: "524AA621FF2C2B60"},
		{name: "0x80 padding", method2: true, want: "B47D5F1BA62C47CC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := RetailMAC(key, data, tt.method2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Raw2Str(got))
		})
	}
}

func TestCalculateMACValidation(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "2F02C8B1E9CBC7B15B5067F7A0CD191A")
	msg := make([]byte, 8)

	_, err := CalculateMAC(msg, key, 3, 3)
	assert.Error(t, err)

	_, err = CalculateMAC(msg, key[:12], 8, 3)
	assert.Error(t, err)

	_, err = CalculateMAC(msg, key, 8, 2)
	assert.Error(t, err)

	alg1, err := CalculateMAC(msg, key, 8, 1)
	require.NoError(t, err)
	alg3, err := CalculateMAC(msg, key, 8, 3)
	require.NoError(t, err)
	assert.NotEqual(t, alg1, alg3)
}
