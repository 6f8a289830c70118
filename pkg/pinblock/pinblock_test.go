package pinblock

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func TestEncodeANSI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pin     string
		pan     string
		want    string
		wantErr error
	}{
		{name: "four digit pin", pin: "4321", pan: "123456123456", want: "044333CBA9EDCBA9"},
		{name: "twelve digit pin", pin: "123456789012", pan: "123456123456", want: "0C1226622E8226A9"},
		{name: "short pin", pin: "123", pan: "123456123456", wantErr: ErrInvalidPIN},
		{name: "non numeric pin", pin: "12A4", pan: "123456123456", wantErr: ErrInvalidPIN},
		{name: "short pan", pin: "1234", pan: "12345", wantErr: ErrInvalidPAN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := EncodeANSI(tt.pin, tt.pan)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeANSI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		block string
		pan   string
		want  PinBlock
	}{
		{
			name:  "valid block",
			block: "044333CBA9EDCBA9",
			pan:   "123456123456",
			want:  PinBlock{PIN: "4321", PartialPAN: "123456123456", SanityCheck: true},
		},
		{
			name:  "wrong pan fails sanity",
			block: "044333CBA9EDCBA9",
			pan:   "999999999999",
			want:  PinBlock{PartialPAN: "999999999999"},
		},
		{
			name:  "iso2 control nibble is rejected",
			block: "244333CBA9EDCBA9",
			pan:   "123456123456",
			want:  PinBlock{PartialPAN: "123456123456"},
		},
		{
			name:  "length nibble out of range",
			block: "034333CBA9EDCBA9",
			pan:   "123456123456",
			want:  PinBlock{PartialPAN: "123456123456"},
		},
		{
			name:  "bad filler",
			block: "044333CBA9EDCBA8",
			pan:   "123456123456",
			want:  PinBlock{PartialPAN: "123456123456"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeANSI(tt.block, tt.pan)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeANSI("0443", "123456123456")
	assert.ErrorIs(t, err, ErrInvalidPinBlock)

	_, err = DecodeANSI("044333CBA9EDCBZZ", "123456123456")
	assert.ErrorIs(t, err, ErrInvalidPinBlock)

	_, err = DecodeANSI("044333CBA9EDCBA9", "12345612345X")
	assert.ErrorIs(t, err, ErrInvalidPAN)
}

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()

	kpe := mustHex(t, "1111111111111111")

	enc, err := Encrypt(kpe, "4321", "123456123456")
	require.NoError(t, err)
	assert.Equal(t, "090E8CA3CF5D2AD8", enc)

	pb, err := Decrypt(kpe, enc, "123456123456")
	require.NoError(t, err)
	assert.True(t, pb.SanityCheck)
	assert.Equal(t, "4321", pb.PIN)

	long, err := Encrypt(kpe, "123456789012", "123456123456")
	require.NoError(t, err)
	assert.Equal(t, "FE315420681C7ABB", long)

	garbage, err := Decrypt(kpe, "998742F7BC2D7005", "123456123456")
	require.NoError(t, err)
	assert.False(t, garbage.SanityCheck)

	_, err = Decrypt(kpe, "998742F7", "123456123456")
	assert.ErrorIs(t, err, ErrInvalidPinBlock)

	_, err = Decrypt(kpe[:5], enc, "123456123456")
	assert.ErrorIs(t, err, cryptoutils.ErrInvalidKeyLength)
}

func TestPartialPAN(t *testing.T) {
	t.Parallel()

	got, err := PartialPAN("4123456789012345")
	require.NoError(t, err)
	assert.Equal(t, "345678901234", got)

	got, err = PartialPAN("123456123456")
	require.NoError(t, err)
	assert.Equal(t, "123456123456", got)

	_, err = PartialPAN("12345612345")
	assert.ErrorIs(t, err, ErrInvalidPAN)

	_, err = PartialPAN("41234567890123A5")
	assert.ErrorIs(t, err, ErrInvalidPAN)
}
