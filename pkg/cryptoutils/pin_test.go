package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIBM3624Offset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pvk     string
		table   string
		data    string
		pad     byte
		pin     string
		want    string
		wantErr error
	}{
		{
			name:  "triple length replicated key",
			pvk:   "89B07B35A1B3F47E89B07B35A1B3F47E89B07B35A1B3F47E",
			table: "8351296477461538",
			data:  "33333333",
			pad:   'D',
			pin:   "361436",
			want:  "756694",
		},
		{
			name:  "double length key pin 1234",
			pvk:   "33333333333333334444444444444444",
			table: "0123456789012345",
			data:  "123456123456",
			pad:   'F',
			pin:   "1234",
			want:  "3053",
		},
		{
			name:  "double length key pin 4321",
			pvk:   "33333333333333334444444444444444",
			table: "0123456789012345",
			data:  "123456123456",
			pad:   'F',
			pin:   "4321",
			want:  "6140",
		},
		{
			name:    "short table",
			pvk:     "33333333333333334444444444444444",
			table:   "012345",
			data:    "123456123456",
			pad:     'F',
			pin:     "4321",
			wantErr: ErrInvalidDecTable,
		},
		{
			name:    "validation data too long",
			pvk:     "33333333333333334444444444444444",
			table:   "0123456789012345",
			data:    "12345612345612345",
			pad:     'F',
			pin:     "4321",
			wantErr: ErrInvalidValidation,
		},
		{
			name:    "non hex pad",
			pvk:     "33333333333333334444444444444444",
			table:   "0123456789012345",
			data:    "123456",
			pad:     'Z',
			pin:     "4321",
			wantErr: ErrInvalidValidation,
		},
		{
			name:    "short pin",
			pvk:     "33333333333333334444444444444444",
			table:   "0123456789012345",
			data:    "123456123456",
			pad:     'F',
			pin:     "123",
			wantErr: ErrInvalidPIN,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := IBM3624Offset(mustHex(t, tt.pvk), tt.table, tt.data, tt.pad, tt.pin)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetVisaPVV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pvk     string
		pan     string
		pvki    string
		pin     string
		want    string
		wantErr bool
	}{
		{
			name: "double length key",
			pvk:  "0123456789ABCDEFFEDCBA9876543210",
			pan:  "56789987654",
			pvki: "1",
			pin:  "1234",
			want: "9365",
		},
		{
			name: "second vector",
			pvk:  "33333333333333334444444444444444",
			pan:  "12345612345",
			pvki: "1",
			pin:  "4321",
			want: "8449",
		},
		{
			name: "longer account number uses rightmost 11 digits",
			pvk:  "33333333333333334444444444444444",
			pan:  "9912345612345",
			pvki: "1",
			pin:  "4321",
			want: "8449",
		},
		{
			name:    "short partial PAN",
			pvk:     "33333333333333334444444444444444",
			pan:     "1234",
			pvki:    "1",
			pin:     "4321",
			wantErr: true,
		},
		{
			name:    "two digit PVKI",
			pvk:     "33333333333333334444444444444444",
			pan:     "12345612345",
			pvki:    "12",
			pin:     "4321",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := GetVisaPVV(tt.pan, tt.pvki, tt.pin, mustHex(t, tt.pvk))
			if tt.wantErr {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetCVV(t *testing.T) {
	t.Parallel()

	cvk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")

	got, err := GetCVV(cvk, "41234567890123458701101", 3)
	require.NoError(t, err)
	assert.Equal(t, "561", got)

	five, err := GetCVV(cvk, "41234567890123458701101", 5)
	require.NoError(t, err)
	assert.Equal(t, "56149", five)

	_, err = GetCVV(cvk[:8], "41234567890123458701101", 3)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = GetCVV(cvk, "4123456789012345870110A", 3)
	assert.ErrorIs(t, err, ErrInvalidCVVData)
}
