package akb

import (
	"errors"
	"fmt"
)

// HeaderLength is the size of an AKB header in characters.
const HeaderLength = 8

// Key usage codes carried in header byte 1.
const (
	UsagePINEncryption   byte = 'P'
	UsagePINVerification byte = 'V'
	UsageCardVerify      byte = 'C'
	UsageEMVMaster       byte = 'E'
	UsageKeyEncryption   byte = 'K'
	UsageMAC             byte = 'M'
	UsageData            byte = 'D'
)

// ErrInvalidHeader is returned for headers that are not 8 printable ASCII characters.
var ErrInvalidHeader = errors.New("akb: header must be 8 printable ASCII characters")

// Header is the parsed form of the 8-character AKB header.
type Header struct {
	Version       byte   // byte 0, "1" for the DES key block.
	KeyUsage      byte   // byte 1.
	Algorithm     byte   // byte 2, "D" for DES/3DES.
	ModeOfUse     byte   // byte 3.
	Exportability byte   // byte 4.
	Reserved      string // bytes 5-7.
}

// ParseHeader splits an 8-character header into its fields.
func ParseHeader(s string) (Header, error) {
	if err := validateHeader(s); err != nil {
		return Header{}, err
	}

	return Header{
		Version:       s[0],
		KeyUsage:      s[1],
		Algorithm:     s[2],
		ModeOfUse:     s[3],
		Exportability: s[4],
		Reserved:      s[5:],
	}, nil
}

// String serializes the header back to its 8-character form.
func (h Header) String() string {
	reserved := h.Reserved
	if len(reserved) != HeaderLength-5 {
		reserved = "000"
	}

	return string([]byte{h.Version, h.KeyUsage, h.Algorithm, h.ModeOfUse, h.Exportability}) + reserved
}

func validateHeader(s string) error {
	if len(s) != HeaderLength {
		return fmt.Errorf("%w: got %d characters", ErrInvalidHeader, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7E || s[i] == ',' || s[i] == '#' {
			return fmt.Errorf("%w: invalid character %q", ErrInvalidHeader, s[i])
		}
	}

	return nil
}
