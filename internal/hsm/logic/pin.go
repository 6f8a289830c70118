package logic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andrei-cloud/go_atalla/internal/errorcodes"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/internal/message"
	"github.com/andrei-cloud/go_atalla/pkg/akb"
	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
	"github.com/andrei-cloud/go_atalla/pkg/pinblock"
)

const (
	algorithmIBM3624 = "2"
	algorithmVisaPVV = "3"
)

// ErrSanityCheck is returned when a decrypted PIN block is not well formed.
var ErrSanityCheck = errors.New("PIN block failed sanity check")

// pinMethod computes the reference value (IBM offset or Visa PVV) for a PIN.
type pinMethod struct {
	compute  func(pin string) (string, error)
	refField int
}

// pinMethodFor reads the algorithm in field 1 and its parameters starting at
// field base, and checks that the command carries all of them.
func pinMethodFor(cmd *message.Command, pvk []byte, base int) (*pinMethod, error) {
	switch cmd.Get(1) {
	case algorithmIBM3624:
		if err := requireFields(cmd, base+3); err != nil {
			return nil, err
		}
		table, data := cmd.Get(base), cmd.Get(base+1)
		if len(table) != cryptoutils.DEC_TABLE_LENGTH || !isDigits(table) {
			return nil, errorcodes.New(base, cryptoutils.ErrInvalidDecTable)
		}
		if data == "" || len(data) > cryptoutils.IBM_VALIDATION_LENGTH || !isHex(data) {
			return nil, errorcodes.New(base+1, cryptoutils.ErrInvalidValidation)
		}
		pad, err := singlePadChar(cmd, base+2)
		if err != nil {
			return nil, err
		}

		return &pinMethod{
			compute: func(pin string) (string, error) {
				return cryptoutils.IBM3624Offset(pvk, table, data, pad, pin)
			},
			refField: base + 3,
		}, nil
	case algorithmVisaPVV:
		if err := requireFields(cmd, base+2); err != nil {
			return nil, err
		}
		pan, pvki := cmd.Get(base), cmd.Get(base+1)
		if len(pan) != cryptoutils.PVV_PAN_LENGTH || !isDigits(pan) {
			return nil, errorcodes.Newf(base, "%w: PVV PAN must be %d digits", cryptoutils.ErrInvalidPVVParameters, cryptoutils.PVV_PAN_LENGTH)
		}
		if len(pvki) != 1 || !isDigits(pvki) {
			return nil, errorcodes.Newf(base+1, "%w: PVKI must be one digit", cryptoutils.ErrInvalidPVVParameters)
		}

		return &pinMethod{
			compute: func(pin string) (string, error) {
				return cryptoutils.GetVisaPVV(pan, pvki, pin, pvk)
			},
			refField: base + 2,
		}, nil
	default:
		return nil, errorcodes.Unsupported(fmt.Sprintf("PIN verification algorithm %q", cmd.Get(1)))
	}
}

// verify compares the value computed for pin with the reference field.
// Offsets may arrive left justified and F filled.
func (m *pinMethod) verify(cmd *message.Command, pin string) (bool, error) {
	got, err := m.compute(pin)
	if err != nil {
		return false, errorcodes.New(m.refField, err)
	}
	want := strings.TrimRight(strings.ToUpper(cmd.Get(m.refField)), "F")

	return len(want) == len(got) && cryptoutils.EqualHex(got, want), nil
}

// Execute31 translates an ANSI PIN block from one PIN encryption key to another.
//
//	<31#in type#out type#KPE in#KPE out#PIN block#partial PAN#>  ->  <41#PIN block#Y#>
func Execute31(snap *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	if err := requireFields(cmd, 6); err != nil {
		return nil, err
	}
	if err := checkPINBlockType(cmd, 1); err != nil {
		return nil, err
	}
	if err := checkPINBlockType(cmd, 2); err != nil {
		return nil, err
	}

	kpeIn, _, err := resolveKey(snap, cmd, 3, akb.UsagePINEncryption)
	if err != nil {
		return nil, err
	}
	kpeOut, _, err := resolveKey(snap, cmd, 4, akb.UsagePINEncryption)
	if err != nil {
		return nil, err
	}

	pb, err := decryptPIN(kpeIn, cmd, 5, 6)
	if err != nil {
		return nil, err
	}
	if !pb.SanityCheck {
		return nil, errorcodes.New(5, ErrSanityCheck)
	}

	out, err := pinblock.Encrypt(kpeOut, pb.PIN, pb.PartialPAN)
	if err != nil {
		return nil, errorcodes.New(4, err)
	}

	return []string{"41", out, resultVerified}, nil
}

// Execute32 verifies a PIN against an IBM 3624 offset or a Visa PVV.
//
//	<32#2#1#KPE#PIN block#partial PAN#KPV#table#validation data#pad#offset#>
//	<32#3#1#KPE#PIN block#partial PAN#KPV#PVV PAN#PVKI#PVV#>
func Execute32(snap *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	if err := requireFields(cmd, 6); err != nil {
		return nil, err
	}
	if err := checkPINBlockType(cmd, 2); err != nil {
		return nil, err
	}

	kpe, _, err := resolveKey(snap, cmd, 3, akb.UsagePINEncryption)
	if err != nil {
		return nil, err
	}
	kpv, _, err := resolveKey(snap, cmd, 6, akb.UsagePINVerification)
	if err != nil {
		return nil, err
	}
	method, err := pinMethodFor(cmd, kpv, 7)
	if err != nil {
		return nil, err
	}

	pb, err := decryptPIN(kpe, cmd, 4, 5)
	if err != nil {
		return nil, err
	}
	if !pb.SanityCheck {
		return []string{"42", resultSanity}, nil
	}

	ok, err := method.verify(cmd, pb.PIN)
	if err != nil {
		return nil, err
	}

	return []string{"42", boolResult(ok)}, nil
}

// Execute37 verifies the old PIN and, when it matches, returns the offset or
// PVV for the new PIN.
//
//	<37#alg#1#KPE#old block#new block#partial PAN#KPV#...#old offset or PVV#>
func Execute37(snap *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	if err := requireFields(cmd, 7); err != nil {
		return nil, err
	}
	if err := checkPINBlockType(cmd, 2); err != nil {
		return nil, err
	}

	kpe, _, err := resolveKey(snap, cmd, 3, akb.UsagePINEncryption)
	if err != nil {
		return nil, err
	}
	kpv, _, err := resolveKey(snap, cmd, 7, akb.UsagePINVerification)
	if err != nil {
		return nil, err
	}
	method, err := pinMethodFor(cmd, kpv, 8)
	if err != nil {
		return nil, err
	}

	oldPB, err := decryptPIN(kpe, cmd, 4, 6)
	if err != nil {
		return nil, err
	}
	newPB, err := decryptPIN(kpe, cmd, 5, 6)
	if err != nil {
		return nil, err
	}
	if !oldPB.SanityCheck || !newPB.SanityCheck {
		return []string{"47", resultSanity}, nil
	}

	ok, err := method.verify(cmd, oldPB.PIN)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{"47", resultFailed}, nil
	}

	value, err := method.compute(newPB.PIN)
	if err != nil {
		return nil, errorcodes.New(5, err)
	}

	return []string{"47", resultVerified, value}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return s != ""
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return s != ""
}
