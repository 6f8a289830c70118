// Package logic implements the Atalla command handlers. Every handler takes a
// parsed command and the snapshot it runs against and returns the response
// fields, or a *errorcodes.CommandError naming the offending input field.
package logic

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/andrei-cloud/go_atalla/internal/errorcodes"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/internal/message"
	"github.com/andrei-cloud/go_atalla/pkg/akb"
	"github.com/andrei-cloud/go_atalla/pkg/pinblock"
)

// Handler executes one command.
type Handler func(snap *hsm.Snapshot, cmd *message.Command) ([]string, error)

// Verification outcomes shared by the verify commands.
const (
	resultVerified = "Y"
	resultFailed   = "N"
	resultSanity   = "S"

	pinBlockTypeANSI = "1"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidHex   = errors.New("field is not valid hex")
)

// requireFields checks that fields 1..n are present. The error names the
// first missing field.
func requireFields(cmd *message.Command, n int) error {
	if cmd.Len() < n {
		return errorcodes.New(cmd.Len()+1, ErrMissingField)
	}

	return nil
}

// hexField decodes field n; byteLen 0 accepts any even length.
func hexField(cmd *message.Command, n, byteLen int) ([]byte, error) {
	raw, err := hex.DecodeString(cmd.Get(n))
	if err != nil || len(raw) == 0 {
		return nil, errorcodes.New(n, ErrInvalidHex)
	}
	if byteLen > 0 && len(raw) != byteLen {
		return nil, errorcodes.Newf(n, "%w: want %d bytes, got %d", ErrInvalidHex, byteLen, len(raw))
	}

	return raw, nil
}

// resolveKey resolves field n as an AKB or directory name with the given usage.
func resolveKey(snap *hsm.Snapshot, cmd *message.Command, n int, usage byte) ([]byte, *akb.KeyBlock, error) {
	key, kb, err := snap.ResolveKey(cmd.Get(n), usage)
	if err != nil {
		return nil, nil, errorcodes.New(n, err)
	}

	return key, kb, nil
}

// decryptPIN decrypts the PIN block in field blockField under kpe. PAN errors
// are attributed to panField. A block that fails its sanity check is not an
// error; callers decide what that means.
func decryptPIN(kpe []byte, cmd *message.Command, blockField, panField int) (pinblock.PinBlock, error) {
	pb, err := pinblock.Decrypt(kpe, cmd.Get(blockField), cmd.Get(panField))
	switch {
	case errors.Is(err, pinblock.ErrInvalidPAN):
		return pb, errorcodes.New(panField, err)
	case err != nil:
		return pb, errorcodes.New(blockField, err)
	}

	return pb, nil
}

// checkPINBlockType rejects anything but the ANSI X9.8 block type.
func checkPINBlockType(cmd *message.Command, n int) error {
	if t := cmd.Get(n); t != pinBlockTypeANSI {
		return errorcodes.Unsupported(fmt.Sprintf("PIN block type %q", t))
	}

	return nil
}

func boolResult(ok bool) string {
	if ok {
		return resultVerified
	}

	return resultFailed
}

// singlePadChar validates a one character hex pad field.
func singlePadChar(cmd *message.Command, n int) (byte, error) {
	pad := cmd.Get(n)
	if len(pad) != 1 {
		return 0, errorcodes.Newf(n, "pad must be one hex character")
	}
	if _, err := hex.DecodeString(pad + pad); err != nil {
		return 0, errorcodes.New(n, ErrInvalidHex)
	}

	return pad[0], nil
}
