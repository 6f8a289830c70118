package logic

import (
	"strconv"

	"github.com/andrei-cloud/go_atalla/internal/errorcodes"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/internal/message"
	"github.com/andrei-cloud/go_atalla/pkg/akb"
	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

const defaultCVVLength = 3

func cvkField(snap *hsm.Snapshot, cmd *message.Command) ([]byte, error) {
	cvk, _, err := resolveKey(snap, cmd, 1, akb.UsageCardVerify)
	if err != nil {
		return nil, err
	}
	if len(cvk) != cryptoutils.KEY_LENGTH_DOUBLE {
		return nil, errorcodes.Newf(1, "%w: CVK must be double length", cryptoutils.ErrInvalidKeyLength)
	}

	return cvk, nil
}

func cvvData(cmd *message.Command) (string, error) {
	data := cmd.Get(2)
	if !isDigits(data) || len(data) > cryptoutils.CVV_DATA_LENGTH {
		return "", errorcodes.New(2, cryptoutils.ErrInvalidCVVData)
	}

	return data, nil
}

// Execute5D generates a card verification value.
//
//	<5D#CVK#PAN expiry service code#[length]#>  ->  <6D#CVV#CVK check digits#>
func Execute5D(snap *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	if err := requireFields(cmd, 2); err != nil {
		return nil, err
	}
	cvk, err := cvkField(snap, cmd)
	if err != nil {
		return nil, err
	}
	data, err := cvvData(cmd)
	if err != nil {
		return nil, err
	}

	length := defaultCVVLength
	if s := cmd.Get(3); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 16 {
			return nil, errorcodes.Newf(3, "CVV length must be 1 to 16, got %q", s)
		}
		length = n
	}

	cvv, err := cryptoutils.GetCVV(cvk, data, length)
	if err != nil {
		return nil, errorcodes.New(2, err)
	}
	cd, err := cryptoutils.CheckDigits(cvk, akb.CheckDigitsLength)
	if err != nil {
		return nil, errorcodes.New(1, err)
	}

	return []string{"6D", cvv, cd}, nil
}

// Execute5E verifies a card verification value.
//
//	<5E#CVK#PAN expiry service code#CVV#>  ->  <6E#Y#> or <6E#N#>
func Execute5E(snap *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	if err := requireFields(cmd, 3); err != nil {
		return nil, err
	}
	cvk, err := cvkField(snap, cmd)
	if err != nil {
		return nil, err
	}
	data, err := cvvData(cmd)
	if err != nil {
		return nil, err
	}
	want := cmd.Get(3)
	if !isDigits(want) || len(want) > 16 {
		return nil, errorcodes.Newf(3, "CVV must be 1 to 16 digits")
	}

	cvv, err := cryptoutils.GetCVV(cvk, data, len(want))
	if err != nil {
		return nil, errorcodes.New(2, err)
	}

	return []string{"6E", boolResult(cryptoutils.EqualHex(cvv, want))}, nil
}

// Execute00 echoes the request fields.
func Execute00(_ *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	return append([]string{"01"}, cmd.Fields...), nil
}
