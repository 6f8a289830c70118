package logic

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_atalla/internal/errorcodes"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/internal/message"
	"github.com/andrei-cloud/go_atalla/pkg/akb"
	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
	"github.com/andrei-cloud/go_atalla/pkg/pinblock"
)

const maxPANSequenceDigits = 2

// derivationType maps field 1 onto the ARQC scheme or the PIN change layout.
func derivationType(cmd *message.Command) (int, error) {
	switch t := cmd.Get(1); t {
	case "0", "1", "2":
		return int(t[0] - '0'), nil
	default:
		return 0, errorcodes.Unsupported(fmt.Sprintf("derivation type %q", t))
	}
}

// sessionContext derives the ICC master key and session key from an issuer
// master key. panField, seqField and divField are the fields carrying the PAN,
// PAN sequence number and diversification data.
func sessionContext(imk []byte, cmd *message.Command, panField, seqField, divField int) (*cryptoutils.SessionKeyContext, error) {
	pan, seq, div := cmd.Get(panField), cmd.Get(seqField), cmd.Get(divField)
	if !isDigits(pan) {
		return nil, errorcodes.New(panField, cryptoutils.ErrInvalidPAN)
	}
	if len(seq) > maxPANSequenceDigits || (seq != "" && !isDigits(seq)) {
		return nil, errorcodes.Newf(seqField, "PAN sequence number must be up to %d digits", maxPANSequenceDigits)
	}

	ctx, err := cryptoutils.NewSessionKeyContext(imk, pan, seq, div)
	switch {
	case errors.Is(err, cryptoutils.ErrDiversification):
		return nil, errorcodes.New(divField, err)
	case err != nil:
		return nil, errorcodes.New(panField, err)
	}

	return ctx, nil
}

func checkDigits(key []byte) string {
	cd, err := cryptoutils.CheckDigits(key, akb.CheckDigitsLength)
	if err != nil {
		return ""
	}

	return cd
}

// Execute350 verifies an ARQC and generates the ARPC.
//
//	<350#type#IMK#PAN#PAN seq#diversification#ARQC#data#ARC or CSU#[failure ARC]#>
//	  ->  <450#Y|N#ARPC#IMK check digits#session key check digits#>
func Execute350(snap *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	if err := requireFields(cmd, 8); err != nil {
		return nil, err
	}
	t, err := derivationType(cmd)
	if err != nil {
		return nil, err
	}
	dt := cryptoutils.DerivationType(t)

	imk, _, err := resolveKey(snap, cmd, 2, akb.UsageEMVMaster)
	if err != nil {
		return nil, err
	}
	ctx, err := sessionContext(imk, cmd, 3, 4, 5)
	if err != nil {
		return nil, err
	}
	arqc, err := hexField(cmd, 6, 8)
	if err != nil {
		return nil, err
	}
	data, err := hexField(cmd, 7, 0)
	if err != nil {
		return nil, err
	}
	responseField := 8
	response, err := hexField(cmd, responseField, 0)
	if err != nil {
		return nil, err
	}

	computed, err := cryptoutils.ComputeARQC(ctx, dt, data)
	if err != nil {
		return nil, errorcodes.New(7, err)
	}
	match := cryptoutils.EqualHex(cryptoutils.Raw2Str(computed), cryptoutils.Raw2Str(arqc))
	log.Debug().
		Str("derivation", dt.String()).
		Bool("arqc_match", match).
		Msg("ARQC verified")

	// On a mismatch the ARPC carries the failure code when one is supplied.
	if !match && dt != cryptoutils.DerivationCVN18 && cmd.Get(9) != "" {
		responseField = 9
		if response, err = hexField(cmd, responseField, 0); err != nil {
			return nil, err
		}
	}

	arpc, err := cryptoutils.ComputeARPC(ctx, dt, arqc, response)
	if err != nil {
		return nil, errorcodes.New(responseField, err)
	}

	return []string{
		"450",
		boolResult(match),
		cryptoutils.Raw2Str(arpc),
		checkDigits(imk),
		checkDigits(ctx.SessionKey),
	}, nil
}

// Execute352 builds an encrypted and MACed EMV PIN change payload.
//
//	<352#type#IMK-ENC#IMK-MAC#PAN#PAN seq#diversification#KPE#new PIN block#old PIN block#application data#>
//	  ->  <452#encrypted PIN#MAC#IMK-ENC cd#IMK-MAC cd#SK-ENC cd#SK-MAC cd#>
func Execute352(snap *hsm.Snapshot, cmd *message.Command) ([]string, error) {
	if err := requireFields(cmd, 10); err != nil {
		return nil, err
	}
	t, err := derivationType(cmd)
	if err != nil {
		return nil, err
	}
	mode := pinblock.PinChangeMode(t)

	imkENC, _, err := resolveKey(snap, cmd, 2, akb.UsageEMVMaster)
	if err != nil {
		return nil, err
	}
	imkMAC, _, err := resolveKey(snap, cmd, 3, akb.UsageEMVMaster)
	if err != nil {
		return nil, err
	}
	encCtx, err := sessionContext(imkENC, cmd, 4, 5, 6)
	if err != nil {
		return nil, err
	}
	macCtx, err := sessionContext(imkMAC, cmd, 4, 5, 6)
	if err != nil {
		return nil, err
	}
	kpe, _, err := resolveKey(snap, cmd, 7, akb.UsagePINEncryption)
	if err != nil {
		return nil, err
	}

	partialPAN, err := pinblock.PartialPAN(cmd.Get(4))
	if err != nil {
		return nil, errorcodes.New(4, err)
	}
	newPIN, err := clearPIN(kpe, cmd.Get(8), partialPAN, 8)
	if err != nil {
		return nil, err
	}
	var oldPIN string
	if mode == pinblock.PinChangeLegacy && cmd.Get(9) != "" {
		if oldPIN, err = clearPIN(kpe, cmd.Get(9), partialPAN, 9); err != nil {
			return nil, err
		}
	}

	var appData []byte
	if cmd.Get(10) != "" {
		if appData, err = hexField(cmd, 10, 0); err != nil {
			return nil, err
		}
	}

	payload, err := pinblock.EMVPinChangePayload(mode, newPIN, oldPIN, encCtx.ICCMasterKey)
	if err != nil {
		return nil, errorcodes.New(8, err)
	}
	enc, err := cryptoutils.TripleDESECBEncrypt(encCtx.SessionKey, payload)
	if err != nil {
		return nil, errorcodes.New(6, err)
	}
	mac, err := cryptoutils.RetailMAC(macCtx.SessionKey, slices.Concat(appData, enc), true)
	if err != nil {
		return nil, errorcodes.New(10, err)
	}

	return []string{
		"452",
		cryptoutils.Raw2Str(enc),
		cryptoutils.Raw2Str(mac),
		checkDigits(imkENC),
		checkDigits(imkMAC),
		checkDigits(encCtx.SessionKey),
		checkDigits(macCtx.SessionKey),
	}, nil
}

func clearPIN(kpe []byte, block, partialPAN string, field int) (string, error) {
	pb, err := pinblock.Decrypt(kpe, block, partialPAN)
	if err != nil {
		return "", errorcodes.New(field, err)
	}
	if !pb.SanityCheck {
		return "", errorcodes.New(field, ErrSanityCheck)
	}

	return pb.PIN, nil
}
