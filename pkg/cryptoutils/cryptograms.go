package cryptoutils

import (
	"crypto/des"
	"errors"
	"fmt"
	"slices"
)

// DerivationType selects the ARQC/ARPC scheme.
type DerivationType int

const (
	// DerivationLegacy is the legacy MasterCard scheme: ARPC under the ICC master key.
	DerivationLegacy DerivationType = iota
	// DerivationCVN10 is Visa CVN10: ARPC under the session key.
	DerivationCVN10
	// DerivationCVN18 is Visa CVN18 / EMV common session: ARPC is a MAC over ARQC || CSU.
	DerivationCVN18
)

const ARPC_CVN18_LENGTH = 4

var ErrInvalidARC = errors.New("authorisation response code must be 1 to 8 bytes")

func (d DerivationType) String() string {
	switch d {
	case DerivationLegacy:
		return "legacy"
	case DerivationCVN10:
		return "cvn10"
	case DerivationCVN18:
		return "cvn18"
	default:
		return fmt.Sprintf("DerivationType(%d)", int(d))
	}
}

// SessionKeyContext holds the keys derived for a single cryptogram request.
type SessionKeyContext struct {
	ICCMasterKey []byte
	SessionKey   []byte
}

// NewSessionKeyContext derives the ICC master key from the issuer master key
// and then the session key from the diversification data.
func NewSessionKeyContext(imk []byte, pan, panSeq, diversification string) (*SessionKeyContext, error) {
	mk, err := DeriveICCMasterKey(imk, pan, panSeq)
	if err != nil {
		return nil, fmt.Errorf("derive ICC master key: %w", err)
	}
	sk, err := DeriveSessionKey(mk, diversification)
	if err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}

	return &SessionKeyContext{ICCMasterKey: mk, SessionKey: sk}, nil
}

// ComputeARQC returns the 8-byte application cryptogram over data. Legacy and
// CVN10 zero fill the last block; CVN18 always applies 0x80 padding.
func ComputeARQC(ctx *SessionKeyContext, dt DerivationType, data []byte) ([]byte, error) {
	return RetailMAC(ctx.SessionKey, data, dt == DerivationCVN18)
}

// arpcInput returns ARQC XOR (ARC || 00..00).
func arpcInput(arqc, arc []byte) ([]byte, error) {
	if len(arc) == 0 || len(arc) > des.BlockSize {
		return nil, ErrInvalidARC
	}
	if len(arqc) != des.BlockSize {
		return nil, fmt.Errorf("ARQC must be %d bytes, got %d", des.BlockSize, len(arqc))
	}
	padded := make([]byte, des.BlockSize)
	copy(padded, arc)

	return XORBytes(arqc, padded)
}

// ComputeARPCLegacy encrypts ARQC XOR ARC under the ICC master key.
func ComputeARPCLegacy(ctx *SessionKeyContext, arqc, arc []byte) ([]byte, error) {
	x, err := arpcInput(arqc, arc)
	if err != nil {
		return nil, err
	}

	return TripleDESECBEncrypt(ctx.ICCMasterKey, x)
}

// ComputeARPCCVN10 encrypts ARQC XOR ARC under the session key halves.
func ComputeARPCCVN10(ctx *SessionKeyContext, arqc, arc []byte) ([]byte, error) {
	x, err := arpcInput(arqc, arc)
	if err != nil {
		return nil, err
	}

	return TripleDESECBEncrypt(ctx.SessionKey, x)
}

// ComputeARPCCVN18 is the retail MAC over ARQC || CSU (0x80 padded) under the
// session key, truncated to four bytes.
func ComputeARPCCVN18(ctx *SessionKeyContext, arqc, csu []byte) ([]byte, error) {
	mac, err := RetailMAC(ctx.SessionKey, slices.Concat(arqc, csu), true)
	if err != nil {
		return nil, err
	}

	return mac[:ARPC_CVN18_LENGTH], nil
}

// ComputeARPC dispatches to the ARPC function for dt.
func ComputeARPC(ctx *SessionKeyContext, dt DerivationType, arqc, responseCode []byte) ([]byte, error) {
	switch dt {
	case DerivationLegacy:
		return ComputeARPCLegacy(ctx, arqc, responseCode)
	case DerivationCVN10:
		return ComputeARPCCVN10(ctx, arqc, responseCode)
	case DerivationCVN18:
		return ComputeARPCCVN18(ctx, arqc, responseCode)
	default:
		return nil, fmt.Errorf("unsupported derivation type %s", dt)
	}
}
