// Package pb provides PIN block related commands.
package pb

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
	"github.com/andrei-cloud/go_atalla/pkg/pinblock"
)

// NewPinBlockCommand creates the pinblock command with subcommands.
func NewPinBlockCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "pinblock",
		Short: "ANSI PIN block operations",
		Long: `Build and disassemble ANSI X9.8 (ISO 9564 format 0) PIN blocks, the
PIN block type 1 used on the simulator wire. With --kpe the block is also
encrypted or decrypted under a clear PIN encryption key.`,
		Example: `  # Build a clear PIN block
  go_atalla pinblock create --pin 1234 --pan 4111111111111111

  # Extract the PIN from a clear block
  go_atalla pinblock extract --pinblock 041225EEEEEEEEEE --pan 4111111111111111`,
	}

	createCmd, err := newCreateCommand()
	if err != nil {
		return nil, fmt.Errorf("failed to create 'create' subcommand: %w", err)
	}
	cmd.AddCommand(createCmd)

	extractCmd, err := newExtractCommand()
	if err != nil {
		return nil, fmt.Errorf("failed to create 'extract' subcommand: %w", err)
	}
	cmd.AddCommand(extractCmd)

	return cmd, nil
}

func newCreateCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Build a PIN block",
		RunE:  runCreate,
	}

	cmd.Flags().String("pin", "", "PIN (4-12 digits)")
	cmd.Flags().String("pan", "", "PAN or 12 digit partial PAN")
	cmd.Flags().String("kpe", "", "Clear PIN encryption key in hex (optional)")

	if err := cmd.MarkFlagRequired("pin"); err != nil {
		return nil, fmt.Errorf("failed to mark pin flag as required: %w", err)
	}
	if err := cmd.MarkFlagRequired("pan"); err != nil {
		return nil, fmt.Errorf("failed to mark pan flag as required: %w", err)
	}

	return cmd, nil
}

func newExtractCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the PIN from a PIN block",
		RunE:  runExtract,
	}

	cmd.Flags().String("pinblock", "", "PIN block (16 hex characters)")
	cmd.Flags().String("pan", "", "PAN or 12 digit partial PAN")
	cmd.Flags().String("kpe", "", "Clear PIN encryption key in hex; the block is decrypted first")

	if err := cmd.MarkFlagRequired("pinblock"); err != nil {
		return nil, fmt.Errorf("failed to mark pinblock flag as required: %w", err)
	}
	if err := cmd.MarkFlagRequired("pan"); err != nil {
		return nil, fmt.Errorf("failed to mark pan flag as required: %w", err)
	}

	return cmd, nil
}

// kpeFlag returns the --kpe key or nil when the flag is not set.
func kpeFlag(cmd *cobra.Command) ([]byte, error) {
	kpeHex, _ := cmd.Flags().GetString("kpe")
	if kpeHex == "" {
		return nil, nil
	}
	kpe, err := hex.DecodeString(kpeHex)
	if err != nil || !cryptoutils.ValidKeyLength(len(kpe)) {
		return nil, errors.New("kpe must be 16, 32 or 48 hex characters")
	}

	return kpe, nil
}

func runCreate(cmd *cobra.Command, _ []string) error {
	pin, _ := cmd.Flags().GetString("pin")
	pan, _ := cmd.Flags().GetString("pan")

	partialPAN, err := pinblock.PartialPAN(pan)
	if err != nil {
		return err
	}
	kpe, err := kpeFlag(cmd)
	if err != nil {
		return err
	}

	clearBlock, err := pinblock.EncodeANSI(pin, partialPAN)
	if err != nil {
		return err
	}
	cmd.Printf("Partial PAN: %s\n", partialPAN)
	cmd.Printf("Clear PIN block: %s\n", clearBlock)

	if kpe != nil {
		enc, err := pinblock.Encrypt(kpe, pin, partialPAN)
		if err != nil {
			return err
		}
		cmd.Printf("Encrypted PIN block: %s\n", enc)
	}

	return nil
}

func runExtract(cmd *cobra.Command, _ []string) error {
	block, _ := cmd.Flags().GetString("pinblock")
	pan, _ := cmd.Flags().GetString("pan")

	partialPAN, err := pinblock.PartialPAN(pan)
	if err != nil {
		return err
	}
	kpe, err := kpeFlag(cmd)
	if err != nil {
		return err
	}

	var decoded pinblock.PinBlock
	if kpe != nil {
		decoded, err = pinblock.Decrypt(kpe, block, partialPAN)
	} else {
		decoded, err = pinblock.DecodeANSI(block, partialPAN)
	}
	if err != nil {
		return err
	}
	if !decoded.SanityCheck {
		return errors.New("PIN block failed the sanity check")
	}
	cmd.Printf("PIN: %s\n", decoded.PIN)

	return nil
}
