// Package emv provides EMV chip data commands.
package emv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_atalla/pkg/emvdata"
)

// NewEMVCommand creates the emv command group.
func NewEMVCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emv",
		Short: "EMV chip data utilities",
	}

	cmd.AddCommand(newDataCommand())

	return cmd
}

func newDataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Build the ARQC data block from BER-TLV chip data",
		Long: `Decode BER-TLV chip data, print every primitive tag and concatenate the
requested tag values into the hex data block expected by the ARQC command.`,
		Example: `  # Default CDOL1 order
  go_atalla emv data --tlv 9F02060000000010009F0306000000000000...

  # Custom tag order
  go_atalla emv data --tlv 9F3704AABBCCDD9F36020001 --tags 9F37,9F36`,
		RunE: runData,
	}

	cmd.Flags().String("tlv", "", "BER-TLV chip data in hex")
	cmd.Flags().String("tags", strings.Join(emvdata.DefaultTags, ","), "Comma separated tag order")
	if err := cmd.MarkFlagRequired("tlv"); err != nil {
		panic(err)
	}

	return cmd
}

func runData(cmd *cobra.Command, _ []string) error {
	tlvHex, _ := cmd.Flags().GetString("tlv")
	tagList, _ := cmd.Flags().GetString("tags")

	data, err := hex.DecodeString(strings.TrimSpace(tlvHex))
	if err != nil {
		return errors.New("tlv must be hex encoded")
	}

	flat, err := emvdata.Flatten(data)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Tag\tLength\tValue")
	for _, p := range flat {
		fmt.Fprintf(w, "%s\t%d\t%s\n", strings.ToUpper(p.Tag), len(p.Value), strings.ToUpper(hex.EncodeToString(p.Value)))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	block, err := emvdata.DataBlock(data, emvdata.ParseTags(tagList))
	if err != nil {
		return err
	}
	cmd.Printf("\nData Block: %s\n", strings.ToUpper(hex.EncodeToString(block)))

	return nil
}
