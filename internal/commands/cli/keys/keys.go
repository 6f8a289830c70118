// Package keys provides AKB key management commands.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_atalla/internal/config"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/pkg/akb"
	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

const defaultHeader = "1PDNE000"

// NewKeysCommand creates the keys command group.
func NewKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "AKB key block operations",
		Long: `Wrap, check and generate keys as Atalla key blocks (AKB) under the
master key, build AKB headers interactively and manage the key directory.`,
	}

	cmd.PersistentFlags().String("mk", "", "Master key in hex (default: hsm.master_key)")

	cmd.AddCommand(newEncodeCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newGenerateCommand())
	cmd.AddCommand(newHeaderCommand())
	cmd.AddCommand(newAddCommand())
	cmd.AddCommand(newListCommand())

	return cmd
}

func newEncodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Wrap a clear key into an AKB",
		Example: `  # Wrap a double length PIN encryption key
  go_atalla keys encode --header 1PDNE000 --key 0123456789ABCDEFFEDCBA9876543210`,
		RunE: runEncode,
	}

	cmd.Flags().String("header", defaultHeader, "8 character AKB header")
	cmd.Flags().String("key", "", "Clear key in hex (16, 32 or 48 characters)")
	cmd.Flags().Bool("force-parity", false, "Fix key parity instead of rejecting the key")
	if err := cmd.MarkFlagRequired("key"); err != nil {
		panic(err)
	}

	return cmd
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify an AKB and print its header and check digits",
		RunE:  runCheck,
	}

	cmd.Flags().String("akb", "", "Flattened AKB: header,encrypted key,MAC")
	if err := cmd.MarkFlagRequired("akb"); err != nil {
		panic(err)
	}

	return cmd
}

func newGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a random odd parity key wrapped as an AKB",
		RunE:  runGenerate,
	}

	cmd.Flags().String("header", defaultHeader, "8 character AKB header")
	cmd.Flags().Int("length", 16, "Key length in bytes (8, 16 or 24)")
	cmd.Flags().Bool("clear", false, "Display the clear key")

	return cmd
}

func newHeaderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "header",
		Short: "Build an AKB header interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			header, ok, err := runHeaderTUI()
			if err != nil {
				return fmt.Errorf("header builder failed: %w", err)
			}
			if !ok {
				return nil
			}
			cmd.Printf("Header: %s\n", header.String())

			return describeHeader(cmd.OutOrStdout(), header)
		},
	}
}

func newAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a key directory entry",
		Long: `Verify an AKB under the master key and store it in the configured key
directory (hsm.key_store) under the given name.`,
		RunE: runAdd,
	}

	cmd.Flags().String("name", "", "Directory entry name")
	cmd.Flags().String("akb", "", "Flattened AKB")
	cmd.Flags().String("directory", "", "Key directory file (default: hsm.key_directory)")
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("akb"); err != nil {
		panic(err)
	}

	return cmd
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List and verify the key directory",
		RunE:  runList,
	}

	cmd.Flags().String("directory", "", "Key directory file (default: hsm.key_directory)")

	return cmd
}

// masterKey returns the --mk flag or the configured master key.
func masterKey(cmd *cobra.Command) ([]byte, error) {
	mkHex, _ := cmd.Flags().GetString("mk")
	if mkHex == "" {
		mkHex = config.Get().HSM.MasterKey
	}
	if mkHex == "" {
		return nil, errors.New("no master key: pass --mk or set hsm.master_key")
	}

	return hsm.ParseMasterKey(mkHex)
}

// openStore opens the configured key store, honouring a --directory override.
func openStore(cmd *cobra.Command) (hsm.KeyStore, func() error, error) {
	sc := config.Get().StoreConfig()
	if dir, _ := cmd.Flags().GetString("directory"); dir != "" {
		sc.Kind = hsm.StoreFile
		sc.Path = dir
	}

	return hsm.OpenStore(sc)
}

func runEncode(cmd *cobra.Command, _ []string) error {
	header, _ := cmd.Flags().GetString("header")
	keyHex, _ := cmd.Flags().GetString("key")
	forceParity, _ := cmd.Flags().GetBool("force-parity")

	mk, err := masterKey(cmd)
	if err != nil {
		return err
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || !cryptoutils.ValidKeyLength(len(key)) {
		return errors.New("key must be 16, 32 or 48 hex characters")
	}
	if !cryptoutils.CheckKeyParity(key) {
		if !forceParity {
			return errors.New("key has invalid parity; use --force-parity to fix")
		}
		key = cryptoutils.FixKeyParity(key)
	}

	return printBlock(cmd, header, mk, key, false)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	header, _ := cmd.Flags().GetString("header")
	length, _ := cmd.Flags().GetInt("length")
	showClear, _ := cmd.Flags().GetBool("clear")

	mk, err := masterKey(cmd)
	if err != nil {
		return err
	}
	key, err := cryptoutils.GenerateRandomKey(length)
	if err != nil {
		return err
	}

	return printBlock(cmd, header, mk, key, showClear)
}

func printBlock(cmd *cobra.Command, header string, mk, key []byte, showClear bool) error {
	kb, err := akb.Encode(header, mk, key)
	if err != nil {
		return fmt.Errorf("failed to wrap key: %w", err)
	}
	cd, err := cryptoutils.CheckDigits(key, akb.CheckDigitsLength)
	if err != nil {
		return err
	}

	cmd.Printf("AKB: %s\n", kb.String())
	cmd.Printf("Check Digits: %s\n", cd)
	if showClear {
		cmd.Printf("Clear Key: %s\n", strings.ToUpper(hex.EncodeToString(key)))
	}

	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	block, _ := cmd.Flags().GetString("akb")

	mk, err := masterKey(cmd)
	if err != nil {
		return err
	}
	kb, err := akb.Parse(block)
	if err != nil {
		return err
	}
	key, err := akb.Decode(kb, mk)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	cd, err := cryptoutils.CheckDigits(key, akb.CheckDigitsLength)
	if err != nil {
		return err
	}
	header, err := akb.ParseHeader(kb.Header)
	if err != nil {
		return err
	}

	cmd.Printf("MAC: valid\n")
	cmd.Printf("Key Length: %d bytes\n", len(key))
	cmd.Printf("Check Digits: %s\n", cd)
	cmd.Printf("Parity Valid: %t\n\n", cryptoutils.CheckKeyParity(key))

	return describeHeader(cmd.OutOrStdout(), header)
}

func runAdd(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	block, _ := cmd.Flags().GetString("akb")

	mk, err := masterKey(cmd)
	if err != nil {
		return err
	}
	kb, err := akb.Parse(block)
	if err != nil {
		return err
	}
	// NewSnapshot applies the same name and MAC checks the server does on load.
	if _, err := hsm.NewSnapshot(mk, map[string]*akb.KeyBlock{name: kb}); err != nil {
		return err
	}

	store, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	if err := store.Put(cmd.Context(), name, kb.String()); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	cmd.Printf("Stored %s (%s)\n", name, kb.Header)

	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	mk, err := masterKey(cmd)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	dir, err := hsm.LoadDirectory(cmd.Context(), store)
	if err != nil {
		return err
	}
	snap, err := hsm.NewSnapshot(mk, dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Name\tHeader\tCheck Digits")
	for _, info := range snap.Directory() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.Header, info.CheckDigits)
	}

	return w.Flush()
}
