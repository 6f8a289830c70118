// Package cli provides the CLI command structure for go_atalla.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_atalla/internal/config"
)

var cfgFile string

// NewRootCommand creates and returns the root command with all subcommands.
func NewRootCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "go_atalla",
		Short: "Atalla HSM simulator and utilities",
		Long: `A software simulator of an Atalla-protocol HSM for payment testing: PIN
translation and verification, CVV, EMV ARQC and PIN change, plus tools for AKB
keys, PIN blocks and EMV data.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Initialize configuration before running any command.
			if err := config.Initialize(cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default is $HOME/.go_atalla/config.yaml)")

	// Global flags that can override config file settings.
	rootCmd.PersistentFlags().
		String("log-level", "info", "logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "human", "logging format (human, json)")

	config.BindFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	config.BindFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	if err := RegisterCommands(rootCmd); err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	return rootCmd, nil
}
