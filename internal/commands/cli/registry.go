// Package cli provides centralized command registration.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_atalla/internal/commands/cli/emv"
	"github.com/andrei-cloud/go_atalla/internal/commands/cli/keys"
	"github.com/andrei-cloud/go_atalla/internal/commands/cli/pb"
	"github.com/andrei-cloud/go_atalla/internal/commands/cli/send"
	"github.com/andrei-cloud/go_atalla/internal/commands/cli/server"
)

// RegisterCommands registers all root commands.
func RegisterCommands(root *cobra.Command) error {
	root.AddCommand(keys.NewKeysCommand())

	pinblockCmd, err := pb.NewPinBlockCommand()
	if err != nil {
		return fmt.Errorf("failed to create pinblock command: %w", err)
	}
	root.AddCommand(pinblockCmd)

	root.AddCommand(emv.NewEMVCommand())
	root.AddCommand(send.NewSendCommand())
	root.AddCommand(server.NewServeCommand())

	return nil
}
