// Command go_atalla runs the Atalla HSM simulator and its tools.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/andrei-cloud/go_atalla/internal/commands/cli"
)

func main() {
	root, err := cli.NewRootCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
