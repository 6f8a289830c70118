// Package send provides the command that talks to a running simulator.
package send

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_atalla/internal/client"
	"github.com/andrei-cloud/go_atalla/internal/config"
)

// NewSendCommand creates the send command.
func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a command line to a running simulator",
		Long: `Send one Atalla command line and print the response. With --count the line
is sent repeatedly; the run stops once --max-failures consecutive transport
failures open the circuit breaker.`,
		Example: `  # Echo test
  go_atalla send --line "<00#hello#>"

  # Length-framed server, 100 requests
  go_atalla send --framed --count 100 --line "<00#load#>"`,
		RunE: runSend,
	}

	cmd.Flags().String("line", "", "Command line, e.g. <00#test#>")
	cmd.Flags().String("addr", "", "Simulator address (default: server.host:server.port)")
	cmd.Flags().Bool("framed", false, "Use anet length framing")
	cmd.Flags().Int("count", 1, "Number of times to send the line")
	cmd.Flags().Uint32("max-failures", 3, "Consecutive transport failures before giving up")
	cmd.Flags().Duration("timeout", 5*time.Second, "Dial and read timeout")
	if err := cmd.MarkFlagRequired("line"); err != nil {
		panic(err)
	}

	return cmd
}

func runSend(cmd *cobra.Command, _ []string) error {
	line, _ := cmd.Flags().GetString("line")
	addr, _ := cmd.Flags().GetString("addr")
	framed, _ := cmd.Flags().GetBool("framed")
	count, _ := cmd.Flags().GetInt("count")
	maxFailures, _ := cmd.Flags().GetUint32("max-failures")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if count < 1 {
		return errors.New("count must be at least 1")
	}
	if addr == "" {
		addr = config.Get().Address()
	}

	var transport client.Transport
	if framed {
		transport = client.NewFramedTransport(addr, timeout)
	} else {
		transport = client.NewLineTransport(addr, timeout)
	}
	c := client.New(transport, maxFailures)
	defer func() { _ = c.Close() }()

	if count == 1 {
		resp, err := c.Send(line)
		if err != nil {
			return err
		}
		cmd.Println(resp)

		return nil
	}

	start := time.Now()
	res, err := c.Repeat(line, count)
	for _, resp := range res.Responses {
		cmd.Println(resp)
	}
	cmd.Printf("Sent: %d, Failed: %d, Elapsed: %s\n", res.Sent, res.Failed, time.Since(start).Round(time.Millisecond))

	return err
}
