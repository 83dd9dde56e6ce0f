package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/momentics/miki/client"
)

func clientCmd() *cobra.Command {
	var (
		addr  string
		greet bool
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Forward stdin lines to a relay and print what it sends",
		Long: `Connect to a relay, send each input line as-is and print
everything received.

Lines must look like "<token>~<message>".

Examples:
  miki client
  miki client --addr 10.0.0.5:2203`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := client.DefaultConfig()
			cfg.Addr = addr
			return runClient(cmd.Context(), cfg, greet, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", client.DefaultConfig().Addr, "Relay address")
	cmd.Flags().BoolVar(&greet, "greeting", true, "Expect the relay to announce our token first")

	return cmd
}

func runClient(ctx context.Context, cfg client.Config, greet bool, in io.Reader, out io.Writer) error {
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if greet {
		tok, err := c.ReadGreeting()
		if err != nil {
			return fmt.Errorf("read greeting: %w", err)
		}
		fmt.Fprintf(out, "connected as %s\n", tok)
	}

	recv := make(chan error, 1)
	go func() { recv <- c.Receive(out) }()

	if err := c.Forward(ctx, in); err != nil {
		return err
	}
	// input exhausted: keep printing until the relay hangs up
	select {
	case err := <-recv:
		return err
	case <-ctx.Done():
		return nil
	}
}
