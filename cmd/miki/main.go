// File: cmd/miki/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// miki: point-to-point TCP text relay.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "miki",
		Short: "Point-to-point TCP text relay",
		Long: `miki relays text messages between TCP clients.

Each client is told its token on connect and addresses others with
"<token>~<message>". Messages for clients that are not connected are
held in a bounded cache and delivered when they connect.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		clientCmd(),
		versionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}
