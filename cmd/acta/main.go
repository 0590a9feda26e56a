// Package main is the acta daemon and CLI: it runs the local agent runtime
// the desktop shell talks to over a loopback WebSocket, and offers offline
// management of profiles and remembered trust rules.
//
// # Basic Usage
//
// Start the daemon:
//
//	acta serve --config ~/.acta/config.yaml
//
// Manage profiles:
//
//	acta profile list
//	acta profile create work --name "Work"
//	acta profile switch work
//
// Inspect remembered rules:
//
//	acta rules list
//	acta rules remove <rule-id>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "acta",
		Short:         "Local permissioned AI assistant runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		buildServeCmd(),
		buildProfileCmd(),
		buildRulesCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
