package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowdeck",
		Short: "Workflow dashboard with live search and background generation",
		Long: `Flowdeck serves an authenticated workflow dashboard.

The dashboard lists workflows with debounced, URL-synchronized search
and pagination over a live websocket, and runs text generation for a
workflow as a background job wired to an external workflow engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
