// Alcoved is the alcove retrieval daemon and CLI.
//
// `alcoved serve` runs the HTTP API; the other subcommands are thin
// clients for a running daemon.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML config file, empty for the default path.
	configPath string
	// serverURL is the daemon base URL for client subcommands.
	serverURL string

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "alcoved",
	Short:   "Local-first retrieval daemon for grounded document Q&A",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/alcove/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8642", "alcove daemon URL")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
