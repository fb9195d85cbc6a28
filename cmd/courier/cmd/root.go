package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier in-process messaging bus",
	Long: `Courier is a topic-based publish/subscribe messaging core.

Available commands:
  run       Wire the bus, router and demo collaborators and run until interrupted
  topics    List the closed topic enumeration
  version   Print the courier version

Use "courier [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
