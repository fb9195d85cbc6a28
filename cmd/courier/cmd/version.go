package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version can be set at build time:
//
//	go build -ldflags "-X 'github.com/nfrund/courier/cmd/courier/cmd.Version=v1.2.3'"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the courier version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("courier", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
