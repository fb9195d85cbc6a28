package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nfrund/courier/internal/topics"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the closed topic enumeration",
	Long:  "List every topic the bus routes on. Publishing outside this set is a no-op.",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOPIC\tDESCRIPTION")
		for _, t := range topics.All() {
			fmt.Fprintf(w, "%s\t%s\n", t.Name(), t.Description())
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}
