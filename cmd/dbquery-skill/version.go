// cmd/dbquery-skill/version.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time using -ldflags.
var Version = "0.0.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dbquery-skill %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
