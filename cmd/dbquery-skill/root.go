// cmd/dbquery-skill/root.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askdba/dbquery-skill/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "dbquery-skill",
	Short: "Database-query skill with SQL admission control",
	Long: `dbquery-skill checks SQL requests against a read-only classifier, injection
heuristics, a database allow-list and a confirmation gate before dispatching them
to a database gateway. It serves the skill over MCP (stdio) or a REST API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config.ConfigFilePath, "config", "c", "", "path to config file (YAML or JSON)")
}
