// cmd/dbquery-skill/configcmd.go
package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/askdba/dbquery-skill/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			path = config.FindConfigFile()
		}
		if path == "" {
			return fmt.Errorf("no config file found; pass a path or set DBQUERY_CONFIG")
		}
		if err := config.ValidateConfigFile(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		pterm.Success.Printfln("%s is valid", path)
		return nil
	},
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), config.PrintConfig(cfg))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd, configPrintCmd)
	rootCmd.AddCommand(configCmd)
}
