// cmd/dbquery-skill/serve.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askdba/dbquery-skill/internal/config"
	"github.com/askdba/dbquery-skill/internal/logging"
)

func newServeCmd() *cobra.Command {
	var (
		httpMode bool
		port     int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the skill over MCP (stdio) or the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTPMode = httpMode
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTPPort = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					logging.Warn("error closing resources", map[string]interface{}{"error": err.Error()})
				}
			}()

			if cfg.HTTPMode {
				return serveHTTP(ctx, rt)
			}
			if err := runMCP(ctx, rt); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&httpMode, "http", false, "serve the REST API instead of MCP stdio")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultHTTPPort, "REST API port")
	return cmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
