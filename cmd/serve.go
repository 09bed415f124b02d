package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over HTTP",
		Long:  "Start the HTTP API. Reports are generated per request; /metrics exposes Prometheus metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Shutdown()

			app.Start()
			if !quiet {
				infoColor.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", app.Addr())
			}
			return app.WaitForShutdown(cmd.Context())
		},
	}
}
