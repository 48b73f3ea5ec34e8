package cmd

import (
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command
func NewServeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Long: `Serve starts every module, including the HTTP API and the cron-driven
reminder jobs, and runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd, g)
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}
