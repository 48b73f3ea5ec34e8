package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/modular"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskflow/modules/intake"
)

// ErrNoSender is returned when ingest gets neither --phone nor --user.
var ErrNoSender = errors.New("one of --phone or --user is required")

// NewIngestCommand creates the ingest command
func NewIngestCommand(g *globals) *cobra.Command {
	var req intake.Request
	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Run a message through the intake pipeline",
		Long: `Ingest parses free-form text as if it arrived from the given sender,
applies the resulting task changes and prints the results as JSON.`,
		Example: `  taskflow ingest --phone +15550001 "new task: draft newsletter by friday"
  taskflow ingest --user 42 --bulk "$(cat standup.txt)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Phone == "" && req.UserID == "" {
				return ErrNoSender
			}
			req.Text = strings.Join(args, " ")

			return withInitialized(cmd, g, func(app modular.Application) error {
				var pipeline *intake.Pipeline
				if err := app.GetService(intake.ServiceName, &pipeline); err != nil {
					return fmt.Errorf("intake pipeline: %w", err)
				}
				results, err := pipeline.Ingest(cmd.Context(), req)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			})
		},
	}

	cmd.Flags().StringVar(&req.Phone, "phone", "", "Sender phone number")
	cmd.Flags().StringVar(&req.UserID, "user", "", "Sender user ID")
	cmd.Flags().BoolVar(&req.Bulk, "bulk", false, "Treat the text as a report holding several updates")
	return cmd
}
