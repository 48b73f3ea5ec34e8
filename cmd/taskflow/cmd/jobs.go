package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskflow/modules/reminders"
)

// NewJobsCommand creates the jobs command
func NewJobsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run reminder jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newJobsListCommand(g))
	cmd.AddCommand(newJobsRunCommand(g))
	return cmd
}

func newJobsListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd, g, func(h *reminders.Handle) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tSCHEDULE\tPAUSED\tNEXT RUN")
				for _, j := range h.List() {
					next := "-"
					if j.NextRun != nil {
						next = j.NextRun.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", j.Name, j.Spec, j.Paused, next)
				}
				return w.Flush()
			})
		},
	}
}

func newJobsRunCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Run one job now and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd, g, func(h *reminders.Handle) error {
				report, err := h.Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}

func withScheduler(cmd *cobra.Command, g *globals, fn func(h *reminders.Handle) error) error {
	return withInitialized(cmd, g, func(app modular.Application) error {
		var h *reminders.Handle
		if err := app.GetService(reminders.ServiceName, &h); err != nil {
			return fmt.Errorf("reminder scheduler: %w", err)
		}
		return fn(h)
	})
}
