package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/GoCodeAlone/modular"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskflow"
)

// ErrUnknownLogFormat is returned for a --log-format other than text or json.
var ErrUnknownLogFormat = errors.New("unknown log format")

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("Taskflow v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// globals holds the persistent flags plus the application options every
// subcommand builds its application with.
type globals struct {
	configFile string
	logFormat  string
	logLevel   string
	options    []taskflow.Option
}

// NewRootCommand creates the root command for the taskflow binary. The
// options are passed to every application a subcommand builds.
func NewRootCommand(opts ...taskflow.Option) *cobra.Command {
	g := &globals{options: opts}
	cmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Taskflow - conversational task tracking for small teams",
		Long: `Taskflow tracks team tasks, blockers and dependencies, accepts updates
as free-form WhatsApp messages and sends scheduled reminders.`,
		SilenceUsage: true,
		Version:      Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate(PrintVersion() + "\n")

	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "config.yaml", "YAML config file, skipped when missing")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCommand(g))
	cmd.AddCommand(NewIngestCommand(g))
	cmd.AddCommand(NewJobsCommand(g))
	cmd.AddCommand(NewSeedCommand(g))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLogFormat, format)
	}
}

// buildApp wires the config feeders and builds the application. Logs go
// to the command's error stream so stdout stays machine-readable.
func buildApp(cmd *cobra.Command, g *globals, extra ...taskflow.Option) (modular.Application, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), g.logFormat, g.logLevel)
	if err != nil {
		return nil, err
	}
	modular.ConfigFeeders = taskflow.Feeders(g.configFile)

	opts := append([]taskflow.Option{taskflow.WithLogger(logger)}, g.options...)
	opts = append(opts, extra...)
	return taskflow.NewApplication(opts...)
}

// withInitialized builds an application without the HTTP surface, runs
// Init, hands it to fn and stops it afterwards.
func withInitialized(cmd *cobra.Command, g *globals, fn func(app modular.Application) error) error {
	app, err := buildApp(cmd, g, taskflow.WithoutHTTP())
	if err != nil {
		return err
	}
	if err := app.Init(); err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	runErr := fn(app)
	if err := app.Stop(); err != nil && runErr == nil {
		return fmt.Errorf("stopping application: %w", err)
	}
	return runErr
}
