package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the gazetteer CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "gazetteer",
		Short:   "Bitemporal place-attribute store",
		Version: a.version,
		Long: `Gazetteer maintains a bitemporal record of place attributes gathered
from multiple sources of varying trust. Every attribute is versioned
along real-world validity and system recording time, and changes flow
through detection, scoring, and conflict resolution before they are
committed or queued for review.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVar(&a.config.ConfigFile, "config", "", "config file (default is $HOME/.gazetteer.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.config.Verbose, "verbose", "v", false, "verbose output (shortcut for debug logging)")
	rootCmd.PersistentFlags().BoolVarP(&a.config.Quiet, "quiet", "q", false, "minimal output (shortcut for warn logging)")
	rootCmd.PersistentFlags().BoolVar(&a.config.NoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&a.config.Output, "output", "o", "", "output format: json, yaml")
	rootCmd.PersistentFlags().StringVar(&a.config.StoreBackend, "store", a.config.StoreBackend, "store backend: sqlite, memory")
	rootCmd.PersistentFlags().StringVar(&a.config.StorePath, "db", a.config.StorePath, "sqlite database path")

	rootCmd.SetVersionTemplate("gazetteer {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	verbose := mustGetBool(cmd, "verbose")
	quiet := mustGetBool(cmd, "quiet")
	noColor := mustGetBool(cmd, "no-color")
	output := mustGetString(cmd, "output")

	a.config.UpdateFromFlags(verbose, quiet, noColor, output)

	logger := NewLogger(a.config)
	a.logger = &logger
	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(a.NewIngestCommand())
	rootCmd.AddCommand(a.NewQueryCommand())
	rootCmd.AddCommand(a.NewReviewCommand())
	rootCmd.AddCommand(a.NewSourcesCommand())
	rootCmd.AddCommand(a.NewMetricsCommand())
	rootCmd.AddCommand(a.NewVersionCommand())
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a bool flag that is known to exist.
func mustGetBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("flag " + name + " not registered: " + err.Error())
	}
	return value
}

// mustGetString retrieves a string flag that is known to exist.
func mustGetString(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("flag " + name + " not registered: " + err.Error())
	}
	return value
}
