// Package commands provides the command implementations of the cqrs CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-cqrs/cli/styles"
	"github.com/AshkanYarmoradi/go-cqrs/cli/ui"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command for the cqrs CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{open: openAdapter})
}

func newRootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cqrs",
		Short: "Inspect and drive event-sourced aggregates",
		Long: ui.Banner() + `

cqrs manages the event store of a go-cqrs application and runs commands
against the MyAggregate reference aggregate.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("cqrs init") + `                 Create cqrs.yaml
  ` + styles.Code.Render("cqrs schema --apply") + `       Create the event store tables
  ` + styles.Code.Render("cqrs exec agg-1 set hello") + ` Run a command
  ` + styles.Code.Render("cqrs replay agg-1") + `         Rebuild state from events`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				styles.DisableColors()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: cqrs.yaml in this or a parent directory)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log store activity to stderr")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(newSchemaCommand(opts))
	rootCmd.AddCommand(newStreamCommand(opts))
	rootCmd.AddCommand(newReplayCommand(opts))
	rootCmd.AddCommand(newExecCommand(opts))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}
