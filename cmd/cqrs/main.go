// cqrs is the command-line interface of the go-cqrs event sourcing library.
//
// Usage:
//
//	cqrs <command> [flags]
//
// Commands:
//
//	init     Create a cqrs.yaml configuration file
//	schema   Print or apply the event store schema
//	stream   Inspect event streams
//	replay   Rebuild a MyAggregate from its events
//	exec     Run a command against a MyAggregate
//	version  Show version information
//
// Examples:
//
//	cqrs init --driver memory --non-interactive
//	cqrs exec agg-1 set hello
//	cqrs stream events MyAggregate-agg-1
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-cqrs/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
