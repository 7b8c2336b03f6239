package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-cqrs/adapters/postgres"
	"github.com/AshkanYarmoradi/go-cqrs/cli/config"
	"github.com/AshkanYarmoradi/go-cqrs/cli/styles"
)

func newSchemaCommand(opts *options) *cobra.Command {
	var (
		output string
		schema string
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the event store schema",
		Long: `Print the PostgreSQL DDL of the event store, write it to a file, or
apply it to the configured database.

Examples:
  cqrs schema                    # Print the DDL
  cqrs schema -o schema.sql      # Write the DDL to a file
  cqrs schema --apply            # Create the tables`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if apply {
				e, err := opts.openEnv(cmd)
				if err != nil {
					return err
				}
				defer e.Close()

				if e.cfg.Database.Driver == config.DriverMemory {
					fmt.Fprintln(out, styles.FormatInfo("Memory driver needs no schema"))
					return nil
				}
				if err := e.store.Initialize(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Schema %q is up to date", e.cfg.Database.Schema)))
				return nil
			}

			cfg, err := opts.loadConfigOrDefault()
			if err != nil {
				return err
			}
			if schema == "" {
				schema = cfg.Database.Schema
			}
			ddl := postgres.Schema(schema)

			if output == "" {
				fmt.Fprint(out, ddl)
				return nil
			}
			if err := os.WriteFile(output, []byte(ddl), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(out, styles.FormatSuccess("Schema written to "+output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "Schema name (default: from config)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Create the tables in the configured database")

	return cmd
}
