package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/cli/styles"
	"github.com/AshkanYarmoradi/go-cqrs/examples/myaggregate"
)

// valuesView names the MyAggregate value view in the view store.
const valuesView = "my_aggregate_values"

// replayOutput is the YAML document printed by replay and exec.
type replayOutput struct {
	AggregateID string                   `yaml:"aggregate_id"`
	Stream      string                   `yaml:"stream"`
	Version     int64                    `yaml:"version"`
	State       *myaggregate.MyAggregate `yaml:"state"`
}

func newReplayCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <aggregate-id>",
		Short: "Rebuild a MyAggregate from its events and print the state",
		Long: `Load every event of a MyAggregate stream, fold them onto the default
state and print the result as YAML.

Examples:
  cqrs replay agg-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			e.store.RegisterEvents(myaggregate.Events()...)
			repo := cqrs.NewRepository[*myaggregate.MyAggregate, myaggregate.Command, myaggregate.Event, myaggregate.Services](e.store, myaggregate.New)

			actx, err := repo.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printState(cmd, repo.StreamID(args[0]), actx)
		},
	}
}

func newExecCommand(opts *options) *cobra.Command {
	var (
		blocked       []string
		correlationID string
		userID        string
	)

	cmd := &cobra.Command{
		Use:   "exec <aggregate-id> set <value> | exec <aggregate-id> clear",
		Short: "Run a command against a MyAggregate",
		Long: `Run CommandA ("set") or ClearValue ("clear") against a MyAggregate,
commit the resulting events and print the new state.

Examples:
  cqrs exec agg-1 set hello
  cqrs exec agg-1 set forbidden --block forbidden   # rejected
  cqrs exec agg-1 clear`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			aggregateID := args[0]
			command, err := parseCommand(args[1:])
			if err != nil {
				return err
			}

			e, err := opts.openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			views := cqrs.NewStoreViewRepository[*myaggregate.ValueView](e.adapter, valuesView, myaggregate.NewValueView)
			fw := myaggregate.NewFramework(e.store,
				myaggregate.Services{Checker: myaggregate.Blocklist(blocked)},
				[]cqrs.Query[myaggregate.Event]{myaggregate.NewValueQuery(views)},
				cqrs.WithFrameworkLogger(opts.logger(cmd)),
			)
			defer fw.Close()

			result, err := fw.ExecuteWithMetadata(cmd.Context(), aggregateID, command, cqrs.Metadata{
				CorrelationID: correlationID,
				UserID:        userID,
			})
			if err != nil {
				if errors.Is(err, cqrs.ErrValidationFailed) {
					return fmt.Errorf("command rejected: %w", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if result.Events == 0 {
				fmt.Fprintln(out, styles.FormatInfo("No events emitted"))
			} else {
				fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("%s committed %d event(s), version %d", command.CommandType(), result.Events, result.Version)))
			}

			actx, err := fw.Load(cmd.Context(), aggregateID)
			if err != nil {
				return err
			}
			return printState(cmd, fw.Repository().StreamID(aggregateID), actx)
		},
	}

	cmd.Flags().StringSliceVar(&blocked, "block", nil, "Values CommandA must reject")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation ID stored with the events")
	cmd.Flags().StringVar(&userID, "user-id", "", "User ID stored with the events")

	return cmd
}

// parseCommand turns "set <value>" or "clear" into a MyAggregate command.
func parseCommand(args []string) (myaggregate.Command, error) {
	switch strings.ToLower(args[0]) {
	case "set":
		if len(args) != 2 {
			return nil, errors.New("usage: set <value>")
		}
		return myaggregate.CommandA{Value: args[1]}, nil
	case "clear":
		if len(args) != 1 {
			return nil, errors.New("usage: clear")
		}
		return myaggregate.ClearValue{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q, expected set or clear", args[0])
	}
}

func printState(cmd *cobra.Command, streamID string, actx *cqrs.AggregateContext[*myaggregate.MyAggregate]) error {
	data, err := yaml.Marshal(replayOutput{
		AggregateID: actx.AggregateID,
		Stream:      streamID,
		Version:     actx.Version,
		State:       actx.Aggregate,
	})
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
