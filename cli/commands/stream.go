package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-cqrs/cli/styles"
	"github.com/AshkanYarmoradi/go-cqrs/cli/ui"
)

// maxDataWidth truncates payloads in the events table.
const maxDataWidth = 60

func newStreamCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect event streams",
		Long: `Inspect the streams of the event store.

Examples:
  cqrs stream list                     # List streams, newest first
  cqrs stream list -p MyAggregate-     # Only MyAggregate streams
  cqrs stream events MyAggregate-agg-1 # Show a stream's events
  cqrs stream info MyAggregate-agg-1   # Show a stream's version and size`,
	}

	cmd.AddCommand(newStreamListCommand(opts))
	cmd.AddCommand(newStreamEventsCommand(opts))
	cmd.AddCommand(newStreamInfoCommand(opts))

	return cmd
}

func newStreamListCommand(opts *options) *cobra.Command {
	var (
		limit  int
		prefix string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List event streams",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			streams, err := e.store.ListStreams(cmd.Context(), prefix, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(streams) == 0 {
				fmt.Fprintln(out, styles.FormatInfo("No streams found"))
				return nil
			}

			rows := make([][]string, len(streams))
			for i, s := range streams {
				rows[i] = []string{s.StreamID, strconv.FormatInt(s.EventCount, 10), s.LastEventType, s.LastUpdated.Format("2006-01-02 15:04:05")}
			}

			fmt.Fprintln(out, styles.Title.Render(styles.IconStream+" Event Streams"))
			fmt.Fprintln(out, ui.Table([]string{"Stream", "Events", "Last Event", "Updated"}, rows))
			fmt.Fprintf(out, "%d streams\n", len(streams))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum streams to show (0 for all)")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Filter by stream ID prefix")

	return cmd
}

func newStreamEventsCommand(opts *options) *cobra.Command {
	var from int64

	cmd := &cobra.Command{
		Use:   "events <stream-id>",
		Short: "Show the events of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID := args[0]

			e, err := opts.openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.store.LoadRaw(cmd.Context(), streamID, from)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("No events in stream %q", streamID)))
				return nil
			}

			rows := make([][]string, len(events))
			for i, ev := range events {
				rows[i] = []string{
					strconv.FormatInt(ev.Version, 10),
					ev.Type,
					ev.SchemaVersion,
					strconv.FormatUint(ev.GlobalPosition, 10),
					ev.Timestamp.UTC().Format(time.RFC3339),
					formatData(ev.Data),
				}
			}

			fmt.Fprintln(out, styles.Title.Render(styles.IconStream+" "+streamID))
			fmt.Fprintln(out, ui.Table([]string{"Version", "Type", "Schema", "Position", "Time", "Data"}, rows))
			return nil
		},
	}

	cmd.Flags().Int64VarP(&from, "from", "f", 0, "Show events after this version")

	return cmd
}

func newStreamInfoCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <stream-id>",
		Short: "Show the version and size of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			info, err := e.store.GetStreamInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.FormatKeyValue("Stream", info.StreamID))
			fmt.Fprintln(out, styles.FormatKeyValue("Category", info.Category))
			fmt.Fprintln(out, styles.FormatKeyValue("Version", info.Version))
			fmt.Fprintln(out, styles.FormatKeyValue("Events", info.EventCount))
			fmt.Fprintln(out, styles.FormatKeyValue("Created", info.CreatedAt.UTC().Format(time.RFC3339)))
			fmt.Fprintln(out, styles.FormatKeyValue("Updated", info.UpdatedAt.UTC().Format(time.RFC3339)))
			return nil
		},
	}
}

// formatData shows JSON payloads compacted and other payloads by size.
func formatData(data []byte) string {
	var s string
	if json.Valid(data) && utf8.Valid(data) {
		s = string(data)
	} else {
		s = fmt.Sprintf("<%d bytes>", len(data))
	}

	if utf8.RuneCountInString(s) > maxDataWidth {
		s = string([]rune(s)[:maxDataWidth-1]) + "…"
	}
	return s
}
