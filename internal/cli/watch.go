package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"asyncops/pkg/contracts/events"
)

// operationPayload is the subset shared by every operation message
type operationPayload struct {
	OperationID string                    `json:"operation_id"`
	Description string                    `json:"description"`
	Operation   *events.OperationSnapshot `json:"operation"`
}

func newWatchCmd(opts *options) *cobra.Command {
	var (
		operationID string
		count       int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream operation events",
		Long: `Watch connects to the daemon's websocket and prints every operation
event as it arrives. Interrupt to stop.

Use --operation to follow a single operation; the stream then ends once
that operation completes. Use --count to stop after N events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			seen := 0
			return client.Watch(cmd.Context(), func(msg events.Message) error {
				var p operationPayload
				if msg.Type != events.MessageTypeConnection {
					if err := msg.Decode(&p); err != nil {
						return fmt.Errorf("decode %s message: %w", msg.Type, err)
					}
				}
				if operationID != "" && p.OperationID != operationID {
					return nil
				}

				if err := printMessage(out, msg, p, opts.json); err != nil {
					return err
				}

				seen++
				if count > 0 && seen >= count {
					return ErrStopWatch
				}
				if operationID != "" && msg.Type == events.MessageTypeOperationComplete {
					return ErrStopWatch
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&operationID, "operation", "", "Only show events for this operation id")
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many events (0 = unlimited)")
	return cmd
}

func printMessage(out io.Writer, msg events.Message, p operationPayload, asJSON bool) error {
	if asJSON {
		line, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(line))
		return err
	}

	ts := msg.Timestamp.Local().Format(time.TimeOnly)
	switch {
	case msg.Type == events.MessageTypeConnection:
		var c events.ConnectionData
		_ = msg.Decode(&c)
		fmt.Fprintf(out, "%s  connected  client=%s\n", ts, c.ClientID)
	case p.Operation != nil:
		fmt.Fprintf(out, "%s  %-28s %s  %s  %d%%\n",
			ts, msg.Type, p.OperationID, p.Operation.Status, p.Operation.Progress)
	default:
		fmt.Fprintf(out, "%s  %-28s %s  %s\n", ts, msg.Type, p.OperationID, dash(p.Description))
	}
	return nil
}
