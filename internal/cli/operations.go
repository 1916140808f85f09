package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"asyncops/pkg/contracts/events"
)

func newListCmd(opts *options) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked operations",
		Long: `List every operation the daemon still retains, including finished
ones inside their grace period.

Use --status to show only operations in one state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			list, err := client.List(cmd.Context(), status)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, list)
			}
			if list.Count == 0 {
				fmt.Fprintln(out, "No operations.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tAGE\tDESCRIPTION")
			for _, op := range list.Operations {
				fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n",
					op.ID, op.Status, op.Progress, age(op), dash(op.Description))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			op, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), op)
			}
			return printOperation(cmd.OutOrStdout(), op)
		},
	}
}

func newCancelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running operation",
		Long: `Cancel moves a non-terminal operation to cancelled and stops any
polling attached to it. Finished operations are rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			op, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), op)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Operation %s %s\n", op.ID, op.Status)
			return nil
		},
	}
}

func printOperation(out io.Writer, op events.OperationSnapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", op.ID)
	fmt.Fprintf(w, "Status:\t%s\n", op.Status)
	fmt.Fprintf(w, "Progress:\t%d%%\n", op.Progress)
	fmt.Fprintf(w, "Description:\t%s\n", dash(op.Description))
	fmt.Fprintf(w, "Started:\t%s\n", op.StartTime.Local().Format(time.RFC3339))
	if op.EndTime != nil {
		fmt.Fprintf(w, "Ended:\t%s\n", op.EndTime.Local().Format(time.RFC3339))
	}
	if op.DurationMS != nil {
		fmt.Fprintf(w, "Duration:\t%s\n", time.Duration(*op.DurationMS)*time.Millisecond)
	}
	if op.Result != nil {
		if op.Result.Message != "" {
			fmt.Fprintf(w, "Message:\t%s\n", op.Result.Message)
		}
		if op.Result.Error != "" {
			fmt.Fprintf(w, "Error:\t%s\n", op.Result.Error)
		}
	}
	return w.Flush()
}

func age(op events.OperationSnapshot) string {
	end := time.Now()
	if op.EndTime != nil {
		end = *op.EndTime
	}
	return end.Sub(op.StartTime).Round(time.Second).String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
