package cli

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	// ServerEnv overrides the default daemon URL
	ServerEnv = "ASYNCOPS_SERVER"

	defaultServer  = "http://localhost:8080"
	defaultTimeout = 10 * time.Second
)

// options are the persistent flags shared by every subcommand
type options struct {
	server  string
	json    bool
	timeout time.Duration
}

func (o *options) client() (*Client, error) {
	return NewClient(o.server, o.timeout)
}

// NewRootCommand creates the root command of asyncopsctl
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "asyncopsctl",
		Short: "Inspect and control operations tracked by asyncopsd",
		Long: `asyncopsctl talks to a running asyncopsd over its REST API and
websocket stream.

The daemon address defaults to $ASYNCOPS_SERVER, or http://localhost:8080
when unset.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv(ServerEnv)
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "Daemon base URL")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "Request timeout")

	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newCancelCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))

	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
