package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// defaultServer is used when neither --server nor DBFLEET_SERVER is set.
const defaultServer = "http://localhost:8080"

type globalOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

func (o *globalOptions) client() *client { return newClient(o.server, o.timeout) }

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree writing to out.
func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "dbfleetctl",
		Short: "Inspect fleet health and manage alarm silences on a dbfleet server",
		Long: `dbfleetctl talks to the REST API of a running dbfleet server.

Examples:
  dbfleetctl snapshot
  dbfleetctl snapshot --engine mongodb
  dbfleetctl silence mongodb/rs0/mongo-1 --for 2h
  dbfleetctl unsilence mongodb/rs0/mongo-1
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	server := os.Getenv("DBFLEET_SERVER")
	if server == "" {
		server = defaultServer
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", server, "dbfleet server base URL (env DBFLEET_SERVER)")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	flags.BoolVar(&opts.json, "json", false, "print raw JSON instead of a table")

	root.AddCommand(
		newHealthCmd(opts),
		newSnapshotCmd(opts),
		newSourcesCmd(opts),
		newAlarmsCmd(opts),
		newSilenceCmd(opts),
		newUnsilenceCmd(opts),
	)
	return root
}
