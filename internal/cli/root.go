// Package cli implements the odkx command line front end.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Annany2002/odkx-manager/config"
	"github.com/Annany2002/odkx-manager/internal/credentials"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

// CLIName is the name of the binary.
const CLIName = "odkx"

// IOStreams are the standard streams of a command.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// OSStreams returns the process streams.
func OSStreams() IOStreams {
	return IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr}
}

// Options configure a CLI run.
type Options struct {
	Config  *config.Config
	Streams IOStreams
	// Store replaces the sqlite credential store when set.
	Store credentials.Store
	HTTP  transport.Doer
	Now   func() time.Time
}

// Execute runs the command line given by args.
func Execute(ctx context.Context, opts Options, args []string) error {
	rt := newRuntime(opts)
	defer rt.close()

	root := newRootCmd(rt)
	root.SetArgs(args)
	root.SetIn(rt.streams.In)
	root.SetOut(rt.streams.Out)
	root.SetErr(rt.streams.ErrOut)
	return root.ExecuteContext(ctx)
}

func newRootCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:           CLIName,
		Short:         "Browse, edit, export and back up ODK-X Tables data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&rt.flags.server, "server", rt.cfg.OdkServerURL, "ODK-X server URL")
	f.StringVar(&rt.flags.user, "user", rt.cfg.OdkUsername, "ODK-X username")
	f.StringVar(&rt.flags.password, "password", rt.cfg.OdkPassword, "ODK-X password")
	f.StringVar(&rt.flags.proxy, "proxy", rt.cfg.OdkProxyURL, "route requests through an odkx-manager proxy")
	f.BoolVar(&rt.flags.remember, "remember", false, "keep the credentials for later invocations")
	f.StringVar(&rt.flags.app, "app", "", "app id (defaults to the first app of the server)")
	f.BoolVarP(&rt.flags.verbose, "verbose", "v", false, "log progress to stderr")

	cmd.AddCommand(
		newConnectCmd(rt),
		newAppsCmd(rt),
		newTablesCmd(rt),
		newRowsCmd(rt),
		newExportCmd(rt),
		newBackupCmd(rt),
		newDeleteCmd(rt),
		newUpdateCmd(rt),
		newLogoutCmd(rt),
		newFetchLimitCmd(rt),
	)
	return cmd
}
