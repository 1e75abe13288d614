package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Annany2002/odkx-manager/internal/core"
)

func newConnectCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Log in to a server and list its apps",
		Example: fmt.Sprintf(`
	# Log in and keep the credentials for later commands
	%[1]s connect --server https://odk.example.org --user alice --password secret --remember`, CLIName),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.flags.server == "" || rt.flags.user == "" || rt.flags.password == "" {
				return fmt.Errorf("--server, --user and --password are required")
			}
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connected to %s\n", rt.flags.server)
			for _, app := range m.AppIDs.Get() {
				marker := " "
				if app == m.AppID.Get() {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, app)
			}
			if !rt.flags.remember {
				fmt.Fprintln(cmd.ErrOrStderr(), "Credentials were not remembered; pass --remember to keep them.")
			}
			return nil
		},
	}
}

func newAppsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List the app ids of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			for _, app := range m.AppIDs.Get() {
				fmt.Fprintln(cmd.OutOrStdout(), app)
			}
			return nil
		},
	}
}

func newTablesCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			tables := m.Tables.Get()
			if len(tables) == 0 {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "No tables in app %s.\n", m.AppID.Get())
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tSCHEMA ETAG\tDATA ETAG")
			for _, t := range tables {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.TableID, t.SchemaETag, displayOrDash(t.DataETag))
			}
			return tw.Flush()
		},
	}
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the remembered credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := rt.session()
			if err != nil {
				return err
			}
			if err := m.Disconnect(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return err
		},
	}
}

func newFetchLimitCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-limit [rows]",
		Short: "Show or set the number of rows requested per page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rt.session()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				limit, err := core.ParseFetchLimit(args[0])
				if err != nil {
					return err
				}
				if err := m.SetFetchLimit(cmd.Context(), limit); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strconv.Itoa(m.FetchLimit(cmd.Context())))
			return err
		},
	}
}

func displayOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
