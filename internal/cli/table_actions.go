package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/export"
	"github.com/Annany2002/odkx-manager/internal/session"
)

// ErrNotConfirmed is returned when a destructive command was not confirmed.
var ErrNotConfirmed = errors.New("not confirmed")

func newExportCmd(rt *runtime) *cobra.Command {
	var all bool
	var dir string
	cmd := &cobra.Command{
		Use:   "export [table-id]",
		Short: "Export a table as CSV, or every table as a ZIP of CSV files",
		Example: fmt.Sprintf(`
	# Export one table to ./census_<date>.csv
	%[1]s export census

	# Export all tables of the app to ./exports/export_<date>.zip
	%[1]s export --all --dir exports`, CLIName),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass either a table id or --all")
			}
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}

			now := rt.now()
			var path string
			var buf bytes.Buffer
			if all {
				tables, err := m.AllTableRows(cmd.Context())
				if err != nil {
					return err
				}
				exports := make([]export.Table, 0, len(tables))
				for _, t := range tables {
					exports = append(exports, export.Table{TableID: t.TableID, Rows: t.Rows})
				}
				if err := export.WriteZIP(&buf, exports); err != nil {
					return err
				}
				path = filepath.Join(dir, export.ArchiveFileName(now))
			} else {
				if _, err := rt.selectTable(cmd.Context(), m, args[0]); err != nil {
					return err
				}
				if err := export.WriteCSV(&buf, m.Rows.Get()); err != nil {
					return err
				}
				path = filepath.Join(dir, export.TableFileName(args[0], now))
			}

			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create export directory: %w", err)
			}
			if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "export every table of the app")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write the export to")
	return cmd
}

// defaultBackupID names a backup after its source and the date. Table ids only allow
// letters, digits and underscores.
func defaultBackupID(rt *runtime, tableID string) string {
	return tableID + "_" + strings.ReplaceAll(export.DateSuffix(rt.now()), "-", "_")
}

func newBackupCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <table-id> [backup-table-id]",
		Short: "Copy a table's definition and rows into a new table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := rt.selectTable(cmd.Context(), m, args[0]); err != nil {
				return err
			}
			backupID := defaultBackupID(rt, args[0])
			if len(args) == 2 {
				backupID = args[1]
			}

			result, err := m.BackupCurrentTable(cmd.Context(), backupID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %s to %s\n", args[0], backupID)
			return writeOutcomes(cmd.OutOrStdout(), result)
		},
	}
}

func newDeleteCmd(rt *runtime) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <table-id>",
		Short: "Delete a table from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := rt.selectTable(cmd.Context(), m, args[0]); err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
					fmt.Sprintf("Delete table %s? This action will permanently delete the table and cannot be undone.", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("delete %s: %w", args[0], ErrNotConfirmed)
				}
			}
			if err := m.DeleteCurrentTable(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question. Input that is a file but not a terminal is never read.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	if f, ok := in.(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false, fmt.Errorf("%w: stdin is not a terminal, pass --yes", ErrNotConfirmed)
	}
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func newUpdateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "update <table-id> <rows.json|->",
		Short: "Submit edited rows of a table",
		Long: `Submit edited rows of a table in one batch.

The file holds a JSON array of rows as printed by "rows -o json". Rows keep their _id and
_row_etag; set _deleted to true to delete a row; rows with a new _id are inserted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readRows(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := rt.selectTable(cmd.Context(), m, args[0]); err != nil {
				return err
			}
			result, err := m.UpdateRows(cmd.Context(), rows)
			if err != nil {
				return err
			}
			return writeOutcomes(cmd.OutOrStdout(), result)
		},
	}
}

func readRows(stdin io.Reader, name string) ([]*codec.DisplayRow, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	var rows []*codec.DisplayRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}
	for i, row := range rows {
		if row == nil || row.ID() == "" {
			return nil, fmt.Errorf("row %d has no %s", i, codec.KeyID)
		}
	}
	return rows, nil
}

// writeOutcomes prints the outcome counts, then the rows that did not succeed.
func writeOutcomes(w io.Writer, result *session.UpdateResult) error {
	counts := result.Counts()
	parts := make([]string, 0, len(domain.Outcomes))
	for _, o := range domain.Outcomes {
		parts = append(parts, fmt.Sprintf("%s=%d", o, counts[o]))
	}
	fmt.Fprintf(w, "Rows: %s\n", strings.Join(parts, " "))

	if counts[domain.OutcomeSuccess] == len(result.Outcomes) {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tOUTCOME")
	for _, o := range result.Outcomes {
		if o.Outcome != domain.OutcomeSuccess {
			fmt.Fprintf(tw, "%s\t%s\n", o.ID, o.Outcome)
		}
	}
	return tw.Flush()
}
