// Package export writes display rows as CSV files, one table per file or many tables zipped.
package export

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/logger"
)

var customLog = logger.NewLogger()

// Table is one named set of rows to export.
type Table struct {
	TableID string
	Rows    []*codec.DisplayRow
}

// DateSuffix formats t as yyyy-mm-dd for export file names.
func DateSuffix(t time.Time) string {
	return t.Format("2006-01-02")
}

// TableFileName is the file name of a single table export, e.g. "census_2026-10-16.csv".
func TableFileName(tableID string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", tableID, DateSuffix(t))
}

// ArchiveFileName is the file name of an all-tables export.
func ArchiveFileName(t time.Time) string {
	return fmt.Sprintf("export_%s.zip", DateSuffix(t))
}

// Header returns the union of the row keys in first-seen order.
func Header(rows []*codec.DisplayRow) []string {
	var header []string
	seen := make(map[string]struct{})
	for _, row := range rows {
		if row == nil {
			continue
		}
		for _, k := range row.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			header = append(header, k)
		}
	}
	return header
}

// WriteCSV writes rows as CSV with a header line. Missing and nil values are empty cells.
// An empty row set produces an empty file.
func WriteCSV(w io.Writer, rows []*codec.DisplayRow) error {
	header := Header(rows)
	if len(header) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(header))
	for i, row := range rows {
		if row == nil {
			continue
		}
		for j, key := range header {
			v, _ := row.Get(key)
			cell, err := formatValue(v)
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", i, key, err)
			}
			record[j] = cell
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteZIP writes one "<tableId>.csv" entry per table.
func WriteZIP(w io.Writer, tables []Table) error {
	zw := zip.NewWriter(w)
	for _, t := range tables {
		entry, err := zw.Create(t.TableID + ".csv")
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", t.TableID, err)
		}
		if err := WriteCSV(entry, t.Rows); err != nil {
			return fmt.Errorf("failed to export %s: %w", t.TableID, err)
		}
		customLog.Debugf("Export: added %s (%d rows)", t.TableID, len(t.Rows))
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case json.Number:
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int, int64, int32, uint, uint64:
		return fmt.Sprint(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
