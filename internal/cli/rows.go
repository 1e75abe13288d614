package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Annany2002/odkx-manager/internal/codec"
	"github.com/Annany2002/odkx-manager/internal/export"
)

// Output formats of the rows command.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
	OutputCSV  = "csv"
)

func newRowsCmd(rt *runtime) *cobra.Command {
	var output string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "rows <table-id>",
		Short: "Print every row of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := rt.selectTable(cmd.Context(), m, args[0]); err != nil {
				return err
			}
			if refresh {
				if err := m.RefreshActiveTable(cmd.Context()); err != nil {
					return err
				}
			}
			return writeRows(cmd.OutOrStdout(), output, m.Rows.Get())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", OutputJSON, "output format: json, yaml or csv")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the table cache")
	return cmd
}

func writeRows(w io.Writer, format string, rows []*codec.DisplayRow) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case OutputYAML:
		doc, err := rowsNode(rows)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case OutputCSV:
		return export.WriteCSV(w, rows)
	}
	return fmt.Errorf("unknown output format '%s'", format)
}

// rowsNode builds a YAML sequence whose mappings keep the column order of each row.
func rowsNode(rows []*codec.DisplayRow) (*yaml.Node, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, row := range rows {
		mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, key := range row.Keys() {
			v, _ := row.Get(key)
			if n, ok := v.(json.Number); ok {
				v = numberValue(n)
			}
			value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
			if v == nil {
				mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
				continue
			}
			if err := value.Encode(v); err != nil {
				return nil, fmt.Errorf("row %s column %s: %w", row.ID(), key, err)
			}
			mapping.Content = append(mapping.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
				value,
			)
		}
		seq.Content = append(seq.Content, mapping)
	}
	return seq, nil
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
