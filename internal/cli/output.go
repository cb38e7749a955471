package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q: use table, json or yaml", format)
}

// write renders v as json or yaml, or hands off to rows for the table form.
func write(w io.Writer, format string, v any, header table.Row, rows func() []table.Row) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatTable:
		t := table.NewWriter()
		t.SetOutputMirror(w)
		// keep column names as they are in the schema
		t.Style().Format.Header = text.FormatDefault
		t.AppendHeader(header)
		t.AppendRows(rows())
		t.Render()
		return nil
	}
	return validFormat(format)
}
