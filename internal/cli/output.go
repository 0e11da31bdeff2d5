package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"sigs.k8s.io/yaml"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// printer writes command results in the selected output format. Tables are
// built from header and rows; json and yaml encode the value itself.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (printer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = formatTable
	case formatTable, formatJSON, formatYAML:
	default:
		return printer{}, fmt.Errorf("invalid output format: %s", format)
	}
	return printer{w: w, format: format}, nil
}

func (p printer) print(v any, header table.Row, rows []table.Row) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = p.w.Write(data)
		return err
	default:
		t := table.NewWriter()
		t.SetOutputMirror(p.w)
		t.AppendHeader(header)
		t.AppendRows(rows)
		style := table.StyleLight
		style.Options.DrawBorder = false
		t.SetStyle(style)
		t.Render()
		return nil
	}
}

// message prints a single line for table output and a keyed document for
// json and yaml.
func (p printer) message(key, value string) error {
	if p.format == formatTable {
		_, err := fmt.Fprintln(p.w, value)
		return err
	}
	return p.print(map[string]string{key: value}, nil, nil)
}
