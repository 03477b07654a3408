// Package export renders result sets as CSV or JSON and stores them as blob
// artifacts through a background worker.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"datatree/internal/core"
)

// Format names an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// Columns returns the dimension ids of rs in order of first appearance.
func Columns(rs *core.ResultSet) []string {
	var columns []string
	seen := make(map[string]bool)
	for r := range rs.All() {
		for v := range r.Dimensions().All() {
			if !seen[v.DimensionID()] {
				seen[v.DimensionID()] = true
				columns = append(columns, v.DimensionID())
			}
		}
	}
	return columns
}

type document struct {
	Dataset string           `json:"dataset"`
	Dialect string           `json:"dialect,omitempty"`
	Rows    []map[string]any `json:"rows"`
}

// Encode writes rs to w. CSV carries one column per dimension plus a value
// column; cells hold the value ids, empty where a result lacks a dimension.
func Encode(w io.Writer, rs *core.ResultSet, f Format) error {
	switch f {
	case FormatJSON:
		doc := document{Dialect: rs.Dialect(), Rows: rs.Rows()}
		if ds := rs.Dataset(); ds != nil {
			doc.Dataset = ds.ID()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		return nil
	case FormatCSV:
		writer := csv.NewWriter(w)
		columns := Columns(rs)
		if err := writer.Write(append(append([]string{}, columns...), "value")); err != nil {
			return err
		}
		for r := range rs.All() {
			record := make([]string, 0, len(columns)+1)
			for _, id := range columns {
				cell := ""
				if v, err := r.Get(id); err == nil {
					cell = v.ID()
				}
				record = append(record, cell)
			}
			record = append(record, fmt.Sprint(r.Value()))
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}
