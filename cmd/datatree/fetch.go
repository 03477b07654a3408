package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"datatree/internal/core"
	"datatree/internal/export"
)

const formatTable = "table"

type fetchOpts struct {
	query     []string
	translate string
	format    string
}

func newFetchCmd(opts *rootOpts) *cobra.Command {
	fo := &fetchOpts{}
	cmd := &cobra.Command{
		Use:   "fetch <path>",
		Short: "Fetch the results of a dataset",
		Long: `Fetch the results of a dataset.

Each --query is dimension=value. Commas list several values and repeating a
dimension adds to its list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(fo.query)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			ctx := cmd.Context()
			if err := navigate(ctx, s.cursor, args[0]); err != nil {
				return err
			}
			rs, err := s.cursor.Fetch(ctx, q)
			if err != nil {
				return err
			}
			if fo.translate != "" {
				rs = rs.Translate(fo.translate)
			}
			if fo.format != formatTable {
				f, err := export.ParseFormat(fo.format)
				if err != nil {
					return err
				}
				return export.Encode(cmd.OutOrStdout(), rs, f)
			}
			renderResults(cmd, rs, fo.translate == "")
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&fo.query, "query", "q", nil, "filter as dimension=value[,value...]")
	cmd.Flags().StringVar(&fo.translate, "translate", "", "translate dimension values into this dialect")
	cmd.Flags().StringVarP(&fo.format, "output", "o", formatTable, "output format: table, csv or json")
	return cmd
}

func parseQuery(args []string) (core.Query, error) {
	if len(args) == 0 {
		return nil, nil
	}
	q := core.Query{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query %q, want dimension=value", arg)
		}
		values, _ := q[key].([]any)
		for _, v := range strings.Split(raw, ",") {
			values = append(values, strings.TrimSpace(v))
		}
		q[key] = values
	}
	for key, v := range q {
		if values := v.([]any); len(values) == 1 {
			q[key] = values[0]
		}
	}
	return q, nil
}

// renderResults prints one row per result with a column per dimension in
// order of first appearance. Labels are shown unless raw values are asked
// for, which a translation implies.
func renderResults(cmd *cobra.Command, rs *core.ResultSet, labels bool) {
	columns := export.Columns(rs)
	header := append(append([]string{}, columns...), "VALUE")
	table := newTable(cmd.OutOrStdout(), header...)
	for r := range rs.All() {
		row := make([]string, 0, len(header))
		for _, id := range columns {
			cell := ""
			if v, err := r.Get(id); err == nil {
				cell = v.ID()
				if labels {
					cell = v.Label()
				}
			}
			row = append(row, cell)
		}
		row = append(row, fmt.Sprint(r.Value()))
		table.Append(row)
	}
	table.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "%s results\n", humanize.Comma(int64(rs.Len())))
}
