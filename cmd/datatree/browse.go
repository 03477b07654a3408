package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"datatree/internal/core"
)

const valuePreview = 3

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func newLsCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List the items under a collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			ctx := cmd.Context()
			if len(args) == 1 {
				if err := navigate(ctx, s.cursor, args[0]); err != nil {
					return err
				}
			}
			items, err := s.cursor.Items(ctx)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "ID", "LABEL", "KIND", "DIALECT")
			for item := range items.All() {
				dialect := ""
				if ds, ok := item.(*core.Dataset); ok {
					dialect = ds.Dialect()
				}
				table.Append([]string{item.ID(), item.Label(), string(item.Kind()), dialect})
			}
			table.Render()
			return nil
		},
	}
}

func newTreeCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the item tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			ctx := cmd.Context()
			if len(args) == 1 {
				if err := navigate(ctx, s.cursor, args[0]); err != nil {
					return err
				}
			}
			coll, ok := s.cursor.Current().(*core.Collection)
			if !ok {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), s.cursor.Current().ID())
				return err
			}
			return printTree(ctx, cmd.OutOrStdout(), coll, 0)
		},
	}
}

func printTree(ctx context.Context, out io.Writer, coll *core.Collection, depth int) error {
	children, err := coll.Children(ctx)
	if err != nil {
		return err
	}
	for item := range children.All() {
		line := strings.Repeat("  ", depth) + item.ID()
		if item.Label() != item.ID() {
			line += "  " + item.Label()
		}
		if item.Kind() == core.KindCollection {
			line += "/"
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
		if sub, ok := item.(*core.Collection); ok {
			if err := printTree(ctx, out, sub, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func newDimsCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "dims <path>",
		Short: "Describe the dimensions of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			ctx := cmd.Context()
			if err := navigate(ctx, s.cursor, args[0]); err != nil {
				return err
			}
			ds, err := currentDataset(s.cursor)
			if err != nil {
				return err
			}
			dims, err := ds.Dimensions(ctx)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "ID", "LABEL", "DATATYPE", "VALUES")
			for dim := range dims.All() {
				values, err := dim.AllowedValues(ctx)
				if err != nil {
					return err
				}
				table.Append([]string{dim.ID(), dim.Label(), dim.Datatype().String(), describeValues(values)})
			}
			table.Render()
			return nil
		},
	}
}

// describeValues renders a count and the first few value ids.
func describeValues(values *core.AllowedValues) string {
	if values.Len() == 0 {
		return "-"
	}
	var ids []string
	for v := range values.All() {
		if len(ids) == valuePreview {
			ids = append(ids, "...")
			break
		}
		ids = append(ids, v.ID())
	}
	return fmt.Sprintf("%s (%s)", humanize.Comma(int64(values.Len())), strings.Join(ids, ", "))
}
