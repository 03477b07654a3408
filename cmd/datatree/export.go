package main

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"datatree/internal/blob"
	"datatree/internal/core"
	"datatree/internal/export"
)

type exportOpts struct {
	query     []string
	translate string
	formats   []string
}

func newExportCmd(opts *rootOpts) *cobra.Command {
	eo := &exportOpts{}
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Store the results of a dataset, or of every dataset below a collection, in the export blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(eo.query)
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
			names := eo.formats
			if len(names) == 0 {
				names = s.cfg.Export.Formats
			}
			formats := make([]export.Format, 0, len(names))
			for _, name := range names {
				f, err := export.ParseFormat(name)
				if err != nil {
					return err
				}
				formats = append(formats, f)
			}
			targets, err := exportTargets(ctx, s.cursor)
			if err != nil {
				return err
			}
			store, err := blob.Open(ctx, s.cfg.Export.Blob.BlobConfig())
			if err != nil {
				return err
			}
			w := export.NewWorker(store,
				export.WithPrefix(s.cfg.Export.Blob.Prefix),
				export.WithLogger(s.logger),
				export.WithQueueSize(len(targets)),
			)
			w.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = w.Stop(stopCtx)
			}()
			var ids []string
			for _, ds := range targets {
				record, err := w.Enqueue(ctx, export.Request{Dataset: ds, Cursor: s.cursor, Query: q, Dialect: eo.translate, Formats: formats})
				if err != nil {
					return err
				}
				ids = append(ids, record.ID)
			}
			table := newTable(cmd.OutOrStdout(), "DATASET", "STATUS", "KEY", "ROWS", "SIZE")
			var failed int
			for _, id := range ids {
				record, err := w.Wait(ctx, id)
				if err != nil {
					return err
				}
				if record.Status != export.StatusSucceeded {
					failed++
					table.Append([]string{record.Dataset, string(record.Status), record.Error, "", ""})
					continue
				}
				for _, a := range record.Artifacts {
					table.Append([]string{record.Dataset, string(record.Status), a.Key, humanize.Comma(int64(a.Rows)), humanize.Bytes(uint64(a.Size))})
				}
			}
			table.Render()
			if failed > 0 {
				return &exportError{failed: failed, total: len(ids)}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&eo.query, "query", "q", nil, "filter as dimension=value[,value...]")
	cmd.Flags().StringVar(&eo.translate, "translate", "", "translate dimension values into this dialect")
	cmd.Flags().StringSliceVarP(&eo.formats, "format", "f", nil, "artifact formats (default from export.formats)")
	return cmd
}

// exportTargets is the current dataset, or every dataset below the current
// collection.
func exportTargets(ctx context.Context, c *core.Cursor) ([]*core.Dataset, error) {
	if ds, ok := c.Current().(*core.Dataset); ok {
		return []*core.Dataset{ds}, nil
	}
	var targets []*core.Dataset
	for ds, err := range c.Descendants(ctx) {
		if err != nil {
			return nil, err
		}
		targets = append(targets, ds)
	}
	return targets, nil
}

type exportError struct {
	failed, total int
}

func (e *exportError) Error() string {
	return humanize.Comma(int64(e.failed)) + " of " + humanize.Comma(int64(e.total)) + " exports failed"
}
