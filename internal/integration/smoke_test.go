package integration

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"datatree/internal/blob"
	"datatree/internal/core"
	"datatree/internal/sources/blobtree"
	"datatree/internal/sources/catalog"
	"datatree/internal/sources/sqlcatalog"
	"datatree/internal/sources/static"
)

const fixture = "../sources/catalog/testdata/municipalities.yaml"

// TestSourcesAgree serves one catalog document through every source driver
// and expects the same datasets and translated rows from each.
func TestSourcesAgree(t *testing.T) {
	ctx := context.Background()
	doc, err := catalog.DecodeFile(fixture)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	published := func(store blob.Store) func(t *testing.T) core.Source {
		return func(t *testing.T) core.Source {
			if _, err := blobtree.Publish(ctx, store, "stats", doc); err != nil {
				t.Fatalf("publish: %v", err)
			}
			src, err := blobtree.New(ctx, store, "stats")
			if err != nil {
				t.Fatalf("blob tree: %v", err)
			}
			return src
		}
	}
	variants := []struct {
		name string
		open func(t *testing.T) core.Source
	}{
		{"static", func(t *testing.T) core.Source {
			src, err := static.New(doc)
			if err != nil {
				t.Fatalf("static: %v", err)
			}
			return src
		}},
		{"blob-memory", published(blob.NewMemory())},
		{"blob-mock-s3", published(blob.NewMockS3ForTests("catalogs"))},
		{"blob-filesystem", func(t *testing.T) core.Source {
			store, err := blob.NewFilesystem(t.TempDir())
			if err != nil {
				t.Fatalf("fs store: %v", err)
			}
			return published(store)(t)
		}},
		{"sqlite", func(t *testing.T) core.Source {
			src, err := sqlcatalog.Open(ctx, sqlcatalog.DriverSQLite, filepath.Join(t.TempDir(), "catalog.db"))
			if err != nil {
				t.Fatalf("sqlite: %v", err)
			}
			t.Cleanup(func() { _ = src.Close() })
			if err := src.Import(ctx, doc); err != nil {
				t.Fatalf("import: %v", err)
			}
			return src
		}},
	}

	var want string
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			metrics := core.NewExpvarMetricsRecorder("")
			var trace bytes.Buffer
			c, err := core.New(v.open(t), core.WithMetrics(metrics), core.WithTracer(core.NewJSONTracer(&trace)))
			if err != nil {
				t.Fatalf("cursor: %v", err)
			}
			got := snapshot(ctx, t, c)
			if want == "" {
				want = got
			} else if got != want {
				t.Fatalf("%s disagrees with static:\n%s\nwant:\n%s", v.name, got, want)
			}
			snap := metrics.Snapshot()
			if snap.Results[core.OpRows]["success"] != 3 || snap.Results[core.OpChildren]["error"] != 0 {
				t.Fatalf("unexpected metrics %+v", snap.Results)
			}
			if !strings.Contains(trace.String(), `"operation":"rows"`) {
				t.Fatalf("rows not traced:\n%s", trace.String())
			}
		})
	}
}

// snapshot renders every dataset path with its rows in the scb dialect,
// sorted by path.
func snapshot(ctx context.Context, t *testing.T, c *core.Cursor) string {
	t.Helper()
	var lines []string
	for ds, err := range c.Descendants(ctx) {
		if err != nil {
			t.Fatalf("descendants: %v", err)
		}
		if err := c.MoveToItem(ctx, ds); err != nil {
			t.Fatalf("move to %s: %v", ds.ID(), err)
		}
		rs, err := ds.Fetch(ctx, nil)
		if err != nil {
			t.Fatalf("fetch %s: %v", ds.ID(), err)
		}
		lines = append(lines, fmt.Sprintf("%s %s %v", path(ds), rs.Dialect(), rs.Translate("scb").Rows()))
	}
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}

func path(item core.Item) string {
	ids := []string{item.ID()}
	for parent, err := item.Parent(); err == nil && !parent.IsRoot(); parent, err = parent.Parent() {
		ids = append([]string{parent.ID()}, ids...)
	}
	return strings.Join(ids, "/")
}
