package core

import (
	"context"
	"errors"
	"iter"
	"testing"
)

func TestFetchCachesPerQuery(t *testing.T) {
	ctx := context.Background()
	src := flatSource()
	c := newTestCursor(t, src)
	ds := datasetAt(t, c, "Dataset_2")

	first, err := ds.Fetch(ctx, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	again, err := ds.Data(ctx)
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if first != again || src.counts[OpRows] != 1 {
		t.Fatalf("expected cached rows, calls=%d", src.counts[OpRows])
	}

	q := Query{"municipality": "Umeå kommun", "date": []any{"2017-02-06"}}
	if _, err := ds.Fetch(ctx, q); err != nil {
		t.Fatalf("fetch with query: %v", err)
	}
	if src.counts[OpRows] != 2 {
		t.Fatalf("new query must reach the source, calls=%d", src.counts[OpRows])
	}
	same := Query{"date": []any{"2017-02-06"}, "municipality": "Umeå kommun"}
	if _, err := ds.Fetch(ctx, same); err != nil {
		t.Fatalf("fetch equal query: %v", err)
	}
	if _, err := ds.Data(ctx); err != nil {
		t.Fatalf("data with stored query: %v", err)
	}
	if src.counts[OpRows] != 2 {
		t.Fatalf("equal queries must share a cache entry, calls=%d", src.counts[OpRows])
	}
	if ds.data.len() != 2 {
		t.Fatalf("expected two cached queries, got %d", ds.data.len())
	}
	if got := ds.Query()["municipality"]; got != "Umeå kommun" {
		t.Fatalf("stored query not replaced: %v", ds.Query())
	}
	if src.lastQuery["municipality"] != "Umeå kommun" {
		t.Fatalf("source received %v", src.lastQuery)
	}
}

func TestFetchQueryIsCopied(t *testing.T) {
	ctx := context.Background()
	src := flatSource()
	c := newTestCursor(t, src)
	ds := datasetAt(t, c, "Dataset_1")
	q := Query{"date": "2017-08-10"}
	if _, err := ds.Fetch(ctx, q); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	q["date"] = "mutated"
	if ds.Query()["date"] != "2017-08-10" {
		t.Fatalf("caller mutation leaked into stored query")
	}
	ds.SetQuery(nil)
	if _, err := ds.Data(ctx); err != nil {
		t.Fatalf("data: %v", err)
	}
	if src.counts[OpRows] != 2 {
		t.Fatalf("cleared query must be a distinct cache key, calls=%d", src.counts[OpRows])
	}
}

func TestFetchFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	src := flatSource()
	c := newTestCursor(t, src)
	ds := datasetAt(t, c, "Dataset_1")

	src.rowErr = errors.New("upstream down")
	if _, err := ds.Fetch(ctx, nil); !errors.Is(err, src.rowErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	src.rowErr = nil
	rs, err := ds.Fetch(ctx, nil)
	if err != nil || rs.Len() != 1 {
		t.Fatalf("retry: %v", err)
	}
	if src.counts[OpRows] != 2 {
		t.Fatalf("failed fetch must not be memoized, calls=%d", src.counts[OpRows])
	}
}

type childrenOnly struct {
	UnimplementedSource
}

func (childrenOnly) Children(context.Context, *Collection) iter.Seq2[Item, error] {
	return Values[Item](NewDataset("bare"))
}

func TestFetchNotImplemented(t *testing.T) {
	ctx := context.Background()
	c := newTestCursor(t, childrenOnly{})
	ds := datasetAt(t, c, "bare")
	if _, err := ds.Fetch(ctx, nil); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if _, err := ds.Dimensions(ctx); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestFetchUnhashableQuery(t *testing.T) {
	c := newTestCursor(t, flatSource())
	ds := datasetAt(t, c, "Dataset_1")
	if _, err := ds.Fetch(context.Background(), Query{"bad": func() {}}); err == nil {
		t.Fatalf("expected hash error")
	}
}

func TestDimensionsCachedInOrder(t *testing.T) {
	ctx := context.Background()
	src := flatSource()
	c := newTestCursor(t, src)
	ds := datasetAt(t, c, "Dataset_1")
	dims, err := ds.Dimensions(ctx)
	if err != nil {
		t.Fatalf("dimensions: %v", err)
	}
	again, err := ds.Dimensions(ctx)
	if err != nil || again != dims || src.counts[OpDimensions] != 1 {
		t.Fatalf("expected cached dimensions, calls=%d", src.counts[OpDimensions])
	}
	want := []string{"date", "municipality", "gender", "region"}
	for i, id := range want {
		dim, err := dims.At(i)
		if err != nil || dim.ID() != id {
			t.Fatalf("dimension %d: %v %v", i, dim, err)
		}
		if dim.Dataset() != ds {
			t.Fatalf("dimension %s not bound to dataset", id)
		}
	}
	date, _ := dims.Get("date")
	if date.Label() != "Date" {
		t.Fatalf("unexpected label %q", date.Label())
	}
	if !dims.Contains("gender") || dims.Contains("age") {
		t.Fatalf("unexpected membership")
	}
}

func TestShape(t *testing.T) {
	ctx := context.Background()
	c := newTestCursor(t, flatSource())
	rows, cols, err := datasetAt(t, c, "Dataset_2").Shape(ctx)
	if err != nil || rows != 2 || cols != 4 {
		t.Fatalf("shape = (%d, %d) %v", rows, cols, err)
	}
	if err := c.MoveToTop(); err != nil {
		t.Fatalf("top: %v", err)
	}
	rows, cols, err = datasetAt(t, c, "Dataset_3").Shape(ctx)
	if err != nil || rows != 0 || cols != 0 {
		t.Fatalf("empty shape = (%d, %d) %v", rows, cols, err)
	}
}

func TestDialectInheritedFromCursor(t *testing.T) {
	c := newTestCursor(t, flatSource(), WithDialect("scb"))
	ds := datasetAt(t, c, "Dataset_1")
	if ds.Dialect() != "scb" || c.Dialect() != "scb" {
		t.Fatalf("expected inherited dialect, got %q", ds.Dialect())
	}
	rs, err := ds.Fetch(context.Background(), nil)
	if err != nil || rs.Dialect() != "scb" {
		t.Fatalf("result dialect %q %v", rs.Dialect(), err)
	}
	own := NewDataset("own", WithItemDialect("eurostat"))
	if own.Dialect() != "eurostat" {
		t.Fatalf("explicit dialect lost")
	}
}
