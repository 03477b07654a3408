package sqlcatalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"datatree/internal/core"
	"datatree/internal/sources/catalog"
)

func fixture(t *testing.T) *catalog.Document {
	t.Helper()
	doc, err := catalog.DecodeFile("../catalog/testdata/municipalities.yaml")
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return doc
}

func openSQLite(t *testing.T, path string) *Source {
	t.Helper()
	src, err := Open(context.Background(), DriverSQLite, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func imported(t *testing.T) (*Source, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	src := openSQLite(t, path)
	if err := src.Import(context.Background(), fixture(t)); err != nil {
		t.Fatalf("import: %v", err)
	}
	return src, path
}

func walk(t *testing.T, c *core.Cursor, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := c.MoveTo(context.Background(), id); err != nil {
			t.Fatalf("move to %s: %v", id, err)
		}
	}
}

func TestImportedTree(t *testing.T) {
	ctx := context.Background()
	src, _ := imported(t)
	c, err := core.New(src)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	top, err := c.Items(ctx)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	var ids []string
	for item := range top.All() {
		ids = append(ids, item.ID()+":"+string(item.Kind()))
	}
	if got := strings.Join(ids, ","); got != "population:collection,housing:collection,summary:dataset" {
		t.Fatalf("document order lost: %s", got)
	}
	walk(t, c, "population", "by_gender")
	rs, err := c.Fetch(ctx, core.Query{"gender": []any{"Women"}, "year": 2017})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rs.Len() != 2 || rs.Dialect() != "scb" {
		t.Fatalf("unexpected results %v (dialect %q)", rs, rs.Dialect())
	}
	r, _ := rs.At(1)
	if r.Value() != 3400 {
		t.Fatalf("stored integers must come back as ints, got %T %v", r.Value(), r.Value())
	}
	row := rs.Translate("scb").Rows()[1]
	if row["municipality"] != "2409" || row["gender"] != "2" || row["year"] != 2017 {
		t.Fatalf("unexpected translated row %v", row)
	}
	ds := c.Current().(*core.Dataset)
	dims, _ := ds.Dimensions(ctx)
	year, _ := dims.Get("year")
	years, err := year.AllowedValues(ctx)
	if err != nil || years.Len() != 1 || !years.Contains("2017") {
		t.Fatalf("observed years: %v", err)
	}
}

func TestStoredDatatypesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	first, path := imported(t)
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	src := openSQLite(t, path)
	c, _ := core.New(src)
	walk(t, c, "population", "by_county")
	rs, err := c.Fetch(ctx, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	r, _ := rs.At(0)
	county, _ := r.Get("county")
	if code, ok := county.Translate("scb"); !ok || code != "24" {
		t.Fatalf("stored datatype not reloaded: %q %v", code, ok)
	}
	size, _ := r.Get("size")
	if size.Label() != "Large" {
		t.Fatalf("declared value label lost, got %q", size.Label())
	}
	if rs.Dialect() != "plain" {
		t.Fatalf("dataset dialect lost, got %q", rs.Dialect())
	}
}

func TestImportReplacesCatalog(t *testing.T) {
	ctx := context.Background()
	src, _ := imported(t)
	small := &catalog.Document{Nodes: []*catalog.Node{{ID: "only", Rows: []catalog.Row{{Value: 1.5}}}}}
	if err := src.Import(ctx, small); err != nil {
		t.Fatalf("second import: %v", err)
	}
	c, _ := core.New(src)
	top, err := c.Items(ctx)
	if err != nil || top.Len() != 1 {
		t.Fatalf("old catalog not replaced: %v", err)
	}
	walk(t, c, "only")
	rs, err := c.Fetch(ctx, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r, _ := rs.At(0); r.Value() != 1.5 {
		t.Fatalf("float value lost, got %v", r.Value())
	}
	if rs.Dialect() != "" {
		t.Fatalf("document dialect must be replaced too, got %q", rs.Dialect())
	}

	bad := &catalog.Document{Nodes: []*catalog.Node{{ID: "x"}, {ID: "x"}}}
	if err := src.Import(ctx, bad); !errors.Is(err, catalog.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
	fresh, _ := core.New(src)
	if top, _ := fresh.Items(ctx); top.Len() != 1 {
		t.Fatalf("rejected import must leave the catalog untouched")
	}
}

func TestStoredPaths(t *testing.T) {
	ctx := context.Background()
	src, _ := imported(t)
	ds := core.NewDataset("by_gender")
	c, _ := core.New(src)
	walk(t, c, "population")
	items, _ := c.Items(ctx)
	attached, _ := items.Get("by_gender")
	if attached.Blob() != "population/by_gender" {
		t.Fatalf("unexpected stored path %v", attached.Blob())
	}
	if path, err := itemPath(ds); err == nil || path != "" {
		t.Fatalf("detached dataset must not resolve, got %q", path)
	}
}

func TestOpenDrivers(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "dsn"); err == nil {
		t.Fatalf("unknown driver accepted")
	}
	var gotDriver string
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = func(driverName, dsn string) (*sql.DB, error) {
		gotDriver = driverName
		return nil, errors.New("no server")
	}
	openMu.Unlock()
	t.Cleanup(func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	})
	if _, err := Open(context.Background(), DriverPostgres, "postgres://localhost/datatree"); err == nil {
		t.Fatalf("expected open failure")
	}
	if gotDriver != "pgx" {
		t.Fatalf("postgres must use the pgx driver, got %q", gotDriver)
	}
}

func TestRebind(t *testing.T) {
	pg := &Source{driver: DriverPostgres}
	if got := pg.rebind(`SELECT a FROM t WHERE b = ? AND c = ?`); got != `SELECT a FROM t WHERE b = $1 AND c = $2` {
		t.Fatalf("unexpected rebind %s", got)
	}
	lite := &Source{driver: DriverSQLite}
	if got := lite.rebind(`x = ?`); got != `x = ?` {
		t.Fatalf("sqlite placeholders must stay, got %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	v, err := decodeJSON(`{"a":1,"b":[2,2.5],"c":"x"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := v.(map[string]any)
	if m["a"] != 1 || m["b"].([]any)[1] != 2.5 || m["c"] != "x" {
		t.Fatalf("unexpected decode %v", m)
	}
	if _, err := decodeJSON(`{`); err == nil {
		t.Fatalf("expected decode error")
	}
}
