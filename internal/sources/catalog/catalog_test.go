package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"datatree/internal/core"
	"datatree/internal/datatype"
)

func loadFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := DecodeFile("testdata/municipalities.yaml")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func TestDecodeFixture(t *testing.T) {
	doc := loadFixture(t)
	if doc.Dialect != "scb" || len(doc.Nodes) != 3 || len(doc.Datatypes) != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
	byGender, err := doc.Find([]string{"population", "by_gender"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !byGender.IsDataset() || len(byGender.Rows) != 4 || len(byGender.Dimensions) != 3 {
		t.Fatalf("unexpected dataset %+v", byGender)
	}
	housing, _ := doc.Find([]string{"housing"})
	if housing.IsDataset() {
		t.Fatalf("explicit collection kind ignored")
	}
	size, _ := doc.Find([]string{"population", "by_county"})
	values := size.Dimensions[1].Values
	if len(values) != 2 || values[0].ID != "small" || values[1].Label != "Large" {
		t.Fatalf("scalar and mapping values not both accepted: %+v", values)
	}
	if _, err := doc.Find([]string{"population", "missing"}); err == nil {
		t.Fatalf("expected missing node error")
	}
}

func TestDecodeJSON(t *testing.T) {
	doc, err := Decode(strings.NewReader(`{"nodes":[{"id":"a","rows":[{"value":1,"tags":{"x":"y"}}]}]}`))
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if !doc.Nodes[0].IsDataset() || doc.Nodes[0].Rows[0].Tags["x"] != "y" {
		t.Fatalf("unexpected json document %+v", doc.Nodes[0])
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	doc := &Document{Nodes: []*Node{
		{ID: "a"},
		{ID: "a"},
		{ID: "b/c"},
		{ID: "d", Kind: KindDataset, Children: []*Node{{ID: "e"}}},
		{ID: "f", Kind: "folder"},
		{ID: "g", Kind: KindCollection, Rows: []Row{{Value: 1}}},
		{ID: "h", Dimensions: []DimensionSpec{{ID: "x"}, {ID: "x"}, {}}},
		{},
	}}
	err := doc.Validate()
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
	for _, want := range []string{"duplicate id", "contains a slash", "dataset has children", "unknown kind", "collection declares", "duplicate dimension", "dimension 2 has no id", "node 7 has no id"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestWalkVisitsDepthFirst(t *testing.T) {
	doc := loadFixture(t)
	var seen []string
	err := doc.Walk(func(path []string, n *Node) error {
		seen = append(seen, strings.Join(path, "/"))
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := "population,population/by_gender,population/by_county,housing,summary"
	if got := strings.Join(seen, ","); got != want {
		t.Fatalf("walk order %s, want %s", got, want)
	}
	stop := errors.New("stop")
	if err := doc.Walk(func([]string, *Node) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("walk must stop on error, got %v", err)
	}
}

func TestRegistryLayersDocumentDatatypes(t *testing.T) {
	doc := loadFixture(t)
	reg, err := doc.Registry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if _, err := reg.Lookup("county"); err != nil {
		t.Fatalf("document datatype missing: %v", err)
	}
	if _, err := reg.Lookup("gender"); err != nil {
		t.Fatalf("builtin datatype missing: %v", err)
	}
	if _, err := datatype.Default().Lookup("county"); err == nil {
		t.Fatalf("document datatype leaked into the builtin registry")
	}
	plain := &Document{}
	if same, _ := plain.Registry(datatype.Default()); same != datatype.Default() {
		t.Fatalf("expected the base registry back")
	}
}

func TestDimensionConversion(t *testing.T) {
	ctx := context.Background()
	spec := DimensionSpec{ID: "size", Label: "Size", Values: []ValueSpec{{ID: "small"}, {ID: "large", Label: "Large"}}}
	dim, err := spec.Dimension(datatype.Default())
	if err != nil {
		t.Fatalf("dimension: %v", err)
	}
	values, err := dim.AllowedValues(ctx)
	if err != nil {
		t.Fatalf("allowed values: %v", err)
	}
	large, err := values.Get("Large")
	if err != nil || large.ID() != "large" || large.DimensionID() != "size" {
		t.Fatalf("labelled value: %v %v", large, err)
	}
	if dim.Label() != "Size" {
		t.Fatalf("label lost")
	}
	_, err = DimensionSpec{ID: "x", Datatype: "nope"}.Dimension(datatype.Default())
	if !errors.Is(err, core.ErrInvalidData) || !errors.Is(err, datatype.ErrUnknownDatatype) {
		t.Fatalf("expected unknown datatype error, got %v", err)
	}
}

func TestMatch(t *testing.T) {
	gender, _ := datatype.Lookup("gender")
	dims := map[string]*datatype.Datatype{"gender": gender, "year": nil}
	tags := map[string]any{"gender": "female", "year": 2017}
	cases := []struct {
		name string
		q    core.Query
		want bool
	}{
		{"empty", nil, true},
		{"id", core.Query{"gender": "female"}, true},
		{"label", core.Query{"gender": "Women"}, true},
		{"mismatch", core.Query{"gender": "male"}, false},
		{"list", core.Query{"year": []any{2016, "2017"}}, true},
		{"list miss", core.Query{"year": []string{"2016"}}, false},
		{"undeclared", core.Query{"region": "north"}, true},
		{"empty list", core.Query{"year": []any{}}, true},
	}
	for _, tc := range cases {
		if got := Match(tags, tc.q, dims); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
	if Match(map[string]any{}, core.Query{"year": 2017}, dims) {
		t.Fatalf("rows without the tag must not match")
	}
}

func TestResultsAndObserved(t *testing.T) {
	doc := loadFixture(t)
	reg, _ := doc.Registry(nil)
	ds, _ := doc.Find([]string{"population", "by_gender"})
	results := ds.Results(core.Query{"gender": "Men"}, reg)
	if len(results) != 2 || results[0].Value() != 33500 {
		t.Fatalf("unexpected results %v", results)
	}
	observed := Observed(ds.Rows, "municipality")
	if len(observed) != 2 || observed[0] != "Robertsfors kommun" {
		t.Fatalf("unexpected observed values %v", observed)
	}
	summary, _ := doc.Find([]string{"summary"})
	if years := Observed(summary.Rows, "year"); len(years) != 2 || years[0] != 2017 {
		t.Fatalf("raw values must be kept, got %v", years)
	}
}

func TestItemConversion(t *testing.T) {
	doc := loadFixture(t)
	pop, _ := doc.Find([]string{"population"})
	if item := pop.Item("scb"); item.Kind() != core.KindCollection || item.Blob() != pop {
		t.Fatalf("unexpected collection %v", item)
	}
	county, _ := doc.Find([]string{"population", "by_county"})
	ds, ok := county.Item("scb").(*core.Dataset)
	if !ok || ds.Dialect() != "plain" || ds.Label() != "Population by county" {
		t.Fatalf("dataset dialect must win over the document dialect")
	}
	summary, _ := doc.Find([]string{"summary"})
	if ds := summary.Item("scb").(*core.Dataset); ds.Dialect() != "scb" {
		t.Fatalf("document dialect not applied")
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []int
	var last error
	for v, err := range Stream(ctx, []int{1, 2, 3}) {
		if err != nil {
			last = err
			break
		}
		got = append(got, v)
		cancel()
	}
	if len(got) != 1 || !errors.Is(last, context.Canceled) {
		t.Fatalf("expected one value then cancellation, got %v %v", got, last)
	}
}
