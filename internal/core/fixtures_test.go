package core

import (
	"context"
	"iter"
	"strings"
	"testing"

	"datatree/internal/datatype"
)

// testSource serves a small fixed tree. Ids starting with "Collection" are
// collections, everything else is a dataset.
type testSource struct {
	UnimplementedSource
	tree      map[string][]string
	counts    map[string]int
	positions []string
	lastQuery Query
	rowErr    error
	extraRows map[string][]*Result
}

func flatSource() *testSource {
	return newTestSource(map[string][]string{
		RootID: {"Dataset_1", "Dataset_2", "Dataset_3"},
	})
}

func nestedSource() *testSource {
	return newTestSource(map[string][]string{
		RootID:         {"Collection_1", "Collection_2"},
		"Collection_1": {"Dataset_1"},
		"Collection_2": {"Dataset_2", "Dataset_3"},
	})
}

func newTestSource(tree map[string][]string) *testSource {
	return &testSource{tree: tree, counts: make(map[string]int)}
}

func (s *testSource) Children(_ context.Context, c *Collection) iter.Seq2[Item, error] {
	s.counts[OpChildren]++
	var items []Item
	for _, id := range s.tree[c.ID()] {
		if strings.HasPrefix(id, "Collection") {
			items = append(items, NewCollection(id))
			continue
		}
		items = append(items, NewDataset(id, WithLabel("Label of "+id)))
	}
	return Values(items...)
}

func (s *testSource) Dimensions(_ context.Context, _ *Dataset) iter.Seq2[*Dimension, error] {
	s.counts[OpDimensions]++
	gender, _ := datatype.Lookup("gender")
	municipality, _ := datatype.Lookup("municipality")
	return Values(
		NewDimension("date", WithDimensionLabel("Date")),
		NewDimension("municipality",
			WithDatatype(municipality),
			WithAllowedValues("Robertsfors kommun", "Umeå kommun")),
		NewDimension("gender", WithDatatype(gender)),
		NewDimension("region"),
	)
}

func (s *testSource) AllowedValues(_ context.Context, dim *Dimension) iter.Seq2[*DimensionValue, error] {
	s.counts[OpAllowedValues]++
	return Values(
		NewDimensionValue("north", dim, WithValueLabel("North")),
		NewDimensionValue("south", dim),
	)
}

func (s *testSource) Rows(_ context.Context, d *Dataset, q Query) iter.Seq2[*Result, error] {
	s.counts[OpRows]++
	s.lastQuery = q
	s.positions = append(s.positions, d.cursor.Current().ID())
	if s.rowErr != nil {
		return Failed[*Result](s.rowErr)
	}
	if extra, ok := s.extraRows[d.ID()]; ok {
		return Values(extra...)
	}
	switch d.ID() {
	case "Dataset_1":
		return Values(
			NewResult(127, map[string]any{"date": "2017-08-10", "municipality": "Robertsfors kommun"}),
		)
	case "Dataset_2":
		return Values(
			NewResult(12, map[string]any{"date": "2017-02-06", "municipality": "Umeå kommun"}),
			NewResult(130, map[string]any{"date": "2017-02-07", "municipality": "Robertsfors kommun"}),
		)
	}
	return Values[*Result]()
}

func newTestCursor(t *testing.T, src Source, opts ...Option) *Cursor {
	t.Helper()
	c, err := New(src, opts...)
	if err != nil {
		t.Fatalf("new cursor: %v", err)
	}
	return c
}

func datasetAt(t *testing.T, c *Cursor, id string) *Dataset {
	t.Helper()
	items, err := c.Items(context.Background())
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	item, err := items.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	ds, ok := item.(*Dataset)
	if !ok {
		t.Fatalf("%s is a %s", id, item.Kind())
	}
	return ds
}
