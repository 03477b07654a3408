package catalog

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"

	"datatree/internal/core"
	"datatree/internal/datatype"
)

// Item converts n into a core item carrying n as its blob. defaultDialect
// applies to datasets without a dialect of their own.
func (n *Node) Item(defaultDialect string) core.Item {
	opts := []core.ItemOption{core.WithLabel(n.Label), core.WithBlob(n)}
	if !n.IsDataset() {
		return core.NewCollection(n.ID, opts...)
	}
	dialect := n.Dialect
	if dialect == "" {
		dialect = defaultDialect
	}
	if dialect != "" {
		opts = append(opts, core.WithItemDialect(dialect))
	}
	return core.NewDataset(n.ID, opts...)
}

// Dimension converts s, resolving its datatype in reg.
func (s DimensionSpec) Dimension(reg *datatype.Registry) (*core.Dimension, error) {
	var opts []core.DimensionOption
	if s.Label != "" {
		opts = append(opts, core.WithDimensionLabel(s.Label))
	}
	if s.Datatype != "" {
		dt, err := reg.Lookup(s.Datatype)
		if err != nil {
			return nil, fmt.Errorf("%w: dimension %s: %w", core.ErrInvalidData, s.ID, err)
		}
		opts = append(opts, core.WithDatatype(dt))
	}
	if len(s.Values) > 0 {
		values := make([]any, len(s.Values))
		for i, v := range s.Values {
			values[i] = core.NewDimensionValue(v.ID, nil, core.WithValueLabel(v.Label))
		}
		opts = append(opts, core.WithAllowedValues(values...))
	}
	return core.NewDimension(s.ID, opts...), nil
}

// CoreDimensions converts every dimension of n.
func (n *Node) CoreDimensions(reg *datatype.Registry) ([]*core.Dimension, error) {
	out := make([]*core.Dimension, 0, len(n.Dimensions))
	for _, spec := range n.Dimensions {
		dim, err := spec.Dimension(reg)
		if err != nil {
			return nil, err
		}
		out = append(out, dim)
	}
	return out, nil
}

// Datatypes maps every declared dimension id of n to its datatype, nil when
// the dimension has none or the datatype is unknown.
func (n *Node) Datatypes(reg *datatype.Registry) map[string]*datatype.Datatype {
	return DimensionTypes(n.Dimensions, reg)
}

// DimensionTypes is Node.Datatypes for a bare list of specs.
func DimensionTypes(specs []DimensionSpec, reg *datatype.Registry) map[string]*datatype.Datatype {
	out := make(map[string]*datatype.Datatype, len(specs))
	for _, spec := range specs {
		var dt *datatype.Datatype
		if spec.Datatype != "" && reg != nil {
			dt, _ = reg.Lookup(spec.Datatype)
		}
		out[spec.ID] = dt
	}
	return out
}

// Results returns the rows of n matching q as unbound results.
func (n *Node) Results(q core.Query, reg *datatype.Registry) []*core.Result {
	return Filter(n.Rows, q, n.Datatypes(reg))
}

// Filter keeps the rows matching q. dims holds the declared dimensions.
func Filter(rows []Row, q core.Query, dims map[string]*datatype.Datatype) []*core.Result {
	out := make([]*core.Result, 0, len(rows))
	for _, row := range rows {
		if Match(row.Tags, q, dims) {
			out = append(out, core.NewResult(row.Value, row.Tags))
		}
	}
	return out
}

// Match reports whether tags satisfy q. Only query keys naming a declared
// dimension take part; a list matches any of its members. Values are
// compared by the datatype id when the dimension's datatype knows them, so a
// label selects the same rows as its id.
func Match(tags map[string]any, q core.Query, dims map[string]*datatype.Datatype) bool {
	for key := range q {
		dt, declared := dims[key]
		if !declared {
			continue
		}
		want := q.Values(key)
		if len(want) == 0 {
			continue
		}
		tag, ok := tags[key]
		if !ok {
			return false
		}
		got := canonical(dt, tag)
		if !slices.ContainsFunc(want, func(w any) bool { return canonical(dt, w) == got }) {
			return false
		}
	}
	return true
}

func canonical(dt *datatype.Datatype, v any) string {
	s := fmt.Sprint(v)
	if known, ok := dt.Value(s); ok {
		return known.ID
	}
	return s
}

// Observed returns the distinct values rows carry for dimension id, ordered
// by their string form.
func Observed(rows []Row, id string) []any {
	seen := make(map[string]any)
	for _, row := range rows {
		if v, ok := row.Tags[id]; ok {
			key := fmt.Sprint(v)
			if _, dup := seen[key]; !dup {
				seen[key] = v
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

// Stream yields items, stopping with ctx.Err() once ctx is done.
func Stream[T any](ctx context.Context, items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// PathOf returns the ancestor id path of item from the top level down,
// including item itself. The root has an empty path.
func PathOf(item core.Item) ([]string, error) {
	if c, ok := item.(*core.Collection); ok && c.IsRoot() {
		return nil, nil
	}
	var path []string
	for cur := item; ; {
		parent, err := cur.Parent()
		if err != nil {
			return nil, err
		}
		path = append(path, cur.ID())
		if parent.IsRoot() {
			break
		}
		cur = parent
	}
	slices.Reverse(path)
	return path, nil
}
