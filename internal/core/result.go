package core

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Result is one data point: a value plus the dimension values that tag it.
type Result struct {
	value  any
	raw    map[string]any
	values *ValueList

	resultset *ResultSet
	dataset   *Dataset
}

// NewResult returns a result tagged with raw dimension values. Each entry
// maps a dimension id to a raw value or a *DimensionValue. The map is
// copied.
func NewResult(value any, dimensions map[string]any) *Result {
	return &Result{
		value:  value,
		raw:    maps.Clone(dimensions),
		values: newValueList(),
	}
}

// Value returns the data point.
func (r *Result) Value() any { return r.value }

// RawDimensions returns a copy of the tags the result was created with.
func (r *Result) RawDimensions() map[string]any { return maps.Clone(r.raw) }

// Dimensions returns the resolved dimension values. It is empty until the
// result is appended to a ResultSet.
func (r *Result) Dimensions() *ValueList { return r.values }

// Get looks up a resolved dimension value by dimension id, index or
// identity.
func (r *Result) Get(key any) (*DimensionValue, error) {
	return r.values.Get(key)
}

// ResultSet returns the set the result belongs to, or nil.
func (r *Result) ResultSet() *ResultSet { return r.resultset }

// Dataset returns the dataset the result belongs to, or nil.
func (r *Result) Dataset() *Dataset { return r.dataset }

// String renders the value.
func (r *Result) String() string { return fmt.Sprint(r.value) }

// Row flattens the result into the value plus one entry per dimension id.
func (r *Result) Row() map[string]any {
	row := make(map[string]any, r.values.Len()+1)
	row["value"] = r.value
	for v := range r.values.All() {
		row[v.DimensionID()] = v.Value()
	}
	return row
}

// ResultSet is the ordered list of results of one fetch.
type ResultSet struct {
	dialect string
	dataset *Dataset
	results []*Result
}

func newResultSet(ds *Dataset, dialect string) *ResultSet {
	return &ResultSet{dataset: ds, dialect: dialect}
}

// Dialect returns the dialect the values are expressed in.
func (rs *ResultSet) Dialect() string { return rs.dialect }

// Dataset returns the dataset the rows were fetched from.
func (rs *ResultSet) Dataset() *Dataset { return rs.dataset }

// Len returns the number of results.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.results)
}

// At returns the result at position i.
func (rs *ResultSet) At(i int) (*Result, error) {
	if i < 0 || i >= rs.Len() {
		return nil, &LookupError{List: "results", Key: i}
	}
	return rs.results[i], nil
}

// All iterates over the results in order.
func (rs *ResultSet) All() iter.Seq[*Result] {
	return func(yield func(*Result) bool) {
		if rs == nil {
			return
		}
		for _, r := range rs.results {
			if !yield(r) {
				return
			}
		}
	}
}

// Rows flattens every result with Result.Row.
func (rs *ResultSet) Rows() []map[string]any {
	rows := make([]map[string]any, 0, rs.Len())
	for r := range rs.All() {
		rows = append(rows, r.Row())
	}
	return rows
}

// Append binds r to the set and resolves its raw tags into dimension
// values. Tags are matched against the dataset's declared dimensions; a tag
// with no declared dimension gets an anonymous one with the same id.
// Resolved values follow the declared dimension order, then the remaining
// tag ids in sorted order.
func (rs *ResultSet) Append(ctx context.Context, r *Result) error {
	if r == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidData)
	}
	if r.resultset != nil && r.resultset != rs {
		return fmt.Errorf("%w: result already belongs to another result set", ErrInvalidData)
	}
	values := newValueList()
	if len(r.raw) > 0 {
		if rs.dataset == nil {
			return fmt.Errorf("resolve dimensions: %w", ErrDetached)
		}
		dims, err := rs.dataset.Dimensions(ctx)
		if err != nil {
			return fmt.Errorf("resolve dimensions: %w", err)
		}
		for _, id := range resolutionOrder(r.raw, dims) {
			raw := r.raw[id]
			dv, ok := raw.(*DimensionValue)
			if ok && dv.dimension != nil {
				values.append(dv)
				continue
			}
			dim, err := dims.ByID(id)
			if err != nil {
				dim = anonymousDimension(id, rs.dataset)
			}
			if ok {
				// unbound values take the tag's dimension
				dv = dv.adoptedBy(dim)
				r.raw[id] = dv
				values.append(dv)
				continue
			}
			values.append(NewDimensionValue(raw, dim))
		}
	}
	r.values = values
	r.resultset = rs
	r.dataset = rs.dataset
	rs.results = append(rs.results, r)
	return nil
}

func resolutionOrder(raw map[string]any, dims *DimensionList) []string {
	order := make([]string, 0, len(raw))
	for dim := range dims.All() {
		if _, ok := raw[dim.ID()]; ok {
			order = append(order, dim.ID())
		}
	}
	var rest []string
	for id := range raw {
		if !dims.Contains(id) {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	return append(order, rest...)
}

// Translate returns a deep copy of the set expressed in dialect. Values whose
// datatype maps them in dialect are replaced by the mapped code; others keep
// their value.
func (rs *ResultSet) Translate(dialect string) *ResultSet {
	out := newResultSet(rs.dataset, dialect)
	out.results = make([]*Result, 0, rs.Len())
	for r := range rs.All() {
		copies := make(map[*DimensionValue]*DimensionValue, r.values.Len())
		values := newValueList()
		for v := range r.values.All() {
			cp := v.clone()
			if code, ok := v.Translate(dialect); ok {
				cp.value = code
			}
			copies[v] = cp
			values.append(cp)
		}
		raw := make(map[string]any, len(r.raw))
		for k, v := range r.raw {
			if dv, ok := v.(*DimensionValue); ok {
				if cp, ok := copies[dv]; ok {
					v = cp
				}
			}
			raw[k] = v
		}
		out.results = append(out.results, &Result{
			value:     r.value,
			raw:       raw,
			values:    values,
			resultset: out,
			dataset:   r.dataset,
		})
	}
	return out
}

// String renders one result per line.
func (rs *ResultSet) String() string {
	var b strings.Builder
	for i, r := range rs.results {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.String())
		for v := range r.values.All() {
			fmt.Fprintf(&b, " %s=%s", v.DimensionID(), v.ID())
		}
	}
	return b.String()
}
