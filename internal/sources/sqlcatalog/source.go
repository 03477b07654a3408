package sqlcatalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"datatree/internal/core"
	"datatree/internal/sources/catalog"
)

func (s *Source) Children(ctx context.Context, c *core.Collection) iter.Seq2[core.Item, error] {
	parent, err := itemPath(c)
	if err != nil {
		return core.Failed[core.Item](err)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, label, kind, dialect FROM catalog_items WHERE parent = ? ORDER BY position`), parent)
	if err != nil {
		return core.Failed[core.Item](fmt.Errorf("select items: %w", err))
	}
	defer func() { _ = rows.Close() }()
	dialect := s.defaultDialect()
	var items []core.Item
	for rows.Next() {
		var n catalog.Node
		if err := rows.Scan(&n.ID, &n.Label, &n.Kind, &n.Dialect); err != nil {
			return core.Failed[core.Item](fmt.Errorf("scan item: %w", err))
		}
		key := joinPath(parent, n.ID)
		opts := []core.ItemOption{core.WithLabel(n.Label), core.WithBlob(key)}
		if !n.IsDataset() {
			items = append(items, core.NewCollection(n.ID, opts...))
			continue
		}
		if n.Dialect == "" {
			n.Dialect = dialect
		}
		if n.Dialect != "" {
			opts = append(opts, core.WithItemDialect(n.Dialect))
		}
		items = append(items, core.NewDataset(n.ID, opts...))
	}
	if err := rows.Err(); err != nil {
		return core.Failed[core.Item](fmt.Errorf("iterate items: %w", err))
	}
	return catalog.Stream(ctx, items)
}

func (s *Source) Dimensions(ctx context.Context, d *core.Dataset) iter.Seq2[*core.Dimension, error] {
	key, err := itemPath(d)
	if err != nil {
		return core.Failed[*core.Dimension](err)
	}
	specs, err := s.dimensionSpecs(ctx, key, true)
	if err != nil {
		return core.Failed[*core.Dimension](err)
	}
	reg := s.registry()
	dims := make([]*core.Dimension, 0, len(specs))
	for _, spec := range specs {
		dim, err := spec.Dimension(reg)
		if err != nil {
			return core.Failed[*core.Dimension](err)
		}
		dims = append(dims, dim)
	}
	return catalog.Stream(ctx, dims)
}

// AllowedValues yields the distinct values the dataset's rows carry for dim.
func (s *Source) AllowedValues(ctx context.Context, dim *core.Dimension) iter.Seq2[*core.DimensionValue, error] {
	ds := dim.Dataset()
	if ds == nil {
		return core.Failed[*core.DimensionValue](fmt.Errorf("allowed values of %s: %w", dim.ID(), core.ErrDetached))
	}
	key, err := itemPath(ds)
	if err != nil {
		return core.Failed[*core.DimensionValue](err)
	}
	stored, err := s.rows(ctx, key)
	if err != nil {
		return core.Failed[*core.DimensionValue](err)
	}
	var values []*core.DimensionValue
	for _, v := range catalog.Observed(stored, dim.ID()) {
		values = append(values, core.NewDimensionValue(v, dim))
	}
	return catalog.Stream(ctx, values)
}

func (s *Source) Rows(ctx context.Context, d *core.Dataset, q core.Query) iter.Seq2[*core.Result, error] {
	key, err := itemPath(d)
	if err != nil {
		return core.Failed[*core.Result](err)
	}
	specs, err := s.dimensionSpecs(ctx, key, false)
	if err != nil {
		return core.Failed[*core.Result](err)
	}
	stored, err := s.rows(ctx, key)
	if err != nil {
		return core.Failed[*core.Result](err)
	}
	return catalog.Stream(ctx, catalog.Filter(stored, q, catalog.DimensionTypes(specs, s.registry())))
}

func (s *Source) dimensionSpecs(ctx context.Context, dataset string, withValues bool) ([]catalog.DimensionSpec, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, label, datatype FROM catalog_dimensions WHERE dataset = ? ORDER BY position`), dataset)
	if err != nil {
		return nil, fmt.Errorf("select dimensions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var specs []catalog.DimensionSpec
	index := make(map[string]int)
	for rows.Next() {
		var spec catalog.DimensionSpec
		if err := rows.Scan(&spec.ID, &spec.Label, &spec.Datatype); err != nil {
			return nil, fmt.Errorf("scan dimension: %w", err)
		}
		index[spec.ID] = len(specs)
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dimensions: %w", err)
	}
	if !withValues || len(specs) == 0 {
		return specs, nil
	}
	values, err := s.db.QueryContext(ctx, s.rebind(`SELECT dimension, id, label FROM catalog_values WHERE dataset = ? ORDER BY dimension, position`), dataset)
	if err != nil {
		return nil, fmt.Errorf("select allowed values: %w", err)
	}
	defer func() { _ = values.Close() }()
	for values.Next() {
		var dim string
		var v catalog.ValueSpec
		if err := values.Scan(&dim, &v.ID, &v.Label); err != nil {
			return nil, fmt.Errorf("scan allowed value: %w", err)
		}
		if i, ok := index[dim]; ok {
			specs[i].Values = append(specs[i].Values, v)
		}
	}
	if err := values.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowed values: %w", err)
	}
	return specs, nil
}

func (s *Source) rows(ctx context.Context, dataset string) ([]catalog.Row, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT value, tags FROM catalog_rows WHERE dataset = ? ORDER BY position`), dataset)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []catalog.Row
	for rows.Next() {
		var value, tags string
		if err := rows.Scan(&value, &tags); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var row catalog.Row
		var err error
		if row.Value, err = decodeJSON(value); err != nil {
			return nil, fmt.Errorf("%w: row value of %s: %w", core.ErrInvalidData, dataset, err)
		}
		decoded, err := decodeJSON(tags)
		if err != nil {
			return nil, fmt.Errorf("%w: row tags of %s: %w", core.ErrInvalidData, dataset, err)
		}
		row.Tags, _ = decoded.(map[string]any)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// decodeJSON decodes a stored value, turning integral numbers back into
// ints so they compare and print as they were imported.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}

// itemPath returns the stored path of item: its blob when this source
// created it, else the slash-joined ancestor ids.
func itemPath(item core.Item) (string, error) {
	if key, ok := item.Blob().(string); ok && key != "" {
		return key, nil
	}
	path, err := catalog.PathOf(item)
	if err != nil {
		return "", err
	}
	return strings.Join(path, "/"), nil
}

func joinPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + "/" + id
}
