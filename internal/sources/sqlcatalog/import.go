package sqlcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"datatree/internal/datatype"
	"datatree/internal/sources/catalog"
)

// Import replaces the stored catalog with doc in one transaction.
func (s *Source) Import(ctx context.Context, doc *catalog.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	exec := func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, s.rebind(query), args...)
		return err
	}
	for _, table := range tables {
		if err := exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := exec(`INSERT INTO catalog_meta (name, value) VALUES (?, ?)`, "dialect", doc.Dialect); err != nil {
		return fmt.Errorf("insert dialect: %w", err)
	}
	for _, dt := range doc.Datatypes {
		body, err := yaml.Marshal(dt)
		if err != nil {
			return fmt.Errorf("encode datatype %s: %w", dt.Name, err)
		}
		if err := exec(`INSERT INTO catalog_datatypes (name, body) VALUES (?, ?)`, dt.Name, string(body)); err != nil {
			return fmt.Errorf("insert datatype %s: %w", dt.Name, err)
		}
	}
	positions := make(map[string]int)
	err = doc.Walk(func(path []string, n *catalog.Node) error {
		key := strings.Join(path, "/")
		parent := strings.Join(path[:len(path)-1], "/")
		pos := positions[parent]
		positions[parent] = pos + 1
		kind := catalog.KindCollection
		if n.IsDataset() {
			kind = catalog.KindDataset
		}
		if err := exec(`INSERT INTO catalog_items (path, parent, position, id, label, kind, dialect) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key, parent, pos, n.ID, n.Label, kind, n.Dialect); err != nil {
			return fmt.Errorf("insert item %s: %w", key, err)
		}
		if kind == catalog.KindCollection {
			return nil
		}
		for i, dim := range n.Dimensions {
			if err := exec(`INSERT INTO catalog_dimensions (dataset, position, id, label, datatype) VALUES (?, ?, ?, ?, ?)`,
				key, i, dim.ID, dim.Label, dim.Datatype); err != nil {
				return fmt.Errorf("insert dimension %s/%s: %w", key, dim.ID, err)
			}
			for j, v := range dim.Values {
				if err := exec(`INSERT INTO catalog_values (dataset, dimension, position, id, label) VALUES (?, ?, ?, ?, ?)`,
					key, dim.ID, j, v.ID, v.Label); err != nil {
					return fmt.Errorf("insert value %s/%s/%s: %w", key, dim.ID, v.ID, err)
				}
			}
		}
		for i, row := range n.Rows {
			value, err := json.Marshal(row.Value)
			if err != nil {
				return fmt.Errorf("encode row %s/%d: %w", key, i, err)
			}
			tags, err := json.Marshal(row.Tags)
			if err != nil {
				return fmt.Errorf("encode tags %s/%d: %w", key, i, err)
			}
			if err := exec(`INSERT INTO catalog_rows (dataset, position, value, tags) VALUES (?, ?, ?, ?)`,
				key, i, string(value), string(tags)); err != nil {
				return fmt.Errorf("insert row %s/%d: %w", key, i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return s.reload(ctx)
}

func decodeDatatype(body string) (*datatype.Datatype, error) {
	var dt datatype.Datatype
	if err := yaml.Unmarshal([]byte(body), &dt); err != nil {
		return nil, fmt.Errorf("decode stored datatype: %w", err)
	}
	return &dt, nil
}
