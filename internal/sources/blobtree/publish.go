package blobtree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"datatree/internal/blob"
	"datatree/internal/sources/catalog"
)

// Publish writes doc into store under prefix in the layout Source reads.
// Existing objects with the same keys are replaced; nothing is removed.
// It returns the number of objects written.
func Publish(ctx context.Context, store blob.Store, prefix string, doc *catalog.Document) (int, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}
	prefix = normalizePrefix(prefix)
	written := 0
	put := func(key, contentType string, body []byte, md map[string]string) error {
		_, err := store.Put(ctx, key, bytes.NewReader(body), blob.WriteOptions{
			ContentType: contentType,
			Metadata:    md,
			Overwrite:   true,
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
		written++
		return nil
	}
	if len(doc.Datatypes) > 0 {
		body, err := yaml.Marshal(map[string]any{"datatypes": doc.Datatypes})
		if err != nil {
			return written, err
		}
		if err := put(prefix+datatypesKey, "application/yaml", body, nil); err != nil {
			return written, err
		}
	}
	err := doc.Walk(func(path []string, n *catalog.Node) error {
		key := prefix + strings.Join(path, "/")
		if !n.IsDataset() {
			body, err := json.Marshal(map[string]string{"id": n.ID, "label": n.Label})
			if err != nil {
				return err
			}
			return put(key+"/"+collectionKey, "application/json", body, nil)
		}
		stored := *n
		stored.Kind = catalog.KindDataset
		stored.Children = nil
		if stored.Dialect == "" {
			stored.Dialect = doc.Dialect
		}
		body, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		return put(key+".json", "application/json", body, map[string]string{"rows": fmt.Sprint(len(n.Rows))})
	})
	return written, err
}
