package core

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
)

// Kind names the two item variants of the tree.
type Kind string

const (
	KindCollection Kind = "collection"
	KindDataset    Kind = "dataset"
)

// RootID is the id of every cursor's root collection.
const RootID = "<root>"

// Item is a node of the tree: either a *Collection or a *Dataset.
type Item interface {
	ID() string
	Label() string
	Blob() any
	Kind() Kind
	UID() uuid.UUID
	Parent() (*Collection, error)
	String() string

	base() *node
}

type node struct {
	uid    uuid.UUID
	id     string
	label  string
	blob   any
	parent *Collection
	cursor *Cursor
}

// ItemOption customises a Collection or Dataset at construction.
type ItemOption func(*itemConfig)

type itemConfig struct {
	label   string
	blob    any
	dialect string
}

// WithLabel sets the human-readable label. It defaults to the id.
func WithLabel(label string) ItemOption {
	return func(c *itemConfig) { c.label = label }
}

// WithBlob attaches an opaque source-specific payload to the item.
func WithBlob(blob any) ItemOption {
	return func(c *itemConfig) { c.blob = blob }
}

// WithItemDialect sets the dialect a dataset's results are expressed in.
// Collections ignore it. Datasets without one inherit the cursor dialect.
func WithItemDialect(dialect string) ItemOption {
	return func(c *itemConfig) { c.dialect = dialect }
}

func newNode(id string, opts []ItemOption) (node, itemConfig) {
	cfg := itemConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	label := cfg.label
	if label == "" {
		label = id
	}
	return node{uid: uuid.New(), id: id, label: label, blob: cfg.blob}, cfg
}

func (n *node) ID() string     { return n.id }
func (n *node) Label() string  { return n.label }
func (n *node) Blob() any      { return n.blob }
func (n *node) UID() uuid.UUID { return n.uid }
func (n *node) String() string { return n.id }
func (n *node) base() *node    { return n }

func (n *node) isRoot() bool {
	return n.cursor != nil && n.cursor.root != nil && n == &n.cursor.root.node
}

// Parent returns the collection the item was attached to. The root
// collection reports ErrNoParent; an item nobody attached reports
// ErrDetached.
func (n *node) Parent() (*Collection, error) {
	if n.parent != nil {
		return n.parent, nil
	}
	if n.isRoot() {
		return nil, ErrNoParent
	}
	return nil, fmt.Errorf("%s: %w", n.id, ErrDetached)
}

func (n *node) liveCursor() (*Cursor, error) {
	if n.cursor == nil {
		return nil, fmt.Errorf("%s: %w", n.id, ErrDetached)
	}
	return n.cursor, nil
}

// Collection is an item whose children are Collections or Datasets.
type Collection struct {
	node
	children memo[*ItemList]
}

// NewCollection returns a detached collection.
func NewCollection(id string, opts ...ItemOption) *Collection {
	n, _ := newNode(id, opts)
	return &Collection{node: n}
}

// Kind returns KindCollection.
func (c *Collection) Kind() Kind { return KindCollection }

// IsRoot reports whether c is the root of its cursor's tree.
func (c *Collection) IsRoot() bool { return c.isRoot() }

// Children returns the collection's children, asking the source on first
// use. Every child is attached to c before it becomes visible.
func (c *Collection) Children(ctx context.Context) (*ItemList, error) {
	cur, err := c.liveCursor()
	if err != nil {
		return nil, err
	}
	if list, ok := c.children.load(""); ok {
		cur.metrics.CacheLookup(OpChildren, true)
		return list, nil
	}
	cur.metrics.CacheLookup(OpChildren, false)
	return c.children.do("", func() (*ItemList, error) {
		list := newItemList()
		err := cur.observe(ctx, OpChildren, func() error {
			for item, err := range cur.source.Children(ctx, c) {
				if err != nil {
					return err
				}
				if err := cur.adopt(c, item); err != nil {
					return err
				}
				list.append(item)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("children of %s: %w", c.id, err)
		}
		cur.logger.WithField("collection", c.id).WithField("count", list.Len()).Debug("children loaded")
		return list, nil
	})
}

// Descendants yields every dataset below c, depth first in child order.
func (c *Collection) Descendants(ctx context.Context) iter.Seq2[*Dataset, error] {
	return func(yield func(*Dataset, error) bool) {
		c.walk(ctx, yield)
	}
}

func (c *Collection) walk(ctx context.Context, yield func(*Dataset, error) bool) bool {
	children, err := c.Children(ctx)
	if err != nil {
		yield(nil, err)
		return false
	}
	for item := range children.All() {
		switch it := item.(type) {
		case *Collection:
			if !it.walk(ctx, yield) {
				return false
			}
		case *Dataset:
			if !yield(it, nil) {
				return false
			}
		}
	}
	return true
}

// Dataset is a leaf item holding rows of results.
type Dataset struct {
	node
	dialect    string
	query      Query
	dimensions memo[*DimensionList]
	data       memo[*ResultSet]
}

// NewDataset returns a detached dataset.
func NewDataset(id string, opts ...ItemOption) *Dataset {
	n, cfg := newNode(id, opts)
	return &Dataset{node: n, dialect: cfg.dialect}
}

// Kind returns KindDataset.
func (d *Dataset) Kind() Kind { return KindDataset }

// Dialect returns the dialect results of d are expressed in.
func (d *Dataset) Dialect() string { return d.dialect }

// Query returns a copy of the stored query.
func (d *Dataset) Query() Query { return d.query.Clone() }

// SetQuery replaces the stored query. An empty query clears it.
func (d *Dataset) SetQuery(q Query) { d.query = q.Clone() }

// Dimensions returns the dataset's declared dimensions. The cursor is
// focused on d first.
func (d *Dataset) Dimensions(ctx context.Context) (*DimensionList, error) {
	cur, err := d.liveCursor()
	if err != nil {
		return nil, err
	}
	if err := cur.Focus(ctx, d); err != nil {
		return nil, err
	}
	if list, ok := d.dimensions.load(""); ok {
		cur.metrics.CacheLookup(OpDimensions, true)
		return list, nil
	}
	cur.metrics.CacheLookup(OpDimensions, false)
	return d.dimensions.do("", func() (*DimensionList, error) {
		list := newDimensionList()
		err := cur.observe(ctx, OpDimensions, func() error {
			for dim, err := range cur.source.Dimensions(ctx, d) {
				if err != nil {
					return err
				}
				if dim == nil {
					return fmt.Errorf("%w: nil dimension", ErrInvalidData)
				}
				if list.Contains(dim.ID()) {
					return fmt.Errorf("%w: duplicate dimension %s", ErrInvalidData, dim.ID())
				}
				dim.bind(d)
				list.append(dim)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("dimensions of %s: %w", d.id, err)
		}
		return list, nil
	})
}

// Fetch returns the rows matching q. A non-empty q replaces the stored
// query; an empty one reuses it. Each distinct query is fetched from the
// source once.
func (d *Dataset) Fetch(ctx context.Context, q Query) (*ResultSet, error) {
	cur, err := d.liveCursor()
	if err != nil {
		return nil, err
	}
	if len(q) > 0 {
		d.query = q.Clone()
	}
	key, err := d.query.Hash()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", d.id, err)
	}
	log := cur.logger.WithField("dataset", d.id).WithField("query", key)
	if rs, ok := d.data.load(key); ok {
		cur.metrics.CacheLookup(OpRows, true)
		log.Debug("rows served from cache")
		return rs, nil
	}
	cur.metrics.CacheLookup(OpRows, false)
	return d.data.do(key, func() (*ResultSet, error) {
		if err := cur.Focus(ctx, d); err != nil {
			return nil, err
		}
		query := d.query.Clone()
		rs := newResultSet(d, d.dialect)
		err := cur.observe(ctx, OpRows, func() error {
			for r, err := range cur.source.Rows(ctx, d, query) {
				if err != nil {
					return err
				}
				if err := rs.Append(ctx, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", d.id, err)
		}
		log.WithField("rows", rs.Len()).Debug("rows fetched")
		return rs, nil
	})
}

// Data returns the rows of the stored query.
func (d *Dataset) Data(ctx context.Context) (*ResultSet, error) {
	return d.Fetch(ctx, nil)
}

// Shape returns the number of rows in Data and the number of declared
// dimensions. An empty dataset has shape (0, 0).
func (d *Dataset) Shape(ctx context.Context) (rows, cols int, err error) {
	data, err := d.Data(ctx)
	if err != nil {
		return 0, 0, err
	}
	if data.Len() == 0 {
		return 0, 0, nil
	}
	dims, err := d.Dimensions(ctx)
	if err != nil {
		return 0, 0, err
	}
	return data.Len(), dims.Len(), nil
}
