package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/sirupsen/logrus"
)

// Cursor navigates the tree of one Source. It owns the root collection, the
// path from the root to the current item, and every cache hanging off the
// items it has seen.
type Cursor struct {
	source  Source
	root    *Collection
	current Item
	path    []Item

	dialect string
	hooks   map[Event][]HookFunc
	logger  logrus.FieldLogger
	metrics MetricsRecorder
	tracer  Tracer
}

// New returns a cursor positioned at the root of source's tree. Init hooks
// run before New returns.
func New(source Source, opts ...Option) (*Cursor, error) {
	if source == nil {
		return nil, errors.New("source required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	for event := range o.hooks {
		if !event.Valid() {
			return nil, fmt.Errorf("unknown hook event %q", event)
		}
	}
	c := &Cursor{
		source:  source,
		dialect: o.dialect,
		hooks:   o.hooks,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
	c.root = NewCollection(RootID)
	c.root.cursor = c
	c.current = c.root
	c.path = []Item{c.root}
	if err := c.fire(EventInit, o.initArgs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Root returns the root collection.
func (c *Cursor) Root() *Collection { return c.root }

// Current returns the item the cursor is on.
func (c *Cursor) Current() Item { return c.current }

// Dialect returns the default dialect.
func (c *Cursor) Dialect() string { return c.dialect }

// Parent returns the collection above the current item, or nil at the root.
func (c *Cursor) Parent() *Collection {
	if len(c.path) < 2 {
		return nil
	}
	return c.path[len(c.path)-2].(*Collection)
}

// Path returns the items from below the root down to the current item.
func (c *Cursor) Path() []Item {
	return slices.Clone(c.path[1:])
}

// Depth returns the number of steps below the root.
func (c *Cursor) Depth() int { return len(c.path) - 1 }

// Items returns the children of the current item. A dataset has none.
func (c *Cursor) Items(ctx context.Context) (*ItemList, error) {
	coll, ok := c.current.(*Collection)
	if !ok {
		return newItemList(), nil
	}
	return coll.Children(ctx)
}

// MoveTo descends into the child of the current item identified by key: an
// index, an id or the item itself.
func (c *Cursor) MoveTo(ctx context.Context, key any) error {
	items, err := c.Items(ctx)
	if err != nil {
		return err
	}
	item, err := items.Get(key)
	if err != nil {
		return fmt.Errorf("move from %s: %w", c.current.ID(), err)
	}
	c.current = item
	c.path = append(c.path, item)
	c.logger.WithField("item", item.ID()).WithField("depth", c.Depth()).Debug("cursor moved")
	return c.fire(EventSelect)
}

// MoveUp moves to the parent of the current item. At the root it stays put;
// up hooks fire either way, then top hooks when the cursor is at the root.
func (c *Cursor) MoveUp() error {
	if len(c.path) > 1 {
		c.path = c.path[:len(c.path)-1]
		c.current = c.path[len(c.path)-1]
	}
	if err := c.fire(EventUp); err != nil {
		return err
	}
	if len(c.path) == 1 {
		return c.fire(EventTop)
	}
	return nil
}

// MoveToTop returns to the root.
func (c *Cursor) MoveToTop() error {
	c.current = c.root
	c.path = []Item{c.root}
	return c.fire(EventTop)
}

// MoveToItem walks from the root down to item along its parent chain.
func (c *Cursor) MoveToItem(ctx context.Context, item Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidData)
	}
	if item.base().cursor != c {
		return fmt.Errorf("%s: %w", item.ID(), ErrNoSuchItem)
	}
	var chain []Item
	for it := item; ; {
		parent, err := it.Parent()
		if errors.Is(err, ErrNoParent) {
			break
		}
		if err != nil {
			return err
		}
		chain = append(chain, it)
		it = parent
	}
	slices.Reverse(chain)
	if err := c.MoveToTop(); err != nil {
		return err
	}
	for _, step := range chain {
		if err := c.MoveTo(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// Focus positions the cursor on ds. It is a no-op when ds is current. When
// the current item is a sibling of ds the cursor first moves up; it then
// moves to ds among the children of the current item. ErrDatasetNotInView is
// returned when ds is not reachable that way.
func (c *Cursor) Focus(ctx context.Context, ds *Dataset) error {
	if ds == nil {
		return fmt.Errorf("%w: nil dataset", ErrInvalidData)
	}
	if ds.cursor != c {
		return fmt.Errorf("%w: %s belongs to another tree", ErrDatasetNotInView, ds.id)
	}
	if c.current.UID() == ds.uid {
		return nil
	}
	from := c.current.ID()
	if parent, err := c.current.Parent(); err == nil && ds.parent == parent {
		if err := c.MoveUp(); err != nil {
			return err
		}
	}
	if err := c.MoveTo(ctx, ds); err != nil {
		if errors.Is(err, ErrNoSuchItem) {
			return fmt.Errorf("%w: %s from %s", ErrDatasetNotInView, ds.id, from)
		}
		return err
	}
	c.logger.WithFields(logrus.Fields{"dataset": ds.id, "from": from}).Debug("cursor refocused")
	return nil
}

// Fetch fetches the current dataset with q.
func (c *Cursor) Fetch(ctx context.Context, q Query) (*ResultSet, error) {
	ds, ok := c.current.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.current.ID(), ErrNotDataset)
	}
	return ds.Fetch(ctx, q)
}

// Descendants yields every dataset below the current item.
func (c *Cursor) Descendants(ctx context.Context) iter.Seq2[*Dataset, error] {
	coll, ok := c.current.(*Collection)
	if !ok {
		return func(func(*Dataset, error) bool) {}
	}
	return coll.Descendants(ctx)
}

// adopt attaches a freshly yielded child to parent. Items can be attached
// once.
func (c *Cursor) adopt(parent *Collection, item Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidData)
	}
	n := item.base()
	if n.parent != nil || n.cursor != nil {
		return fmt.Errorf("%w: item %s is already attached", ErrInvalidData, n.id)
	}
	n.parent = parent
	n.cursor = c
	if ds, ok := item.(*Dataset); ok && ds.dialect == "" {
		ds.dialect = c.dialect
	}
	return nil
}
