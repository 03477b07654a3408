// Package static serves a tree from one catalog document held in memory.
package static

import (
	"context"
	"fmt"
	"io"
	"iter"

	"datatree/internal/core"
	"datatree/internal/datatype"
	"datatree/internal/sources/catalog"
)

// Source implements core.Source over a catalog document.
type Source struct {
	doc *catalog.Document
	reg *datatype.Registry
}

// Option customises a Source.
type Option func(*Source)

// WithRegistry sets the registry dimension datatypes resolve against. The
// document's own datatypes are layered on top of it.
func WithRegistry(reg *datatype.Registry) Option {
	return func(s *Source) { s.reg = reg }
}

// New validates doc and returns a source serving it.
func New(doc *catalog.Document, opts ...Option) (*Source, error) {
	if doc == nil {
		doc = &catalog.Document{}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	s := &Source{doc: doc}
	for _, opt := range opts {
		opt(s)
	}
	reg, err := doc.Registry(s.reg)
	if err != nil {
		return nil, err
	}
	s.reg = reg
	return s, nil
}

// Load decodes a catalog document from r.
func Load(r io.Reader, opts ...Option) (*Source, error) {
	doc, err := catalog.Decode(r)
	if err != nil {
		return nil, err
	}
	return New(doc, opts...)
}

// LoadFile decodes the catalog document at path.
func LoadFile(path string, opts ...Option) (*Source, error) {
	doc, err := catalog.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return New(doc, opts...)
}

// Document returns the document being served.
func (s *Source) Document() *catalog.Document { return s.doc }

func (s *Source) Children(ctx context.Context, c *core.Collection) iter.Seq2[core.Item, error] {
	nodes := s.doc.Nodes
	if !c.IsRoot() {
		n, err := s.node(c)
		if err != nil {
			return core.Failed[core.Item](err)
		}
		nodes = n.Children
	}
	items := make([]core.Item, len(nodes))
	for i, n := range nodes {
		items[i] = n.Item(s.doc.Dialect)
	}
	return catalog.Stream(ctx, items)
}

func (s *Source) Dimensions(ctx context.Context, d *core.Dataset) iter.Seq2[*core.Dimension, error] {
	n, err := s.node(d)
	if err != nil {
		return core.Failed[*core.Dimension](err)
	}
	dims, err := n.CoreDimensions(s.reg)
	if err != nil {
		return core.Failed[*core.Dimension](err)
	}
	return catalog.Stream(ctx, dims)
}

// AllowedValues yields the distinct values the dataset's rows carry for dim.
func (s *Source) AllowedValues(ctx context.Context, dim *core.Dimension) iter.Seq2[*core.DimensionValue, error] {
	ds := dim.Dataset()
	if ds == nil {
		return core.Failed[*core.DimensionValue](fmt.Errorf("allowed values of %s: %w", dim.ID(), core.ErrDetached))
	}
	n, err := s.node(ds)
	if err != nil {
		return core.Failed[*core.DimensionValue](err)
	}
	observed := catalog.Observed(n.Rows, dim.ID())
	values := make([]*core.DimensionValue, len(observed))
	for i, v := range observed {
		values[i] = core.NewDimensionValue(v, dim)
	}
	return catalog.Stream(ctx, values)
}

func (s *Source) Rows(ctx context.Context, d *core.Dataset, q core.Query) iter.Seq2[*core.Result, error] {
	n, err := s.node(d)
	if err != nil {
		return core.Failed[*core.Result](err)
	}
	return catalog.Stream(ctx, n.Results(q, s.reg))
}

// node returns the document node behind item. Items this source created
// carry it as their blob; others are located by their ancestor path.
func (s *Source) node(item core.Item) (*catalog.Node, error) {
	if n, ok := item.Blob().(*catalog.Node); ok && n != nil {
		return n, nil
	}
	path, err := catalog.PathOf(item)
	if err != nil {
		return nil, err
	}
	n, err := s.doc.Find(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNoSuchItem, err)
	}
	return n, nil
}
