// Package blobtree serves a tree laid out in a blob store. Key prefixes are
// collections and objects ending in .json, .yaml or .yml are datasets whose
// payload is a catalog dataset node:
//
//	<prefix>_datatypes.yaml         optional extra datatypes
//	<prefix>population/_collection.json
//	<prefix>population/by_gender.json
//	<prefix>summary.yaml
//
// Names starting with an underscore are reserved and never listed as items.
// Children are ordered by key.
package blobtree

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"path"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"datatree/internal/blob"
	"datatree/internal/core"
	"datatree/internal/datatype"
	"datatree/internal/sources/catalog"
)

const (
	datatypesKey  = "_datatypes.yaml"
	collectionKey = "_collection.json"
)

var datasetExts = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// Source implements core.Source over a blob.Store.
type Source struct {
	store   blob.Store
	prefix  string
	dialect string
	reg     *datatype.Registry
	logger  logrus.FieldLogger

	mu    sync.Mutex
	nodes map[string]*catalog.Node
}

// Option customises a Source.
type Option func(*Source)

// WithRegistry sets the registry datatypes resolve against. A
// _datatypes.yaml object under the prefix is layered on top of it.
func WithRegistry(reg *datatype.Registry) Option {
	return func(s *Source) { s.reg = reg }
}

// WithLogger sets the logger for payload loads.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Source) { s.logger = logger }
}

// WithDialect sets the dialect of datasets whose payload names none.
func WithDialect(dialect string) Option {
	return func(s *Source) { s.dialect = dialect }
}

// New returns a source rooted at prefix in store.
func New(ctx context.Context, store blob.Store, prefix string, opts ...Option) (*Source, error) {
	if store == nil {
		return nil, errors.New("blobtree: nil store")
	}
	s := &Source{
		store:  store,
		prefix: normalizePrefix(prefix),
		reg:    datatype.Default(),
		logger: logrus.StandardLogger(),
		nodes:  make(map[string]*catalog.Node),
	}
	for _, opt := range opts {
		opt(s)
	}
	_, body, err := blob.ReadAll(ctx, store, s.prefix+datatypesKey)
	switch {
	case errors.Is(err, blob.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("blobtree: %w", err)
	default:
		reg := s.reg.Clone()
		if err := reg.Load(bytes.NewReader(body)); err != nil {
			return nil, fmt.Errorf("blobtree: %s: %w", datatypesKey, err)
		}
		s.reg = reg
	}
	return s, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (s *Source) Children(ctx context.Context, c *core.Collection) iter.Seq2[core.Item, error] {
	base, err := s.collectionPrefix(c)
	if err != nil {
		return core.Failed[core.Item](err)
	}
	objs, err := s.store.List(ctx, base)
	if err != nil {
		return core.Failed[core.Item](fmt.Errorf("list %s: %w", base, err))
	}
	keys := make(map[string]bool, len(objs))
	for _, obj := range objs {
		keys[obj.Key] = true
	}
	var items []core.Item
	// ids are unique among siblings; the first key listed wins
	seen := make(map[string]bool)
	for _, obj := range objs {
		name, _, nested := strings.Cut(strings.TrimPrefix(obj.Key, base), "/")
		if name == "" || strings.HasPrefix(name, "_") {
			continue
		}
		if nested {
			if seen[name] {
				continue
			}
			seen[name] = true
			item, err := s.collection(ctx, base+name+"/", name, keys)
			if err != nil {
				return core.Failed[core.Item](err)
			}
			items = append(items, item)
			continue
		}
		ext := path.Ext(name)
		id := strings.TrimSuffix(name, ext)
		if !datasetExts[ext] || seen[id] {
			continue
		}
		seen[id] = true
		n, err := s.payload(ctx, obj.Key)
		if err != nil {
			return core.Failed[core.Item](err)
		}
		opts := []core.ItemOption{core.WithLabel(n.Label), core.WithBlob(obj.Key)}
		if dialect := firstNonEmpty(n.Dialect, s.dialect); dialect != "" {
			opts = append(opts, core.WithItemDialect(dialect))
		}
		items = append(items, core.NewDataset(id, opts...))
	}
	return catalog.Stream(ctx, items)
}

func (s *Source) collection(ctx context.Context, key, id string, keys map[string]bool) (*core.Collection, error) {
	label := ""
	if keys[key+collectionKey] {
		_, body, err := blob.ReadAll(ctx, s.store, key+collectionKey)
		if err != nil {
			return nil, err
		}
		var meta struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(body, &meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidData, key+collectionKey, err)
		}
		label = meta.Label
	}
	return core.NewCollection(id, core.WithLabel(label), core.WithBlob(key)), nil
}

func (s *Source) Dimensions(ctx context.Context, d *core.Dataset) iter.Seq2[*core.Dimension, error] {
	n, err := s.dataset(ctx, d)
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
	n, err := s.dataset(ctx, ds)
	if err != nil {
		return core.Failed[*core.DimensionValue](err)
	}
	var values []*core.DimensionValue
	for _, v := range catalog.Observed(n.Rows, dim.ID()) {
		values = append(values, core.NewDimensionValue(v, dim))
	}
	return catalog.Stream(ctx, values)
}

func (s *Source) Rows(ctx context.Context, d *core.Dataset, q core.Query) iter.Seq2[*core.Result, error] {
	n, err := s.dataset(ctx, d)
	if err != nil {
		return core.Failed[*core.Result](err)
	}
	return catalog.Stream(ctx, n.Results(q, s.reg))
}

func (s *Source) collectionPrefix(c *core.Collection) (string, error) {
	if c.IsRoot() {
		return s.prefix, nil
	}
	if key, ok := c.Blob().(string); ok && key != "" {
		return key, nil
	}
	p, err := catalog.PathOf(c)
	if err != nil {
		return "", err
	}
	return s.prefix + strings.Join(p, "/") + "/", nil
}

func (s *Source) dataset(ctx context.Context, d *core.Dataset) (*catalog.Node, error) {
	key, ok := d.Blob().(string)
	if !ok || key == "" {
		var err error
		if key, err = s.locate(ctx, d); err != nil {
			return nil, err
		}
	}
	return s.payload(ctx, key)
}

// locate finds the object of a dataset created elsewhere from its ancestor
// path.
func (s *Source) locate(ctx context.Context, d *core.Dataset) (string, error) {
	p, err := catalog.PathOf(d)
	if err != nil {
		return "", err
	}
	stem := s.prefix + strings.Join(p, "/")
	objs, err := s.store.List(ctx, stem)
	if err != nil {
		return "", err
	}
	for _, obj := range objs {
		if ext := path.Ext(obj.Key); datasetExts[ext] && strings.TrimSuffix(obj.Key, ext) == stem {
			return obj.Key, nil
		}
	}
	return "", fmt.Errorf("%w: no object for dataset %s", core.ErrNoSuchItem, stem)
}

// payload decodes the dataset node stored at key once.
func (s *Source) payload(ctx context.Context, key string) (*catalog.Node, error) {
	s.mu.Lock()
	n, ok := s.nodes[key]
	s.mu.Unlock()
	if ok {
		return n, nil
	}
	obj, body, err := blob.ReadAll(ctx, s.store, key)
	if err != nil {
		return nil, err
	}
	n, err = catalog.DecodeNode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidData, key, err)
	}
	s.logger.WithFields(logrus.Fields{
		"key":  key,
		"size": humanize.Bytes(uint64(obj.Size)),
		"rows": len(n.Rows),
	}).Debug("dataset payload decoded")
	s.mu.Lock()
	s.nodes[key] = n
	s.mu.Unlock()
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
