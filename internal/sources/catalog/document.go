// Package catalog defines the document format the bundled sources share: a
// tree of collections and datasets with their dimensions and rows, encoded as
// YAML or JSON.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"datatree/internal/datatype"
)

// ErrInvalidDocument marks structural problems in a catalog document.
var ErrInvalidDocument = errors.New("invalid catalog document")

// Node kinds.
const (
	KindCollection = "collection"
	KindDataset    = "dataset"
)

// Document is a complete catalog.
type Document struct {
	// Dialect applies to datasets that do not name one.
	Dialect   string               `yaml:"dialect,omitempty" json:"dialect,omitempty"`
	Datatypes []*datatype.Datatype `yaml:"datatypes,omitempty" json:"datatypes,omitempty"`
	Nodes     []*Node              `yaml:"nodes" json:"nodes"`
}

// Node is a collection or a dataset. Without an explicit kind a node with
// children is a collection and any other node a dataset.
type Node struct {
	ID         string          `yaml:"id" json:"id"`
	Label      string          `yaml:"label,omitempty" json:"label,omitempty"`
	Kind       string          `yaml:"kind,omitempty" json:"kind,omitempty"`
	Dialect    string          `yaml:"dialect,omitempty" json:"dialect,omitempty"`
	Children   []*Node         `yaml:"children,omitempty" json:"children,omitempty"`
	Dimensions []DimensionSpec `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
	Rows       []Row           `yaml:"rows,omitempty" json:"rows,omitempty"`
}

// DimensionSpec declares a dataset dimension.
type DimensionSpec struct {
	ID       string      `yaml:"id" json:"id"`
	Label    string      `yaml:"label,omitempty" json:"label,omitempty"`
	Datatype string      `yaml:"datatype,omitempty" json:"datatype,omitempty"`
	Values   []ValueSpec `yaml:"values,omitempty" json:"values,omitempty"`
}

// ValueSpec is one allowed value. In YAML a bare scalar is accepted as the
// id.
type ValueSpec struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// UnmarshalYAML accepts both `- male` and `- {id: male, label: Men}`.
func (v *ValueSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		v.ID = n.Value
		return nil
	}
	type plain ValueSpec
	return n.Decode((*plain)(v))
}

// Row is one observation: a value and the dimension values it is tagged with.
type Row struct {
	Value any            `yaml:"value" json:"value"`
	Tags  map[string]any `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// IsDataset reports whether n describes a dataset.
func (n *Node) IsDataset() bool {
	switch n.Kind {
	case KindDataset:
		return true
	case KindCollection:
		return false
	}
	return len(n.Children) == 0
}

// Decode parses a YAML or JSON document and validates it.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeFile reads path with Decode.
func DecodeFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// DecodeNode parses a single dataset node, as stored by the blob tree layout.
func DecodeNode(b []byte) (*Node, error) {
	var n Node
	if err := yaml.NewDecoder(bytes.NewReader(b)).Decode(&n); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &n, nil
}

// Validate reports every structural problem at once.
func (d *Document) Validate() error {
	var result *multierror.Error
	fail := func(path []string, format string, args ...any) {
		where := strings.Join(path, "/")
		if where == "" {
			where = "<root>"
		}
		result = multierror.Append(result, fmt.Errorf("%w: %s: %s", ErrInvalidDocument, where, fmt.Sprintf(format, args...)))
	}
	var check func(path []string, nodes []*Node)
	check = func(path []string, nodes []*Node) {
		seen := make(map[string]bool, len(nodes))
		for i, n := range nodes {
			if n == nil {
				fail(path, "node %d is empty", i)
				continue
			}
			switch {
			case n.ID == "":
				fail(path, "node %d has no id", i)
			case strings.Contains(n.ID, "/"):
				fail(path, "id %q contains a slash", n.ID)
			case seen[n.ID]:
				fail(path, "duplicate id %q", n.ID)
			}
			seen[n.ID] = true
			here := append(append([]string(nil), path...), n.ID)
			switch n.Kind {
			case "", KindCollection, KindDataset:
			default:
				fail(here, "unknown kind %q", n.Kind)
			}
			if n.IsDataset() {
				if len(n.Children) > 0 {
					fail(here, "dataset has children")
				}
				checkDimensions(here, n.Dimensions, fail)
			} else if len(n.Dimensions) > 0 || len(n.Rows) > 0 {
				fail(here, "collection declares dimensions or rows")
			}
			check(here, n.Children)
		}
	}
	check(nil, d.Nodes)
	return result.ErrorOrNil()
}

func checkDimensions(path []string, dims []DimensionSpec, fail func([]string, string, ...any)) {
	seen := make(map[string]bool, len(dims))
	for i, dim := range dims {
		switch {
		case dim.ID == "":
			fail(path, "dimension %d has no id", i)
		case seen[dim.ID]:
			fail(path, "duplicate dimension %q", dim.ID)
		}
		seen[dim.ID] = true
	}
}

// Find returns the node at path, a list of ids from the top level down.
func (d *Document) Find(path []string) (*Node, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidDocument)
	}
	nodes := d.Nodes
	var found *Node
	for _, id := range path {
		found = nil
		for _, n := range nodes {
			if n.ID == id {
				found = n
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("no node %s", strings.Join(path, "/"))
		}
		nodes = found.Children
	}
	return found, nil
}

// Walk visits every node depth-first with its ancestor id path, stopping at
// the first error fn returns.
func (d *Document) Walk(fn func(path []string, n *Node) error) error {
	var walk func(prefix []string, nodes []*Node) error
	walk = func(prefix []string, nodes []*Node) error {
		for _, n := range nodes {
			path := append(append([]string(nil), prefix...), n.ID)
			if err := fn(path, n); err != nil {
				return err
			}
			if err := walk(path, n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nil, d.Nodes)
}

// Registry returns base extended with the document's datatypes. base is
// returned unchanged when the document declares none; a nil base means the
// builtin registry.
func (d *Document) Registry(base *datatype.Registry) (*datatype.Registry, error) {
	if base == nil {
		base = datatype.Default()
	}
	if len(d.Datatypes) == 0 {
		return base, nil
	}
	reg := base.Clone()
	for _, dt := range d.Datatypes {
		if err := reg.Register(dt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
	return reg, nil
}
