// Package datatype provides the named value domains dimensions can declare.
// A datatype carries the set of values it allows and, per dialect, the code a
// value is represented by in that dialect.
package datatype

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed datatypes.yaml
var builtinDocument []byte

// ErrUnknownDatatype is returned when a datatype name is not registered.
var ErrUnknownDatatype = errors.New("unknown datatype")

// Value is one allowed value of a datatype.
type Value struct {
	ID       string            `yaml:"id" json:"id"`
	Label    string            `yaml:"label,omitempty" json:"label,omitempty"`
	Dialects map[string]string `yaml:"dialects,omitempty" json:"dialects,omitempty"`
}

// Datatype describes a named value domain.
type Datatype struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Values      []Value `yaml:"values,omitempty" json:"values,omitempty"`

	byID map[string]int
}

// String returns the datatype name.
func (d *Datatype) String() string {
	if d == nil {
		return ""
	}
	return d.Name
}

// HasAllowedValues reports whether the datatype restricts its values.
func (d *Datatype) HasAllowedValues() bool {
	return d != nil && len(d.Values) > 0
}

// AllowedValues returns a copy of the datatype's allowed values.
func (d *Datatype) AllowedValues() []Value {
	if d == nil || len(d.Values) == 0 {
		return nil
	}
	out := make([]Value, len(d.Values))
	for i, v := range d.Values {
		out[i] = v.clone()
	}
	return out
}

// Value looks up an allowed value by id or label.
func (d *Datatype) Value(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	if idx, ok := d.byID[key]; ok {
		return d.Values[idx].clone(), true
	}
	for _, v := range d.Values {
		if v.Label == key {
			return v.clone(), true
		}
	}
	return Value{}, false
}

// Translate returns the representation of value in the given dialect. The
// second result is false when the datatype has no mapping for it.
func (d *Datatype) Translate(value any, dialect string) (string, bool) {
	if d == nil || dialect == "" {
		return "", false
	}
	v, ok := d.Value(fmt.Sprint(value))
	if !ok {
		return "", false
	}
	code, ok := v.Dialects[dialect]
	return code, ok
}

// Dialects lists every dialect any value of the datatype maps to.
func (d *Datatype) Dialects() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, v := range d.Values {
		for dialect := range v.Dialects {
			seen[dialect] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for dialect := range seen {
		out = append(out, dialect)
	}
	sort.Strings(out)
	return out
}

func (d *Datatype) index() error {
	d.byID = make(map[string]int, len(d.Values))
	for i := range d.Values {
		v := &d.Values[i]
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("datatype %s: value %d has no id", d.Name, i)
		}
		if _, dup := d.byID[v.ID]; dup {
			return fmt.Errorf("datatype %s: duplicate value %s", d.Name, v.ID)
		}
		if v.Label == "" {
			v.Label = v.ID
		}
		d.byID[v.ID] = i
	}
	return nil
}

func (v Value) clone() Value {
	if v.Dialects == nil {
		return v
	}
	dialects := make(map[string]string, len(v.Dialects))
	for k, code := range v.Dialects {
		dialects[k] = code
	}
	v.Dialects = dialects
	return v
}

// Registry holds datatypes by name.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Datatype
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Datatype)}
}

type document struct {
	Datatypes []*Datatype `yaml:"datatypes"`
}

// Load decodes a YAML datatype document and registers every datatype in it.
// Datatypes already registered under the same name are replaced.
func (r *Registry) Load(reader io.Reader) error {
	var doc document
	if err := yaml.NewDecoder(reader).Decode(&doc); err != nil {
		return fmt.Errorf("decode datatypes: %w", err)
	}
	for _, dt := range doc.Datatypes {
		if err := r.Register(dt); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a datatype to the registry.
func (r *Registry) Register(dt *Datatype) error {
	if dt == nil || strings.TrimSpace(dt.Name) == "" {
		return errors.New("datatype name required")
	}
	if err := dt.index(); err != nil {
		return err
	}
	r.mu.Lock()
	r.types[dt.Name] = dt
	r.mu.Unlock()
	return nil
}

// Lookup returns the datatype registered under name.
func (r *Registry) Lookup(name string) (*Datatype, error) {
	r.mu.RLock()
	dt, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatatype, name)
	}
	return dt, nil
}

// Clone returns a registry holding the same datatypes. Registering into the
// clone leaves r untouched.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewRegistry()
	for name, dt := range r.types {
		out.types[name] = dt
	}
	return out
}

// Names returns registered datatype names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the registry holding the builtin datatypes.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := defaultRegistry.Load(strings.NewReader(string(builtinDocument))); err != nil {
			panic(fmt.Sprintf("builtin datatypes: %v", err))
		}
	})
	return defaultRegistry
}

// Lookup returns a builtin datatype by name.
func Lookup(name string) (*Datatype, error) {
	return Default().Lookup(name)
}
