package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"datatree/internal/datatype"
)

// Dimension is a named axis of a dataset.
type Dimension struct {
	uid       uuid.UUID
	id        string
	label     string
	datatype  *datatype.Datatype
	declared  []any
	hasValues bool
	anonymous bool

	dataset *Dataset
	allowed memo[*AllowedValues]
}

// DimensionOption customises a Dimension at construction.
type DimensionOption func(*Dimension)

// WithDimensionLabel sets the label. It defaults to the id.
func WithDimensionLabel(label string) DimensionOption {
	return func(d *Dimension) { d.label = label }
}

// WithDatatype attaches a datatype. Its values become the allowed values
// unless WithAllowedValues is also given.
func WithDatatype(dt *datatype.Datatype) DimensionOption {
	return func(d *Dimension) { d.datatype = dt }
}

// WithAllowedValues declares the values the dimension accepts. Elements may
// be raw values or *DimensionValue; a value built without a dimension is
// copied onto this one.
func WithAllowedValues(values ...any) DimensionOption {
	return func(d *Dimension) {
		d.declared = append([]any(nil), values...)
		d.hasValues = true
	}
}

// NewDimension returns a dimension with the given id.
func NewDimension(id string, opts ...DimensionOption) *Dimension {
	d := &Dimension{uid: uuid.New(), id: id}
	for _, opt := range opts {
		opt(d)
	}
	if d.label == "" {
		d.label = id
	}
	return d
}

func anonymousDimension(id string, ds *Dataset) *Dimension {
	d := NewDimension(id)
	d.anonymous = true
	d.dataset = ds
	return d
}

func (d *Dimension) ID() string                   { return d.id }
func (d *Dimension) Label() string                { return d.label }
func (d *Dimension) UID() uuid.UUID               { return d.uid }
func (d *Dimension) Datatype() *datatype.Datatype { return d.datatype }
func (d *Dimension) String() string               { return d.id }

// Dataset returns the dataset the dimension was loaded for, or nil.
func (d *Dimension) Dataset() *Dataset { return d.dataset }

// Anonymous reports whether the dimension was synthesised for a result tag
// that no declared dimension matches.
func (d *Dimension) Anonymous() bool { return d.anonymous }

func (d *Dimension) bind(ds *Dataset) {
	d.dataset = ds
}

// AllowedValues returns the values the dimension accepts. Declared values
// take precedence over datatype values; otherwise the source is asked once.
func (d *Dimension) AllowedValues(ctx context.Context) (*AllowedValues, error) {
	if list, ok := d.allowed.load(""); ok {
		if cur := d.owner(); cur != nil {
			cur.metrics.CacheLookup(OpAllowedValues, true)
		}
		return list, nil
	}
	return d.allowed.do("", func() (*AllowedValues, error) {
		switch {
		case d.hasValues:
			return d.declaredValues(), nil
		case d.datatype.HasAllowedValues():
			list := newAllowedValues()
			for _, v := range d.datatype.AllowedValues() {
				list.append(NewDimensionValue(v.ID, d, WithValueLabel(v.Label)))
			}
			return list, nil
		}
		cur := d.owner()
		if cur == nil {
			return nil, fmt.Errorf("allowed values of %s: %w", d.id, ErrDetached)
		}
		cur.metrics.CacheLookup(OpAllowedValues, false)
		list := newAllowedValues()
		err := cur.observe(ctx, OpAllowedValues, func() error {
			for v, err := range cur.source.AllowedValues(ctx, d) {
				if err != nil {
					return err
				}
				if v == nil {
					return fmt.Errorf("%w: nil allowed value", ErrInvalidData)
				}
				list.append(v)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("allowed values of %s: %w", d.id, err)
		}
		return list, nil
	})
}

func (d *Dimension) declaredValues() *AllowedValues {
	list := newAllowedValues()
	for _, raw := range d.declared {
		if v, ok := raw.(*DimensionValue); ok {
			if v.dimension == nil {
				v = v.adoptedBy(d)
			}
			list.append(v)
			continue
		}
		list.append(NewDimensionValue(raw, d))
	}
	return list
}

func (d *Dimension) declaredLabel(id string) (string, bool) {
	for _, raw := range d.declared {
		if v, ok := raw.(*DimensionValue); ok && v.ID() == id {
			return v.label, true
		}
	}
	return "", false
}

func (d *Dimension) owner() *Cursor {
	if d.dataset == nil {
		return nil
	}
	return d.dataset.cursor
}

// DimensionValue is a value tagged with the dimension it belongs to.
type DimensionValue struct {
	uid            uuid.UUID
	value          any
	label          string
	dimensionID    string
	dimensionLabel string
	datatype       *datatype.Datatype
	dimension      *Dimension
}

// ValueOption customises a DimensionValue at construction.
type ValueOption func(*DimensionValue)

// WithValueLabel sets the label of a value.
func WithValueLabel(label string) ValueOption {
	return func(v *DimensionValue) { v.label = label }
}

// NewDimensionValue returns value tagged with dim. Without an explicit label
// the label of a matching declared value is used, then the datatype label,
// else the value itself.
func NewDimensionValue(value any, dim *Dimension, opts ...ValueOption) *DimensionValue {
	v := &DimensionValue{uid: uuid.New(), value: value, dimension: dim}
	if dim != nil {
		v.dimensionID = dim.id
		v.dimensionLabel = dim.label
		v.datatype = dim.datatype
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.label == "" && dim != nil {
		v.label, _ = dim.declaredLabel(v.ID())
	}
	if v.label == "" {
		if known, ok := v.datatype.Value(v.ID()); ok {
			v.label = known.Label
		} else {
			v.label = v.ID()
		}
	}
	return v
}

// ID returns the value in string form.
func (v *DimensionValue) ID() string { return fmt.Sprint(v.value) }

func (v *DimensionValue) Value() any                   { return v.value }
func (v *DimensionValue) Label() string                { return v.label }
func (v *DimensionValue) UID() uuid.UUID               { return v.uid }
func (v *DimensionValue) DimensionID() string          { return v.dimensionID }
func (v *DimensionValue) DimensionLabel() string       { return v.dimensionLabel }
func (v *DimensionValue) Datatype() *datatype.Datatype { return v.datatype }
func (v *DimensionValue) Dimension() *Dimension        { return v.dimension }
func (v *DimensionValue) String() string               { return v.ID() }

// AllowedValues returns the allowed values of the owning dimension.
func (v *DimensionValue) AllowedValues(ctx context.Context) (*AllowedValues, error) {
	if v.dimension == nil {
		return newAllowedValues(), nil
	}
	return v.dimension.AllowedValues(ctx)
}

// Translate returns the representation of v in dialect according to its
// datatype.
func (v *DimensionValue) Translate(dialect string) (string, bool) {
	return v.datatype.Translate(v.value, dialect)
}

// Equal reports whether both values carry the same value for the same
// dimension.
func (v *DimensionValue) Equal(other *DimensionValue) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.dimensionID == other.dimensionID && v.ID() == other.ID()
}

func (v *DimensionValue) adoptedBy(d *Dimension) *DimensionValue {
	cp := v.clone()
	cp.dimension = d
	cp.dimensionID = d.id
	cp.dimensionLabel = d.label
	if cp.datatype == nil {
		cp.datatype = d.datatype
	}
	return cp
}

func (v *DimensionValue) clone() *DimensionValue {
	cp := *v
	cp.uid = uuid.New()
	return &cp
}
