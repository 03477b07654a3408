package core

import (
	"iter"

	"github.com/google/uuid"
)

type identified interface {
	UID() uuid.UUID
}

// List is an insertion-ordered collection. Elements can be looked up by
// position, by id or by identity. The zero value is an empty list.
type List[T identified] struct {
	name  string
	elems []T
	keys  func(T) []string
}

func newList[T identified](name string, keys func(T) []string) List[T] {
	return List[T]{name: name, keys: keys}
}

// Len returns the number of elements.
func (l *List[T]) Len() int {
	return len(l.elems)
}

// At returns the element at position i.
func (l *List[T]) At(i int) (T, error) {
	if i < 0 || i >= len(l.elems) {
		var zero T
		return zero, &LookupError{List: l.label(), Key: i}
	}
	return l.elems[i], nil
}

// ByID returns the first element matching id.
func (l *List[T]) ByID(id string) (T, error) {
	for _, e := range l.elems {
		for _, k := range l.keys(e) {
			if k == id {
				return e, nil
			}
		}
	}
	var zero T
	return zero, &LookupError{List: l.label(), Key: id}
}

// Get resolves key as a position (int), an id (string) or an identity (the
// element itself or its uuid.UUID).
func (l *List[T]) Get(key any) (T, error) {
	switch k := key.(type) {
	case int:
		return l.At(k)
	case string:
		return l.ByID(k)
	case uuid.UUID:
		return l.byUID(k)
	case T:
		return l.byUID(k.UID())
	default:
		var zero T
		return zero, &LookupError{List: l.label(), Key: key}
	}
}

// Contains reports whether Get would succeed for key.
func (l *List[T]) Contains(key any) bool {
	_, err := l.Get(key)
	return err == nil
}

// All iterates over the elements in order.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, e := range l.elems {
			if !yield(e) {
				return
			}
		}
	}
}

// Slice returns a copy of the elements.
func (l *List[T]) Slice() []T {
	out := make([]T, len(l.elems))
	copy(out, l.elems)
	return out
}

func (l *List[T]) byUID(uid uuid.UUID) (T, error) {
	for _, e := range l.elems {
		if e.UID() == uid {
			return e, nil
		}
	}
	var zero T
	return zero, &LookupError{List: l.label(), Key: uid}
}

func (l *List[T]) append(e T) {
	l.elems = append(l.elems, e)
}

func (l *List[T]) label() string {
	if l.name == "" {
		return "list"
	}
	return l.name
}

// ItemList holds the children of a collection.
type ItemList struct {
	List[Item]
}

func newItemList() *ItemList {
	return &ItemList{List: newList("items", func(i Item) []string { return []string{i.ID()} })}
}

// Kind reports the kind of the first item, or the empty Kind when the list
// is empty.
func (l *ItemList) Kind() Kind {
	first, err := l.At(0)
	if err != nil {
		return ""
	}
	return first.Kind()
}

// DimensionList holds the dimensions of a dataset.
type DimensionList struct {
	List[*Dimension]
}

func newDimensionList() *DimensionList {
	return &DimensionList{List: newList("dimensions", func(d *Dimension) []string { return []string{d.ID()} })}
}

// AllowedValues holds the values a dimension accepts. Values are looked up
// by their id first, then by their label.
type AllowedValues struct {
	List[*DimensionValue]
}

func newAllowedValues() *AllowedValues {
	return &AllowedValues{List: newList("allowed values", func(v *DimensionValue) []string {
		return []string{v.ID(), v.Label()}
	})}
}

// ByID returns the value whose id matches key, falling back to the first
// value whose label matches.
func (a *AllowedValues) ByID(key string) (*DimensionValue, error) {
	for v := range a.All() {
		if v.ID() == key {
			return v, nil
		}
	}
	for v := range a.All() {
		if v.Label() == key {
			return v, nil
		}
	}
	return nil, &LookupError{List: a.label(), Key: key}
}

// Get resolves key like List.Get, using the id-then-label rule for strings.
func (a *AllowedValues) Get(key any) (*DimensionValue, error) {
	if s, ok := key.(string); ok {
		return a.ByID(s)
	}
	return a.List.Get(key)
}

// Contains reports whether Get would succeed for key.
func (a *AllowedValues) Contains(key any) bool {
	_, err := a.Get(key)
	return err == nil
}

// ValueList holds the resolved dimension values of a result, keyed by
// dimension id.
type ValueList struct {
	List[*DimensionValue]
}

func newValueList() *ValueList {
	return &ValueList{List: newList("dimension values", func(v *DimensionValue) []string {
		return []string{v.DimensionID()}
	})}
}
