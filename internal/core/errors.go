package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchItem is returned when a lookup by position, id or identity
	// finds nothing.
	ErrNoSuchItem = errors.New("no such item")
	// ErrDatasetNotInView is returned when a dataset cannot be reached from
	// the current cursor position without an explicit path.
	ErrDatasetNotInView = errors.New("dataset not in view")
	// ErrInvalidData marks malformed data reported by or received from a source.
	ErrInvalidData = errors.New("invalid data")
	// ErrNotImplemented is returned by source contracts that were not provided.
	ErrNotImplemented = errors.New("not implemented")
	// ErrDetached is returned when an item is used before it was attached to
	// a parent collection.
	ErrDetached = errors.New("item is not attached to a tree")
	// ErrNoParent is returned when asking the root collection for its parent.
	ErrNoParent = errors.New("root collection has no parent")
	// ErrNotDataset is returned when a dataset operation targets a collection.
	ErrNotDataset = errors.New("item is not a dataset")
)

// LookupError describes a failed lookup against an ordered list.
type LookupError struct {
	List string
	Key  any
}

func (e *LookupError) Error() string {
	switch k := e.Key.(type) {
	case int:
		return fmt.Sprintf("%s: index %d out of range", e.List, k)
	case fmt.Stringer:
		return fmt.Sprintf("%s: no element %s", e.List, k.String())
	default:
		return fmt.Sprintf("%s: no element %v", e.List, k)
	}
}

// Unwrap lets errors.Is match ErrNoSuchItem.
func (e *LookupError) Unwrap() error { return ErrNoSuchItem }
