package core

import (
	"context"
	"fmt"
	"iter"
)

// Source supplies the tree's content. Every method returns a lazy sequence;
// the engine stops pulling at the first error. Sources must not call back
// into the cache they are filling (for example fetching the dataset whose
// rows they are producing).
type Source interface {
	// Children yields the items directly below c. The root collection has
	// ID RootID.
	Children(ctx context.Context, c *Collection) iter.Seq2[Item, error]
	// Dimensions yields the declared dimensions of d.
	Dimensions(ctx context.Context, d *Dataset) iter.Seq2[*Dimension, error]
	// AllowedValues yields the values dim accepts when neither the
	// dimension nor its datatype declares them.
	AllowedValues(ctx context.Context, dim *Dimension) iter.Seq2[*DimensionValue, error]
	// Rows yields the results of d matching q.
	Rows(ctx context.Context, d *Dataset, q Query) iter.Seq2[*Result, error]
}

// UnimplementedSource reports ErrNotImplemented for every contract. Embed it
// to provide only some of them.
type UnimplementedSource struct{}

func (UnimplementedSource) Children(context.Context, *Collection) iter.Seq2[Item, error] {
	return Failed[Item](fmt.Errorf("children: %w", ErrNotImplemented))
}

func (UnimplementedSource) Dimensions(context.Context, *Dataset) iter.Seq2[*Dimension, error] {
	return Failed[*Dimension](fmt.Errorf("dimensions: %w", ErrNotImplemented))
}

func (UnimplementedSource) AllowedValues(context.Context, *Dimension) iter.Seq2[*DimensionValue, error] {
	return Failed[*DimensionValue](fmt.Errorf("allowed values: %w", ErrNotImplemented))
}

func (UnimplementedSource) Rows(context.Context, *Dataset, Query) iter.Seq2[*Result, error] {
	return Failed[*Result](fmt.Errorf("rows: %w", ErrNotImplemented))
}

// Values returns a sequence over vs.
func Values[T any](vs ...T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, v := range vs {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Failed returns a sequence yielding only err.
func Failed[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
