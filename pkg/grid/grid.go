// Package grid provides rank-N arrays whose dimensions may start at any lower
// bound. Grids implement clone.MultiArray, so the clone engine copies them
// cell by cell instead of walking their fields.
package grid

import (
	"fmt"
	"reflect"

	"github.com/openfroyo/deepclone/pkg/classify"
)

// Grid is a dense rank-N array stored in row-major order.
type Grid[T any] struct {
	lengths []int
	lower   []int
	strides []int
	data    []T
}

// New creates a zero-filled grid. lowerBounds may be nil for zero-based
// dimensions; otherwise it must have one entry per dimension.
func New[T any](lengths, lowerBounds []int) (*Grid[T], error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("grid needs at least one dimension")
	}
	if lowerBounds != nil && len(lowerBounds) != len(lengths) {
		return nil, fmt.Errorf("got %d lower bounds for %d dimensions", len(lowerBounds), len(lengths))
	}

	g := &Grid[T]{
		lengths: append([]int(nil), lengths...),
		lower:   make([]int, len(lengths)),
		strides: make([]int, len(lengths)),
	}
	if lowerBounds != nil {
		copy(g.lower, lowerBounds)
	}

	size := 1
	for d := len(lengths) - 1; d >= 0; d-- {
		if lengths[d] < 0 {
			return nil, fmt.Errorf("dimension %d has negative length %d", d, lengths[d])
		}
		g.strides[d] = size
		size *= lengths[d]
	}
	g.data = make([]T, size)
	return g, nil
}

// Rank returns the number of dimensions.
func (g *Grid[T]) Rank() int { return len(g.lengths) }

// Length returns the length of dimension dim.
func (g *Grid[T]) Length(dim int) int { return g.lengths[dim] }

// LowerBound returns the first valid index of dimension dim.
func (g *Grid[T]) LowerBound(dim int) int { return g.lower[dim] }

// Len returns the total number of cells.
func (g *Grid[T]) Len() int { return len(g.data) }

// At returns the cell at idx.
func (g *Grid[T]) At(idx ...int) T {
	return g.data[g.offset(idx)]
}

// Set stores v at idx.
func (g *Grid[T]) Set(v T, idx ...int) {
	g.data[g.offset(idx)] = v
}

// ElemType implements classify.MultiArray.
func (g *Grid[T]) ElemType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Elem implements classify.MultiArray.
func (g *Grid[T]) Elem(index []int) reflect.Value {
	return reflect.ValueOf(&g.data[g.offset(index)]).Elem()
}

// Like implements classify.MultiArray.
func (g *Grid[T]) Like() classify.MultiArray {
	out, _ := New[T](g.lengths, g.lower)
	return out
}

func (g *Grid[T]) offset(idx []int) int {
	if len(idx) != len(g.lengths) {
		panic(fmt.Sprintf("grid: got %d indices for rank %d", len(idx), len(g.lengths)))
	}
	off := 0
	for d, i := range idx {
		rel := i - g.lower[d]
		if rel < 0 || rel >= g.lengths[d] {
			panic(fmt.Sprintf("grid: index %d out of range [%d, %d) in dimension %d",
				i, g.lower[d], g.lower[d]+g.lengths[d], d))
		}
		off += rel * g.strides[d]
	}
	return off
}
