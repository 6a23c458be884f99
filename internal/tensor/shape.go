package tensor

import (
	"fmt"
	"slices"
)

// Shape lists tensor dimensions, outermost first. A nil or empty Shape is a
// scalar. Zero-sized dimensions are legal: [0, 768] is an empty batch of
// header rows.
type Shape []int

// NumElements returns the product of the dimensions, 1 for a scalar.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate rejects negative dimensions.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d < 0 }); i >= 0 {
		return fmt.Errorf("dimension %d is negative: %d", i, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool { return slices.Equal(s, other) }

// Clone returns a copy that never aliases s, even when s is nil.
func (s Shape) Clone() Shape {
	return append(make(Shape, 0, len(s)), s...)
}

// ComputeStrides returns row-major element strides.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	stride := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= s[i]
	}
	return strides
}

// NormalizeDim resolves a possibly negative dimension index against rank.
// Panics with an "op: ..." message when the index is out of range.
func NormalizeDim(op string, dim, rank int) int {
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("%s: dim %d out of range for %dD tensor", op, dim, rank))
	}
	return dim
}

// BroadcastShapes aligns a and b from the right, treating missing leading
// dimensions as 1. Each dimension pair must be equal or contain a 1. The
// boolean reports whether either input has to be expanded.
//
//	[B, 1, 1, S] with [B, heads, S, S] → [B, heads, S, S], true
//	[N, H] with [H]                     → [N, H], true
//	[3, 4] with [3, 5]                  → error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	rank := max(len(a), len(b))
	out := make(Shape, rank)
	expand := len(a) != len(b)
	for i := 1; i <= rank; i++ {
		da, db := dimFromRight(a, i), dimFromRight(b, i)
		switch {
		case da == db:
			out[rank-i] = da
		case da == 1:
			out[rank-i], expand = db, true
		case db == 1:
			out[rank-i], expand = da, true
		default:
			return nil, false, fmt.Errorf("cannot broadcast %v with %v: dim %d is %d vs %d", a, b, rank-i, da, db)
		}
	}
	return out, expand, nil
}

func dimFromRight(s Shape, i int) int {
	if i > len(s) {
		return 1
	}
	return s[len(s)-i]
}
