package tensor

// NonZero returns the row-major flat positions of every non-zero element of
// mask as a 1D int32 tensor, in ascending order.
//
// For a [B, S] mask the position of element (b, s) is b*S + s, so selecting
// those rows from a [B*S, H] view yields them batch-major, then by position.
// An all-zero mask produces a tensor of shape [0].
func NonZero[T DType, B Backend](mask *Tensor[T, B]) *Tensor[int32, B] {
	var zero T
	idx := make([]int32, 0)
	for i, v := range mask.Data() {
		if v != zero {
			idx = append(idx, int32(i)) //nolint:gosec // G115: element count fits int32 for token batches
		}
	}
	return MustFromSlice(idx, Shape{len(idx)}, mask.backend)
}

// CountNonZero returns the number of non-zero elements in each row of a 2D mask.
func CountNonZero[T DType, B Backend](mask *Tensor[T, B]) []int {
	shape := mask.Shape()
	if len(shape) != 2 {
		panic("count_nonzero: expected 2D mask")
	}
	var zero T
	data := mask.Data()
	counts := make([]int, shape[0])
	for b := 0; b < shape[0]; b++ {
		for s := 0; s < shape[1]; s++ {
			if data[b*shape[1]+s] != zero {
				counts[b]++
			}
		}
	}
	return counts
}
