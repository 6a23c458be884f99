package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/n2s/internal/tensor"
)

// splitAt decomposes shape around dim into (outer, size, inner) extents.
func splitAt(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}

func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	out := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		switch {
		case i != dim:
			out = append(out, d)
		case keepDim:
			out = append(out, 1)
		}
	}
	return out
}

// MeanDim averages along dim.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("meandim: unsupported dtype %s", x.DType()))
	}
	shape := x.Shape()
	dim = tensor.NormalizeDim("meandim", dim, len(shape))
	outer, size, inner := splitAt(shape, dim)

	result := tensor.MustNewRaw("meandim", reducedShape(shape, dim, keepDim), tensor.Float32, cpu.device)
	src, dst := x.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var sum float32
			for s := 0; s < size; s++ {
				sum += src[(o*size+s)*inner+in]
			}
			dst[o*inner+in] = sum / float32(size)
		}
	}
	return result
}

// Softmax normalizes along dim using the max-subtraction form.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}
	shape := x.Shape()
	dim = tensor.NormalizeDim("softmax", dim, len(shape))
	outer, size, inner := splitAt(shape, dim)

	result := tensor.MustNewRaw("softmax", shape, tensor.Float32, cpu.device)
	src, dst := x.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			at := func(s int) int { return (o*size+s)*inner + in }

			maxVal := float32(math.Inf(-1))
			for s := 0; s < size; s++ {
				maxVal = max(maxVal, src[at(s)])
			}
			var sum float32
			for s := 0; s < size; s++ {
				e := float32(math.Exp(float64(src[at(s)] - maxVal)))
				dst[at(s)] = e
				sum += e
			}
			for s := 0; s < size; s++ {
				dst[at(s)] /= sum
			}
		}
	}
	return result
}

// Argmax returns the int32 index of the maximum along dim. Ties resolve to the lowest index.
func (cpu *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("argmax: unsupported dtype %s", x.DType()))
	}
	shape := x.Shape()
	dim = tensor.NormalizeDim("argmax", dim, len(shape))
	outer, size, inner := splitAt(shape, dim)
	if size == 0 {
		panic("argmax: cannot reduce an empty dimension")
	}

	result := tensor.MustNewRaw("argmax", reducedShape(shape, dim, false), tensor.Int32, cpu.device)
	src, dst := x.AsFloat32(), result.AsInt32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			best := 0
			bestVal := src[o*size*inner+in]
			for s := 1; s < size; s++ {
				if v := src[(o*size+s)*inner+in]; v > bestVal {
					best, bestVal = s, v
				}
			}
			dst[o*inner+in] = int32(best) //nolint:gosec // G115: dimension size fits int32
		}
	}
	return result
}
