package cpu

import (
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
)

// Reshape returns a view of t with a new shape. At most one dimension may be -1.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return t.WithShape(inferShape(t.NumElements(), newShape))
}

func inferShape(numElements int, shape tensor.Shape) tensor.Shape {
	out := shape.Clone()
	inferred := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1:
			if inferred >= 0 {
				panic(fmt.Sprintf("reshape: only one dimension can be -1, got %v", shape))
			}
			inferred = i
		case d < 0:
			panic(fmt.Sprintf("reshape: invalid dimension %d in %v", d, shape))
		default:
			known *= d
		}
	}
	if inferred >= 0 {
		if known == 0 || numElements%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension for %d elements into %v", numElements, shape))
		}
		out[inferred] = numElements / known
	}
	if out.NumElements() != numElements {
		panic(fmt.Sprintf("reshape: %d elements cannot be viewed as %v", numElements, shape))
	}
	return out
}

// Transpose permutes the dimensions of t.
// With no axes, the last two dimensions are swapped.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		if ndim < 2 {
			panic(fmt.Sprintf("transpose: need at least 2 dimensions, got %dD", ndim))
		}
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = i
		}
		axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %dD tensor", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		ax = tensor.NormalizeDim("transpose", ax, ndim)
		if seen[ax] {
			panic(fmt.Sprintf("transpose: repeated axis %d", ax))
		}
		seen[ax] = true
		axes[i] = ax
		outShape[i] = shape[ax]
	}

	result := tensor.MustNewRaw("transpose", outShape, t.DType(), cpu.device)
	inStrides := t.Strides()
	outStrides := outShape.ComputeStrides()

	// permStrides[i] is the input stride walked when output dim i advances.
	permStrides := make([]int, ndim)
	for i, ax := range axes {
		permStrides[i] = inStrides[ax]
	}

	elem := t.DType().Size()
	src, dst := t.Data(), result.Data()
	for i := 0; i < result.NumElements(); i++ {
		j := flatIndex(i, outStrides, permStrides)
		copy(dst[i*elem:(i+1)*elem], src[j*elem:(j+1)*elem])
	}
	return result
}
