package cpu

import (
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
)

// Embedding gathers rows of weight ([vocab, dim]) for every index.
// Output shape is indices.Shape() + [dim].
func (cpu *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	wShape := weight.Shape()
	if len(wShape) != 2 {
		panic(fmt.Sprintf("embedding: weight must be 2D, got %v", wShape))
	}
	if indices.DType() != tensor.Int32 {
		panic(fmt.Sprintf("embedding: indices must be int32, got %s", indices.DType()))
	}
	vocab, dim := wShape[0], wShape[1]

	outShape := append(indices.Shape().Clone(), dim)
	result := tensor.MustNewRaw("embedding", outShape, weight.DType(), cpu.device)

	elem := weight.DType().Size()
	row := dim * elem
	src, dst := weight.Data(), result.Data()
	for i, idx := range indices.AsInt32() {
		if idx < 0 || int(idx) >= vocab {
			panic(fmt.Sprintf("embedding: index %d out of range [0, %d)", idx, vocab))
		}
		copy(dst[i*row:(i+1)*row], src[int(idx)*row:(int(idx)+1)*row])
	}
	return result
}

// IndexSelect picks slices of x along dim in the order given by a 1D int32 index.
// An empty index yields a tensor whose dim has size 0.
func (cpu *CPUBackend) IndexSelect(x *tensor.RawTensor, dim int, index *tensor.RawTensor) *tensor.RawTensor {
	if index.DType() != tensor.Int32 {
		panic(fmt.Sprintf("index_select: index must be int32, got %s", index.DType()))
	}
	if len(index.Shape()) != 1 {
		panic(fmt.Sprintf("index_select: index must be 1D, got %v", index.Shape()))
	}
	shape := x.Shape()
	dim = tensor.NormalizeDim("index_select", dim, len(shape))
	outer, size, inner := splitAt(shape, dim)

	idx := index.AsInt32()
	outShape := shape.Clone()
	outShape[dim] = len(idx)
	result := tensor.MustNewRaw("index_select", outShape, x.DType(), cpu.device)

	chunk := inner * x.DType().Size()
	src, dst := x.Data(), result.Data()
	for o := 0; o < outer; o++ {
		for j, i := range idx {
			if i < 0 || int(i) >= size {
				panic(fmt.Sprintf("index_select: index %d out of range [0, %d)", i, size))
			}
			from := (o*size + int(i)) * chunk
			to := (o*len(idx) + j) * chunk
			copy(dst[to:to+chunk], src[from:from+chunk])
		}
	}
	return result
}
