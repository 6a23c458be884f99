package cpu

import (
	"fmt"

	"github.com/born-ml/n2s/internal/parallel"
	"github.com/born-ml/n2s/internal/tensor"
)

// MatMul performs matrix multiplication.
// For 2D tensors: (M, K) @ (K, N) -> (M, N). Rows of the output are computed in parallel.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}

	result := tensor.MustNewRaw("matmul", tensor.Shape{m, n}, tensor.Float32, cpu.device)
	matmulFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n, cpu.parallel)
	return result
}

// matmulFloat32 computes C = A @ B with an i-k-j loop so the inner loop walks
// contiguous memory in both B and C.
func matmulFloat32(c, a, b []float32, m, k, n int, cfg parallel.Config) {
	parallel.For(m, func(i int) {
		row := c[i*n : (i+1)*n]
		for j := range row {
			row[j] = 0
		}
		for kk := 0; kk < k; kk++ {
			av := a[i*k+kk]
			if av == 0 {
				continue
			}
			bRow := b[kk*n : (kk+1)*n]
			for j, bv := range bRow {
				row[j] += av * bv
			}
		}
	}, cfg)
}

// BatchMatMul performs batched matrix multiplication.
//
// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
//
// All leading dimensions must match.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()
	ndim := len(aShape)

	if ndim < 3 || ndim > 4 {
		panic(fmt.Sprintf("batchmatmul: inputs must be 3D or 4D, got %dD", ndim))
	}
	if len(bShape) != ndim {
		panic(fmt.Sprintf("batchmatmul: dimension mismatch, got %dD and %dD", ndim, len(bShape)))
	}
	for i := 0; i < ndim-2; i++ {
		if aShape[i] != bShape[i] {
			panic(fmt.Sprintf("batchmatmul: batch dimension mismatch at dim %d: %d vs %d", i, aShape[i], bShape[i]))
		}
	}

	m, k := aShape[ndim-2], aShape[ndim-1]
	k2, n := bShape[ndim-2], bShape[ndim-1]
	if k != k2 {
		panic(fmt.Sprintf("batchmatmul: inner dimension mismatch: %d vs %d", k, k2))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("batchmatmul: unsupported dtype %s", a.DType()))
	}

	batch := 1
	for i := 0; i < ndim-2; i++ {
		batch *= aShape[i]
	}

	outShape := make(tensor.Shape, ndim)
	copy(outShape, aShape[:ndim-2])
	outShape[ndim-2] = m
	outShape[ndim-1] = n
	result := tensor.MustNewRaw("batchmatmul", outShape, tensor.Float32, cpu.device)

	aData, bData, cData := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
	serial := parallel.Config{}
	parallel.For(batch, func(i int) {
		matmulFloat32(
			cData[i*m*n:(i+1)*m*n],
			aData[i*m*k:(i+1)*m*k],
			bData[i*k*n:(i+1)*k*n],
			m, k, n, serial)
	}, cpu.parallel.WithMinChunk(1))

	return result
}
