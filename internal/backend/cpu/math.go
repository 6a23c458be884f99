package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/n2s/internal/tensor"
)

func (cpu *CPUBackend) unaryFloat32(op string, x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, x.DType()))
	}
	result := tensor.MustNewRaw(op, x.Shape(), tensor.Float32, cpu.device)
	dst, src := result.AsFloat32(), x.AsFloat32()
	for i, v := range src {
		dst[i] = f(v)
	}
	return result
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unaryFloat32("mul_scalar", x, func(v float32) float32 { return v * scalar })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unaryFloat32("add_scalar", x, func(v float32) float32 { return v + scalar })
}

// Rsqrt computes 1/sqrt(x).
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat32("rsqrt", x, func(v float32) float32 {
		return float32(1 / math.Sqrt(float64(v)))
	})
}

// ReLU computes max(0, x).
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat32("relu", x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// GELU computes the exact (erf based) Gaussian error linear unit used by BERT.
func (cpu *CPUBackend) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat32("gelu", x, func(v float32) float32 {
		f := float64(v)
		return float32(0.5 * f * (1 + math.Erf(f/math.Sqrt2)))
	})
}

// Tanh computes the hyperbolic tangent.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat32("tanh", x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}
