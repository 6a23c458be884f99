// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the tensor types used by the n2s model.
//
// Tensors are generic over their element type and compute backend:
//
//	backend := cpu.New()
//	ids, err := tensor.FromSlice([]int32{2, 10, 11, 3}, tensor.Shape{1, 4}, backend)
//	mask := tensor.Full[int32](tensor.Shape{1, 4}, 1, backend)
package tensor

import (
	"github.com/born-ml/n2s/internal/tensor"
)

// DType is a constraint for tensor element types: float32, int32, int64, bool.
type DType = tensor.DType

// DataType represents the runtime element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Bool    DataType = tensor.Bool
)

// Device identifies where tensor computation runs.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Backend is implemented by compute backends (backend/cpu, backend/webgpu).
type Backend = tensor.Backend

// RawTensor is the untyped tensor representation used by backends and
// state dicts.
type RawTensor = tensor.RawTensor

// Tensor is a typed tensor bound to a backend.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T, B](shape, b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full[T, B](shape, value, b)
}

// FromSlice creates a tensor from a Go slice. len(data) must equal the
// number of elements in shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice[T, B](data, shape, b)
}

// NewRaw creates a zeroed raw tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// NonZero returns the flat indices of the non-zero elements of mask.
//
// Example:
//
//	header, _ := tensor.FromSlice([]int32{0, 1, 0, 1}, tensor.Shape{2, 2}, backend)
//	idx := tensor.NonZero(header) // [1, 3]
func NonZero[T DType, B Backend](mask *Tensor[T, B]) *Tensor[int32, B] {
	return tensor.NonZero(mask)
}
