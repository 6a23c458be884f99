//go:build !windows

package webgpu

import (
	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/tensor"
)

// Backend is the accelerator backend. On this platform it cannot be constructed.
type Backend struct {
	*cpu.CPUBackend
}

// New always fails with ErrUnavailable on this platform.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports whether a WebGPU adapter can be opened.
func IsAvailable() bool {
	return false
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Device returns tensor.WebGPU.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// AdapterName describes the GPU in use.
func (b *Backend) AdapterName() string {
	return ""
}

// Release frees GPU resources.
func (b *Backend) Release() {}
