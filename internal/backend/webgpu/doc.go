// Package webgpu implements the accelerator backend.
//
// Matrix products (MatMul, BatchMatMul) run as WGSL compute kernels through
// go-webgpu (github.com/go-webgpu/webgpu); every other op is served by the
// embedded CPU backend on the same host buffers. The native path is built on
// windows, where wgpu_native is loaded without cgo. On other platforms New
// reports ErrUnavailable.
package webgpu

import "errors"

// ErrUnavailable is returned when no WebGPU adapter or native library can be used.
var ErrUnavailable = errors.New("webgpu: not available")
