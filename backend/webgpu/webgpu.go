// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend. Matrix products run on the
// GPU; the remaining ops share host buffers with the CPU backend.
//
// Example:
//
//	var backend tensor.Backend
//	if webgpu.IsAvailable() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/n2s/internal/backend/webgpu"
	"github.com/born-ml/n2s/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ErrUnavailable is returned by New when no adapter or native library
// can be used.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// New creates a WebGPU backend. Call Release when done to free GPU resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be initialized.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
