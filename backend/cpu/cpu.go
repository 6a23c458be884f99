// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
package cpu

import (
	internalcpu "github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/parallel"
	"github.com/born-ml/n2s/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend that uses all available cores.
//
// Example:
//
//	backend := cpu.New()
//	model, err := m1.Load(ctx, "hfl/chinese-roberta-wwm-ext", m1.NewResolver(cacheDir), backend)
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend limited to the given number of
// worker goroutines. Values below 1 mean one worker.
func NewWithWorkers(workers int) *Backend {
	cfg := parallel.DefaultConfig()
	cfg.NumWorkers = max(workers, 1)
	return internalcpu.NewWithConfig(cfg)
}
