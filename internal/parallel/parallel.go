// Package parallel splits index ranges across goroutines for the CPU kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a range is split. The zero value runs serially.
type Config struct {
	Enabled      bool
	NumWorkers   int
	MinChunkSize int // smallest number of indices handed to one goroutine
}

// DefaultConfig uses one worker per CPU and chunks of at least 16 rows.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{Enabled: n > 1, NumWorkers: n, MinChunkSize: 16}
}

// WithMinChunk returns a copy of c with a different minimum chunk size.
// Batched kernels use 1 so that every batch item can run on its own worker.
func (c Config) WithMinChunk(n int) Config {
	c.MinChunkSize = n
	return c
}

// chunkSize returns 0 when [0, n) should run on the calling goroutine.
func (c Config) chunkSize(n int) int {
	if !c.Enabled || c.NumWorkers < 2 || n < max(c.MinChunkSize, 2) {
		return 0
	}
	return max((n+c.NumWorkers-1)/c.NumWorkers, c.MinChunkSize, 1)
}

// ForChunks calls f on disjoint [start, end) ranges covering [0, n) and
// waits for all of them.
func ForChunks(n int, f func(start, end int), cfg Config) {
	size := cfg.chunkSize(n)
	if size == 0 {
		if n > 0 {
			f(0, n)
		}
		return
	}
	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, min(start+size, n))
	}
	wg.Wait()
}

// For calls f(i) exactly once for every i in [0, n). f must be safe to
// call concurrently.
func For(n int, f func(i int), cfg Config) {
	ForChunks(n, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cfg)
}
