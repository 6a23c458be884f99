package webgpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/tensor"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New()
	if err != nil {
		require.True(t, errors.Is(err, ErrUnavailable), "unexpected error: %v", err)
		t.Skipf("WebGPU not available: %v", err)
	}
	t.Cleanup(b.Release)
	return b
}

func TestBackend_Metadata(t *testing.T) {
	b := newBackend(t)
	assert.Equal(t, "WebGPU", b.Name())
	assert.Equal(t, tensor.WebGPU, b.Device())
}

func TestBackend_MatMulMatchesCPU(t *testing.T) {
	b := newBackend(t)
	host := cpu.New()

	a := tensor.MustFromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, host)
	w := tensor.MustFromSlice([]float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2}, host)

	got := b.MatMul(a.Raw(), w.Raw())
	assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
	assert.InDeltaSlice(t, []float32{58, 64, 139, 154}, got.AsFloat32(), 1e-4)
}

func TestBackend_BatchMatMulMatchesCPU(t *testing.T) {
	b := newBackend(t)
	host := cpu.New()

	a := tensor.MustFromSlice([]float32{1, 0, 0, 1, 2, 0, 0, 2}, tensor.Shape{2, 2, 2}, host)
	x := tensor.MustFromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 2, 2}, host)

	want := host.BatchMatMul(a.Raw(), x.Raw())
	got := b.BatchMatMul(a.Raw(), x.Raw())
	assert.Equal(t, want.Shape(), got.Shape())
	assert.InDeltaSlice(t, want.AsFloat32(), got.AsFloat32(), 1e-4)
}

func TestBackend_EmptyMatMul(t *testing.T) {
	b := newBackend(t)
	host := cpu.New()

	a := tensor.Zeros[float32](tensor.Shape{0, 4}, host)
	w := tensor.Zeros[float32](tensor.Shape{4, 3}, host)

	got := b.MatMul(a.Raw(), w.Raw())
	assert.Equal(t, tensor.Shape{0, 3}, got.Shape())
}

func TestIsAvailableConsistentWithNew(t *testing.T) {
	if !IsAvailable() {
		_, err := New()
		assert.Error(t, err)
	}
}
