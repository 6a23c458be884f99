//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/tensor"
)

// Backend runs matrix products on the GPU and delegates everything else to
// the embedded CPU backend. Shader and pipeline caches are guarded by mu;
// queue submission is serialized by submitMu.
type Backend struct {
	*cpu.CPUBackend

	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	adapterName string

	mu        sync.RWMutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline

	submitMu sync.Mutex
}

// New opens the high-performance adapter and its default queue.
// A missing wgpu_native library is reported as ErrUnavailable.
func New() (backend *Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", ErrUnavailable, err)
	}
	info := adapter.GetInfo()

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrUnavailable, err)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no default queue", ErrUnavailable)
	}

	return &Backend{
		CPUBackend:  cpu.New(),
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterName: strings.TrimSpace(info.Vendor + " " + info.Device),
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// IsAvailable reports whether a WebGPU adapter can be opened.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
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
	return b.adapterName
}

// Release frees cached pipelines, shaders and the device.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	for _, s := range b.shaders {
		s.Release()
	}
	b.pipelines = map[string]*wgpu.ComputePipeline{}
	b.shaders = map[string]*wgpu.ShaderModule{}

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// MatMul performs [M, K] @ [K, N] on the GPU.
func (b *Backend) MatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	aShape, oShape := a.Shape(), other.Shape()
	if len(aShape) != 2 || len(oShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(oShape)))
	}
	m, k, n := aShape[0], aShape[1], oShape[1]
	if oShape[0] != k {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, oShape[0], n))
	}
	if m == 0 || n == 0 || k == 0 {
		return b.CPUBackend.MatMul(a, other).WithDevice(tensor.WebGPU)
	}

	result, err := b.runMatMul(a, other, 1, m, k, n, tensor.Shape{m, n})
	if err != nil {
		panic(fmt.Sprintf("matmul: %v", err))
	}
	return result
}

// BatchMatMul performs batched products of 3D or 4D tensors on the GPU.
func (b *Backend) BatchMatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	aShape, oShape := a.Shape(), other.Shape()
	ndim := len(aShape)
	if ndim < 3 || ndim > 4 || len(oShape) != ndim {
		panic(fmt.Sprintf("batchmatmul: inputs must be matching 3D or 4D tensors, got %v and %v", aShape, oShape))
	}
	batch := 1
	for i := 0; i < ndim-2; i++ {
		if aShape[i] != oShape[i] {
			panic(fmt.Sprintf("batchmatmul: batch dimension mismatch at dim %d: %d vs %d", i, aShape[i], oShape[i]))
		}
		batch *= aShape[i]
	}
	m, k, n := aShape[ndim-2], aShape[ndim-1], oShape[ndim-1]
	if oShape[ndim-2] != k {
		panic(fmt.Sprintf("batchmatmul: inner dimension mismatch: %d vs %d", k, oShape[ndim-2]))
	}
	if batch == 0 || m == 0 || n == 0 || k == 0 {
		return b.CPUBackend.BatchMatMul(a, other).WithDevice(tensor.WebGPU)
	}

	outShape := append(aShape[:ndim-2:ndim-2], m, n)
	result, err := b.runMatMul(a, other, batch, m, k, n, outShape)
	if err != nil {
		panic(fmt.Sprintf("batchmatmul: %v", err))
	}
	return result
}

func (b *Backend) runMatMul(a, other *tensor.RawTensor, batch, m, k, n int, outShape tensor.Shape) (*tensor.RawTensor, error) {
	if a.DType() != tensor.Float32 || other.DType() != tensor.Float32 {
		return nil, fmt.Errorf("only float32 is supported, got %s", a.DType())
	}

	pipeline := b.pipeline("matmul", matmulShader)

	bufferA := b.createBuffer(a.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferA.Release()
	bufferB := b.createBuffer(other.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferB.Release()

	resultSize := uint64(batch * m * n * 4) //nolint:gosec // G115: dimensions are non-negative
	bufferResult := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufferResult.Release()

	params := make([]byte, 0, 16)
	for _, d := range []int{batch, m, k, n} {
		params = binary.LittleEndian.AppendUint32(params, uint32(d)) //nolint:gosec // G115: dimensions are non-negative and fit u32
	}
	bufferParams := b.createBuffer(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer bufferParams.Release()

	//nolint:gosec // G115: ByteSize is non-negative
	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, uint64(a.ByteSize())),
		wgpu.BufferBindingEntry(1, bufferB, 0, uint64(other.ByteSize())),
		wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferParams, 0, 16),
	})
	defer bindGroup.Release()

	b.submitMu.Lock()
	defer b.submitMu.Unlock()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groups(n, tileSize), groups(m, tileSize), uint32(batch)) //nolint:gosec // G115
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	data, err := b.readBuffer(bufferResult, resultSize)
	if err != nil {
		return nil, err
	}

	result, err := tensor.NewRaw(outShape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(result.Data(), data)
	return result, nil
}

func groups(n, size int) uint32 {
	return uint32((n + size - 1) / size) //nolint:gosec // G115: n is non-negative
}

// pipeline returns the cached compute pipeline for name, compiling it on first use.
func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	p, ok := b.pipelines[name]
	b.mu.RUnlock()
	if ok {
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[name]; ok {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	b.shaders[name] = shader
	p = b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[name] = p
	return p
}

// createBuffer uploads data into a new buffer. Sizes are rounded up to 16 bytes
// so the same helper serves uniform buffers.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice over the mapped range returned by wgpu
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a storage buffer back to host memory through a staging buffer.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, size)
	out := make([]byte, size)
	//nolint:gosec // unsafe.Slice over the mapped range returned by wgpu
	copy(out, unsafe.Slice((*byte)(mapped), size))
	staging.Unmap()
	return out, nil
}
