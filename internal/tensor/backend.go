package tensor

// Backend defines the raw operations a compute backend must provide.
//
// Ops validate shapes and panic with an "op: message" string on misuse.
// Callers that need errors recover at their API boundary.
//
// Implementations:
//   - cpu: pure Go, row-parallel
//   - webgpu: WGSL compute kernels for matrix products, cpu for the rest
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul multiplies 2D tensors: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// BatchMatMul multiplies 3D or 4D tensors over their leading dimensions.
	// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
	// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor

	Rsqrt(x *RawTensor) *RawTensor
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// Indexing
	Embedding(weight, indices *RawTensor) *RawTensor
	IndexSelect(x *RawTensor, dim int, index *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
