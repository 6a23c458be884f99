package tensor

import "fmt"

// Tensor is a RawTensor with a static element type T, bound to backend B.
// Every op dispatches to B and returns a new Tensor.
//
//	backend := cpu.New()
//	ids := tensor.MustFromSlice([]int32{2, 10, 11, 3}, Shape{1, 4}, backend)
//	hidden := weight.Embedding(ids) // [1, 4, H]
type Tensor[T DType, B Backend] struct {
	raw     *RawTensor
	backend B
}

// New wraps raw. The caller guarantees raw holds elements of type T.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return &Tensor[T, B]{raw: raw, backend: b}
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	if n := shape.NumElements(); n != len(data) {
		return nil, fmt.Errorf("from slice: shape %v holds %d elements, got %d", shape, n, len(data))
	}
	raw, err := NewRaw(shape, dataTypeOf[T](), b.Device())
	if err != nil {
		return nil, err
	}
	t := New[T, B](raw, b)
	copy(t.Data(), data)
	return t, nil
}

// MustFromSlice is FromSlice for inputs known to match; it panics otherwise.
func MustFromSlice[T DType, B Backend](data []T, shape Shape, b B) *Tensor[T, B] {
	t, err := FromSlice(data, shape, b)
	if err != nil {
		panic(err)
	}
	return t
}

// Shape returns the tensor's dimensions.
func (t *Tensor[T, B]) Shape() Shape { return t.raw.Shape() }

// DType returns the element type.
func (t *Tensor[T, B]) DType() DataType { return t.raw.DType() }

// Device returns the device holding the data.
func (t *Tensor[T, B]) Device() Device { return t.raw.Device() }

// NumElements returns the product of the dimensions.
func (t *Tensor[T, B]) NumElements() int { return t.raw.NumElements() }

// Raw returns the untyped storage. Writes through it are visible in t.
func (t *Tensor[T, B]) Raw() *RawTensor { return t.raw }

// Backend returns the backend that executes operations on t.
func (t *Tensor[T, B]) Backend() B { return t.backend }

// Clone returns a deep copy on the same backend.
func (t *Tensor[T, B]) Clone() *Tensor[T, B] { return New[T, B](t.raw.Clone(), t.backend) }

// Data returns the elements in row-major order. The slice aliases the
// tensor's storage.
func (t *Tensor[T, B]) Data() []T {
	var zero T
	var data any
	switch any(zero).(type) {
	case float32:
		data = t.raw.AsFloat32()
	case int32:
		data = t.raw.AsInt32()
	case int64:
		data = t.raw.AsInt64()
	case bool:
		data = t.raw.AsBool()
	default:
		panic(fmt.Sprintf("data: unsupported element type %T", zero))
	}
	return data.([]T)
}

// At returns one element. It panics unless there is one in-range index
// per dimension.
func (t *Tensor[T, B]) At(indices ...int) T {
	shape := t.Shape()
	if len(indices) != len(shape) {
		panic(fmt.Sprintf("at: %d indices for rank %d", len(indices), len(shape)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= shape[i] {
			panic(fmt.Sprintf("at: index %d out of range for dim %d of size %d", idx, i, shape[i]))
		}
		offset += idx * t.raw.Strides()[i]
	}
	return t.Data()[offset]
}

// String formats the dtype and shape along with the device.
func (t *Tensor[T, B]) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", t.raw.DType(), t.raw.Shape(), t.raw.Device())
}
