package tensor

// Zeros creates a tensor filled with zeros. Zero-sized dimensions are
// allowed: Zeros[float32](Shape{0, 7}, b) holds no elements.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return New[T, B](MustNewRaw("zeros", shape, dataTypeOf[T](), b.Device()), b)
}

// Full creates a tensor with every element set to value.
//
//	mask := tensor.Full[int32](Shape{2, 8}, 1, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Ones creates a float32 tensor filled with ones.
func Ones[B Backend](shape Shape, b B) *Tensor[float32, B] {
	return Full[float32](shape, 1, b)
}
