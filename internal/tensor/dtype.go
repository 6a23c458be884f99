// Package tensor provides the core tensor types and operations used by the n2s encoder and heads.
package tensor

import "fmt"

// DType constrains the Go element types a Tensor may hold. Encoder weights
// and activations are float32; ids, masks and indices are int32.
type DType interface {
	~float32 | ~int32 | ~int64 | ~bool
}

// DataType is the runtime tag stored in every RawTensor.
type DataType int

// Element types, in SafeTensors-compatible order of preference.
const (
	Float32 DataType = iota
	Int32
	Int64
	Bool
)

var dataTypes = [...]struct {
	name string
	size int
}{
	Float32: {"float32", 4},
	Int32:   {"int32", 4},
	Int64:   {"int64", 8},
	Bool:    {"bool", 1},
}

// Valid reports whether dt is one of the defined element types.
func (dt DataType) Valid() bool {
	return dt >= 0 && int(dt) < len(dataTypes)
}

// Size returns the width of one element in bytes. It panics for an
// undefined DataType.
func (dt DataType) Size() int {
	if !dt.Valid() {
		panic(fmt.Sprintf("size: unknown data type %d", int(dt)))
	}
	return dataTypes[dt].size
}

func (dt DataType) String() string {
	if !dt.Valid() {
		return "unknown"
	}
	return dataTypes[dt].name
}

// dataTypeOf returns the tag for T.
func dataTypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case int32:
		return Int32
	case int64:
		return Int64
	case bool:
		return Bool
	default:
		panic(fmt.Sprintf("unsupported element type %T", zero))
	}
}
