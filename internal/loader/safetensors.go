package loader

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/born-ml/n2s/internal/tensor"
)

// maxHeaderSize bounds the JSON header to reject corrupt files early.
const maxHeaderSize = 100 * 1024 * 1024

// ErrTensorNotFound is returned when a named tensor is absent from the file.
var ErrTensorNotFound = errors.New("tensor not found")

// DType is a SafeTensors dtype tag.
type DType string

// SafeTensors dtypes understood by the reader.
const (
	F16  DType = "F16"
	BF16 DType = "BF16"
	F32  DType = "F32"
	F64  DType = "F64"
	I32  DType = "I32"
	I64  DType = "I64"
	Bool DType = "BOOL"
)

// TensorInfo describes one tensor in the header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Header is the parsed JSON header.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON separates "__metadata__" from tensor entries.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	h.Tensors = make(map[string]TensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// Reader reads tensors from a SafeTensors source.
type Reader struct {
	src        io.ReaderAt
	closer     io.Closer
	header     Header
	dataOffset int64
	dataSize   int64
}

// Open opens a SafeTensors file.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: model paths are operator supplied
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	r, err := NewReader(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = file
	return r, nil
}

// NewReader parses the header of a SafeTensors blob of the given size.
func NewReader(src io.ReaderAt, size int64) (*Reader, error) {
	var sizeBuf [8]byte
	if _, err := src.ReadAt(sizeBuf[:], 0); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(sizeBuf[:])
	if headerSize > maxHeaderSize || int64(headerSize) > size-8 { //nolint:gosec // G115: bounded above
		return nil, fmt.Errorf("invalid header size: %d", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := src.ReadAt(headerBytes, 8); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	dataOffset := 8 + int64(headerSize) //nolint:gosec // G115: bounded above
	r := &Reader{
		src:        src,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   size - dataOffset,
	}
	for name, info := range header.Tensors {
		if err := r.validate(name, info); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) validate(name string, info TensorInfo) error {
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > r.dataSize {
		return fmt.Errorf("tensor %s: data offsets [%d, %d] outside data section of %d bytes", name, start, end, r.dataSize)
	}
	elemSize, err := info.DType.size()
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	want := int64(tensor.Shape(info.Shape).NumElements() * elemSize)
	if end-start != want {
		return fmt.Errorf("tensor %s: %d bytes for shape %v of %s, want %d", name, end-start, info.Shape, info.DType, want)
	}
	return nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Metadata returns the "__metadata__" map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names in sorted order.
func (r *Reader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns the header entry for name.
func (r *Reader) TensorInfo(name string) (TensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return info, nil
}

// ReadTensorData returns the raw bytes of a tensor as stored.
func (r *Reader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
	if len(data) == 0 {
		// ReaderAt may report io.EOF for an empty read at the end of the blob.
		return data, nil
	}
	if _, err := r.src.ReadAt(data, r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	return data, nil
}

// LoadTensor reads a tensor, converting floating-point storage types to float32.
func (r *Reader) LoadTensor(name string) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}

	shape := tensor.Shape(info.Shape)
	switch info.DType {
	case F32, F16, BF16, F64:
		raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		decodeFloats(raw.AsFloat32(), data, info.DType)
		return raw, nil
	case I32, I64, Bool:
		dt := map[DType]tensor.DataType{I32: tensor.Int32, I64: tensor.Int64, Bool: tensor.Bool}[info.DType]
		raw, err := tensor.NewRaw(shape, dt, tensor.CPU)
		if err != nil {
			return nil, err
		}
		copy(raw.Data(), data)
		return raw, nil
	default:
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
}

// LoadAll reads every tensor in the file.
func (r *Reader) LoadAll() (map[string]*tensor.RawTensor, error) {
	out := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, name := range r.TensorNames() {
		raw, err := r.LoadTensor(name)
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	return out, nil
}

// ReadFile opens path and loads every tensor.
func ReadFile(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	r, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = r.Close() }()

	tensors, err := r.LoadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return tensors, r.Metadata(), nil
}

func (d DType) size() (int, error) {
	switch d {
	case F16, BF16:
		return 2, nil
	case F32, I32:
		return 4, nil
	case F64, I64:
		return 8, nil
	case Bool:
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %s", d)
	}
}

func decodeFloats(dst []float32, src []byte, dtype DType) {
	switch dtype {
	case F32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case F64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:])))
		}
	case BF16:
		for i := range dst {
			dst[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(src[i*2:])) << 16)
		}
	case F16:
		for i := range dst {
			dst[i] = Float16ToFloat32(binary.LittleEndian.Uint16(src[i*2:]))
		}
	}
}

// Float16ToFloat32 converts an IEEE 754 half-precision value.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: normalize the mantissa.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
