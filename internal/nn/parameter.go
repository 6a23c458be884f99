package nn

import (
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
)

// Parameter is a named weight tensor owned by a layer.
//
// Weights are only mutated by LoadStateDict; forward passes treat them as read-only.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter creates a new parameter around an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Load copies raw into the parameter after checking dtype and shape.
func (p *Parameter[B]) Load(raw *tensor.RawTensor) error {
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s: dtype mismatch: expected float32, got %v", p.name, raw.DType())
	}
	if !raw.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("%s: shape mismatch: expected %v, got %v", p.name, p.tensor.Shape(), raw.Shape())
	}
	copy(p.tensor.Data(), raw.AsFloat32())
	return nil
}
