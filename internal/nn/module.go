// Package nn implements the neural network layers used by the encoder and
// the classification heads.
//
// This package provides:
//   - Module and Stateful interfaces
//   - Parameter: named weight tensors
//   - Linear, Embedding, LayerNorm
//   - Activations: ReLU, GELU, Tanh
//   - Dropout with explicit train/eval mode
//   - Sequential container
//   - Scaled dot-product and multi-head attention with padding masks
//
// Layers follow the PyTorch module layout so pretrained weights map by name.
package nn

import (
	"github.com/born-ml/n2s/internal/tensor"
)

// Module is the base interface for all neural network components.
//
//	head := nn.NewSequential[B](
//	    nn.NewDropout[B](0.5),
//	    nn.NewLinear(768, 768, backend),
//	    nn.NewReLU[B](),
//	    nn.NewLinear(768, 3, backend),
//	)
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all parameters of this module, including nested ones.
	Parameters() []*Parameter[B]
}

// Stateful is implemented by modules whose weights can be saved and restored.
// Keys are relative to the module (e.g. "weight", "0.bias").
type Stateful interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Trainable is implemented by modules whose behavior differs between
// training and inference (Dropout, and containers holding it).
type Trainable interface {
	SetTraining(training bool)
}

// StatefulModule is a Module that also supports state dicts.
type StatefulModule[B tensor.Backend] interface {
	Module[B]
	Stateful
}

// SetTraining switches m (and everything it contains) between modes
// when it implements Trainable. Other modules are left untouched.
func SetTraining(m any, training bool) {
	if t, ok := m.(Trainable); ok {
		t.SetTraining(training)
	}
}

// CountParameters returns the total number of scalar weights in params.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	n := 0
	for _, p := range params {
		n += p.Tensor().NumElements()
	}
	return n
}
