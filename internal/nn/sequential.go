package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/n2s/internal/tensor"
)

// Sequential feeds each module's output into the next. The classifier
// heads are built from it:
//
//	head := nn.NewSequential[B](
//	    nn.NewDropout[B](0.5),
//	    nn.NewLinear(768, 768, backend),
//	    nn.NewReLU[B](),
//	    nn.NewLinear(768, 7, backend),
//	)
//
// Weights are keyed by position ("1.weight", "3.bias"), so parameterless
// modules still occupy an index.
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential chains modules in the given order.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward runs input through every module in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := input
	for _, m := range s.modules {
		x = m.Forward(x)
	}
	return x
}

// Parameters returns the parameters of every module in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Len returns the number of modules, parameterless ones included.
func (s *Sequential[B]) Len() int { return len(s.modules) }

// Module returns the module at index. It panics when index is out of range.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic(fmt.Sprintf("sequential: index %d out of range for %d modules", index, len(s.modules)))
	}
	return s.modules[index]
}

// SetTraining propagates the mode to every contained module.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, m := range s.modules {
		SetTraining(m, training)
	}
}

// StateDict collects each stateful module's weights under its index,
// e.g. "1.weight".
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for i, m := range s.modules {
		if st, ok := m.(Stateful); ok {
			PrefixStateDict(sd, strconv.Itoa(i), st.StateDict())
		}
	}
	return sd
}

// LoadStateDict loads "<index>.<name>" keys into each module that has
// parameters.
func (s *Sequential[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for i, m := range s.modules {
		if len(m.Parameters()) == 0 {
			continue
		}
		st, ok := m.(Stateful)
		if !ok {
			return fmt.Errorf("module %d (%T) has parameters but cannot load state", i, m)
		}
		if err := st.LoadStateDict(SubStateDict(sd, strconv.Itoa(i))); err != nil {
			return fmt.Errorf("module %d: %w", i, err)
		}
	}
	return nil
}
