package nn

import (
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
)

// Linear computes y = x @ Wᵀ + b with W shaped [out, in], the layout of
// Hugging Face and PyTorch checkpoints, so weights load without transposing.
//
//	head := nn.NewLinear(768, 3, backend)
//	logits := head.Forward(pooled) // [batch, 768] -> [batch, 3]
type Linear[B tensor.Backend] struct {
	in, out int
	weight  *Parameter[B]
	bias    *Parameter[B]
}

// NewLinear creates a layer with Xavier weights and a zero bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return &Linear[B]{
		in:     inFeatures,
		out:    outFeatures,
		weight: NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, backend)),
		bias:   NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend)),
	}
}

// Forward accepts [..., in] with at least two dimensions. Leading
// dimensions are flattened for the product and restored afterwards; zero
// rows in give zero rows out.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	rank := len(shape)
	if rank < 2 || shape[rank-1] != l.in {
		panic(fmt.Sprintf("linear: input %v does not end in %d features", shape, l.in))
	}

	x := input
	if rank > 2 {
		x = input.Reshape(-1, l.in)
	}
	y := x.MatMul(l.weight.Tensor().Transpose()).Add(l.bias.Tensor().Reshape(1, l.out))
	if rank > 2 {
		y = y.Reshape(append(shape[:rank-1:rank-1], l.out)...)
	}
	return y
}

// Parameters returns the weight and the bias.
func (l *Linear[B]) Parameters() []*Parameter[B] { return []*Parameter[B]{l.weight, l.bias} }

// Weight returns the [out, in] weight matrix.
func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the [out] bias vector.
func (l *Linear[B]) Bias() *Parameter[B] { return l.bias }

// InFeatures returns the input dimension.
func (l *Linear[B]) InFeatures() int { return l.in }

// OutFeatures returns the output dimension.
func (l *Linear[B]) OutFeatures() int { return l.out }

// StateDict returns "weight" and "bias".
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict requires both "weight" and "bias" with matching shapes.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadParameters(stateDict, map[string]*Parameter[B]{"weight": l.weight, "bias": l.bias})
}
