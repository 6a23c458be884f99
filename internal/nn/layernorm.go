package nn

import (
	"github.com/born-ml/n2s/internal/tensor"
)

// LayerNorm normalizes over the last dimension.
//
// Formula: Y = weight * (X - mean(X)) / sqrt(var(X) + eps) + bias
//
// Parameter names follow PyTorch ("weight", "bias") so BERT checkpoints
// load without renaming.
type LayerNorm[B tensor.Backend] struct {
	Weight  *Parameter[B] // scale [d_model], initialized to ones
	Bias    *Parameter[B] // shift [d_model], initialized to zeros
	Epsilon float32
	size    int
}

// NewLayerNorm creates a new LayerNorm layer.
func NewLayerNorm[B tensor.Backend](normalizedShape int, epsilon float32, backend B) *LayerNorm[B] {
	return &LayerNorm[B]{
		Weight:  NewParameter("weight", Ones(tensor.Shape{normalizedShape}, backend)),
		Bias:    NewParameter("bias", Zeros(tensor.Shape{normalizedShape}, backend)),
		Epsilon: epsilon,
		size:    normalizedShape,
	}
}

// Forward applies LayerNorm to [..., d_model].
func (l *LayerNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)
	variance := centered.Mul(centered).MeanDim(-1, true)
	normalized := centered.Mul(variance.AddScalar(l.Epsilon).Rsqrt())

	// [d_model] broadcasts against [..., d_model].
	return normalized.Mul(l.Weight.Tensor()).Add(l.Bias.Tensor())
}

// Parameters returns [weight, bias].
func (l *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.Weight, l.Bias}
}

// StateDict returns {"weight", "bias"}.
func (l *LayerNorm[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.Weight.Tensor().Raw(),
		"bias":   l.Bias.Tensor().Raw(),
	}
}

// LoadStateDict loads scale and shift. Legacy "gamma"/"beta" names are accepted.
func (l *LayerNorm[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	sd := stateDict
	if _, ok := sd["weight"]; !ok {
		if gamma, ok := sd["gamma"]; ok {
			sd = map[string]*tensor.RawTensor{"weight": gamma, "bias": sd["beta"]}
		}
	}
	if sd["bias"] == nil {
		delete(sd, "bias")
	}
	return LoadParameters(sd, map[string]*Parameter[B]{"weight": l.Weight, "bias": l.Bias})
}
