package bert

import (
	"github.com/born-ml/n2s/internal/nn"
	"github.com/born-ml/n2s/internal/tensor"
)

// Pooler projects the first token's hidden state through Dense + Tanh.
type Pooler[B tensor.Backend] struct {
	Dense      *nn.Linear[B]
	Activation *nn.Tanh[B]
	first      *tensor.Tensor[int32, B]
}

// NewPooler creates a randomly initialized pooler.
func NewPooler[B tensor.Backend](cfg Config, backend B) *Pooler[B] {
	return &Pooler[B]{
		Dense:      nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize, backend),
		Activation: nn.NewTanh[B](),
		first:      tensor.MustFromSlice([]int32{0}, tensor.Shape{1}, backend),
	}
}

// Forward maps hidden [batch, seq, hidden] to [batch, hidden].
func (p *Pooler[B]) Forward(hidden *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := hidden.Shape()
	cls := hidden.IndexSelect(1, p.first).Reshape(shape[0], shape[2])
	return p.Activation.Forward(p.Dense.Forward(cls))
}

// Parameters returns [weight, bias] of the dense layer.
func (p *Pooler[B]) Parameters() []*nn.Parameter[B] {
	return p.Dense.Parameters()
}

// StateDict uses the names relative to "pooler".
func (p *Pooler[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	nn.PrefixStateDict(sd, "dense", p.Dense.StateDict())
	return sd
}

// LoadStateDict loads the dense projection.
func (p *Pooler[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return p.Dense.LoadStateDict(nn.SubStateDict(sd, "dense"))
}
