package bert

import (
	"fmt"

	"github.com/born-ml/n2s/internal/nn"
	"github.com/born-ml/n2s/internal/tensor"
)

// Layer is one post-norm transformer block:
//
//	x = LayerNorm(x + Dropout(SelfAttention(x)))
//	x = LayerNorm(x + Dropout(Output(GELU(Intermediate(x)))))
type Layer[B tensor.Backend] struct {
	Attention     *nn.MultiHeadAttention[B]
	AttentionNorm *nn.LayerNorm[B]
	Intermediate  *nn.Linear[B]
	Activation    *nn.GELU[B]
	Output        *nn.Linear[B]
	OutputNorm    *nn.LayerNorm[B]
	Dropout       *nn.Dropout[B]
}

// NewLayer creates a randomly initialized block.
func NewLayer[B tensor.Backend](cfg Config, backend B) *Layer[B] {
	return &Layer[B]{
		Attention:     nn.NewMultiHeadAttention(cfg.HiddenSize, cfg.NumAttentionHeads, backend),
		AttentionNorm: nn.NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps, backend),
		Intermediate:  nn.NewLinear(cfg.HiddenSize, cfg.IntermediateSize, backend),
		Activation:    nn.NewGELU[B](),
		Output:        nn.NewLinear(cfg.IntermediateSize, cfg.HiddenSize, backend),
		OutputNorm:    nn.NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps, backend),
		Dropout:       nn.NewDropout[B](cfg.HiddenDropoutProb),
	}
}

// Forward runs the block over x [batch, seq, hidden] with an additive mask.
func (l *Layer[B]) Forward(x, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	attn := l.Dropout.Forward(l.Attention.Forward(x, mask))
	x = l.AttentionNorm.Forward(x.Add(attn))

	h := l.Activation.Forward(l.Intermediate.Forward(x))
	h = l.Dropout.Forward(l.Output.Forward(h))
	return l.OutputNorm.Forward(x.Add(h))
}

// SetTraining toggles dropout.
func (l *Layer[B]) SetTraining(training bool) {
	l.Dropout.SetTraining(training)
}

// Parameters returns the block weights.
func (l *Layer[B]) Parameters() []*nn.Parameter[B] {
	params := l.Attention.Parameters()
	params = append(params, l.AttentionNorm.Parameters()...)
	params = append(params, l.Intermediate.Parameters()...)
	params = append(params, l.Output.Parameters()...)
	return append(params, l.OutputNorm.Parameters()...)
}

// StateDict uses Hugging Face names relative to "encoder.layer.<i>".
func (l *Layer[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for name, m := range l.modules() {
		nn.PrefixStateDict(sd, name, m.StateDict())
	}
	return sd
}

// LoadStateDict loads every sub-module of the block.
func (l *Layer[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for name, m := range l.modules() {
		if err := m.LoadStateDict(nn.SubStateDict(sd, name)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (l *Layer[B]) modules() map[string]nn.Stateful {
	return map[string]nn.Stateful{
		"attention.self.query":       l.Attention.WQ,
		"attention.self.key":         l.Attention.WK,
		"attention.self.value":       l.Attention.WV,
		"attention.output.dense":     l.Attention.WO,
		"attention.output.LayerNorm": l.AttentionNorm,
		"intermediate.dense":         l.Intermediate,
		"output.dense":               l.Output,
		"output.LayerNorm":           l.OutputNorm,
	}
}
