package nn

import (
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
)

// MultiHeadAttention implements bidirectional self-attention with separate
// query, key, value and output projections.
//
// Architecture:
//
//	Q = X @ WQ, K = X @ WK, V = X @ WV
//	heads = Attention(Q_i, K_i, V_i) for each of NumHeads
//	out = Concat(heads) @ WO
//
// Example:
//
//	mha := nn.NewMultiHeadAttention[B](768, 12, backend)
//	mask := nn.PaddingMask(attentionMask)
//	out := mha.Forward(x, mask) // [batch, seq, 768]
type MultiHeadAttention[B tensor.Backend] struct {
	WQ       *Linear[B]
	WK       *Linear[B]
	WV       *Linear[B]
	WO       *Linear[B]
	NumHeads int
	HeadDim  int
	EmbedDim int
}

// NewMultiHeadAttention creates the four projections.
// embedDim must be divisible by numHeads.
func NewMultiHeadAttention[B tensor.Backend](embedDim, numHeads int, backend B) *MultiHeadAttention[B] {
	if numHeads <= 0 || embedDim%numHeads != 0 {
		panic(fmt.Sprintf("MultiHeadAttention: embed_dim (%d) must be divisible by num_heads (%d)", embedDim, numHeads))
	}
	return &MultiHeadAttention[B]{
		WQ:       NewLinear(embedDim, embedDim, backend),
		WK:       NewLinear(embedDim, embedDim, backend),
		WV:       NewLinear(embedDim, embedDim, backend),
		WO:       NewLinear(embedDim, embedDim, backend),
		NumHeads: numHeads,
		HeadDim:  embedDim / numHeads,
		EmbedDim: embedDim,
	}
}

// Forward runs self-attention over x [batch, seq, embed_dim].
// mask is nil or an additive mask broadcastable to [batch, heads, seq, seq].
func (m *MultiHeadAttention[B]) Forward(x, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != m.EmbedDim {
		panic(fmt.Sprintf("MultiHeadAttention: expected [batch, seq, %d], got %v", m.EmbedDim, shape))
	}
	batch, seq := shape[0], shape[1]

	q := m.splitHeads(m.WQ.Forward(x), batch, seq)
	k := m.splitHeads(m.WK.Forward(x), batch, seq)
	v := m.splitHeads(m.WV.Forward(x), batch, seq)

	attn, _ := ScaledDotProductAttention(q, k, v, mask, 0)

	// [batch, heads, seq, head_dim] -> [batch, seq, embed_dim]
	merged := attn.Transpose(0, 2, 1, 3).Reshape(batch, seq, m.EmbedDim)
	return m.WO.Forward(merged)
}

func (m *MultiHeadAttention[B]) splitHeads(x *tensor.Tensor[float32, B], batch, seq int) *tensor.Tensor[float32, B] {
	return x.Reshape(batch, seq, m.NumHeads, m.HeadDim).Transpose(0, 2, 1, 3)
}

// Parameters returns the parameters of all four projections.
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 8)
	for _, l := range []*Linear[B]{m.WQ, m.WK, m.WV, m.WO} {
		params = append(params, l.Parameters()...)
	}
	return params
}

// StateDict keys the projections as "query", "key", "value" and "output".
func (m *MultiHeadAttention[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for name, l := range m.projections() {
		PrefixStateDict(sd, name, l.StateDict())
	}
	return sd
}

// LoadStateDict loads all four projections.
func (m *MultiHeadAttention[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for name, l := range m.projections() {
		if err := l.LoadStateDict(SubStateDict(stateDict, name)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (m *MultiHeadAttention[B]) projections() map[string]*Linear[B] {
	return map[string]*Linear[B]{"query": m.WQ, "key": m.WK, "value": m.WV, "output": m.WO}
}
