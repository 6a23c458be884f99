package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/n2s/internal/tensor"
)

// maskedScore is the additive bias applied to padded key positions.
// BERT uses a large finite negative value so fully padded rows stay finite.
const maskedScore = -10000

// ScaledDotProductAttention computes softmax(QK^T * scale + mask) V.
//
// Shapes:
//   - query: [batch, heads, seq_q, head_dim]
//   - key, value: [batch, heads, seq_k, head_dim]
//   - mask: nil or an additive mask broadcastable to [batch, heads, seq_q, seq_k]
//
// A scale of 0 means 1/sqrt(head_dim).
//
// Returns the attended values [batch, heads, seq_q, head_dim] and the
// attention weights [batch, heads, seq_q, seq_k].
func ScaledDotProductAttention[B tensor.Backend](
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[float32, B],
	scale float32,
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	validateAttentionInputs(query, key, value)

	if scale == 0 {
		scale = float32(1.0 / math.Sqrt(float64(query.Shape()[3])))
	}

	scores := query.BatchMatMul(key.Transpose(0, 1, 3, 2)).MulScalar(scale)
	if mask != nil {
		scores = scores.Add(mask)
	}
	weights := scores.Softmax(-1)
	return weights.BatchMatMul(value), weights
}

func validateAttentionInputs[B tensor.Backend](query, key, value *tensor.Tensor[float32, B]) {
	q, k, v := query.Shape(), key.Shape(), value.Shape()
	if len(q) != 4 || len(k) != 4 || len(v) != 4 {
		panic(fmt.Sprintf("attention: expected 4D tensors, got %v, %v, %v", q, k, v))
	}
	if q[0] != k[0] || q[1] != k[1] || q[3] != k[3] {
		panic(fmt.Sprintf("attention: query %v and key %v are incompatible", q, k))
	}
	if !k.Equal(v) {
		panic(fmt.Sprintf("attention: key %v and value %v must match", k, v))
	}
}

// PaddingMask turns an attention mask ([batch, seq], 1 = attend, 0 = padding)
// into an additive mask [batch, 1, 1, seq] holding 0 for kept and -10000 for
// padded positions.
func PaddingMask[B tensor.Backend](attentionMask *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	shape := attentionMask.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("attention: padding mask must be [batch, seq], got %v", shape))
	}

	additive := tensor.Zeros[float32](tensor.Shape{shape[0], 1, 1, shape[1]}, attentionMask.Backend())
	data := additive.Data()
	for i, keep := range attentionMask.Data() {
		if keep == 0 {
			data[i] = maskedScore
		}
	}
	return additive
}
