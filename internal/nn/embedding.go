package nn

import (
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
)

// Embedding is a lookup table mapping indices to dense vectors.
//
//	embed := nn.NewEmbedding(21128, 768, backend)
//	vectors := embed.Forward(ids) // [batch, seq] -> [batch, seq, 768]
type Embedding[B tensor.Backend] struct {
	Weight   *Parameter[B] // [NumEmbed, EmbedDim]
	NumEmbed int
	EmbedDim int
}

// NewEmbedding creates an Embedding with weights drawn from N(0, 0.02²).
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim int, backend B) *Embedding[B] {
	return NewEmbeddingWithWeight(Normal(0.02, tensor.Shape{numEmbeddings, embeddingDim}, backend))
}

// NewEmbeddingWithWeight creates an Embedding around pre-initialized weights.
func NewEmbeddingWithWeight[B tensor.Backend](weight *tensor.Tensor[float32, B]) *Embedding[B] {
	shape := weight.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("embedding weight must be 2D, got shape %v", shape))
	}
	return &Embedding[B]{
		Weight:   NewParameter("weight", weight),
		NumEmbed: shape[0],
		EmbedDim: shape[1],
	}
}

// Forward maps each index to its embedding vector.
// Output shape is indices.Shape() + [EmbedDim].
//
// Panics if any index is out of bounds [0, NumEmbed).
func (e *Embedding[B]) Forward(indices *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return e.Weight.Tensor().Embedding(indices)
}

// Parameters returns [weight].
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.Weight}
}

// StateDict returns {"weight": ...}.
func (e *Embedding[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"weight": e.Weight.Tensor().Raw()}
}

// LoadStateDict loads the lookup table.
func (e *Embedding[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadParameters(stateDict, map[string]*Parameter[B]{"weight": e.Weight})
}
