package bert

import (
	"fmt"

	"github.com/born-ml/n2s/internal/nn"
	"github.com/born-ml/n2s/internal/tensor"
)

// Embeddings sums word, position and token type embeddings, then applies
// LayerNorm and dropout.
type Embeddings[B tensor.Backend] struct {
	Word      *nn.Embedding[B]
	Position  *nn.Embedding[B]
	TokenType *nn.Embedding[B]
	Norm      *nn.LayerNorm[B]
	Dropout   *nn.Dropout[B]

	roberta bool
	padID   int32
}

// NewEmbeddings creates randomly initialized embedding tables for cfg.
func NewEmbeddings[B tensor.Backend](cfg Config, backend B) *Embeddings[B] {
	return &Embeddings[B]{
		Word:      nn.NewEmbedding(cfg.VocabSize, cfg.HiddenSize, backend),
		Position:  nn.NewEmbedding(cfg.MaxPositionEmbeddings, cfg.HiddenSize, backend),
		TokenType: nn.NewEmbedding(cfg.TypeVocabSize, cfg.HiddenSize, backend),
		Norm:      nn.NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps, backend),
		Dropout:   nn.NewDropout[B](cfg.HiddenDropoutProb),
		roberta:   cfg.ModelType == ModelTypeRoBERTa,
		padID:     int32(cfg.PadTokenID), //nolint:gosec // G115: validated against vocab size
	}
}

// Forward embeds ids [batch, seq]. typeIDs may be nil, meaning all zeros.
func (e *Embeddings[B]) Forward(ids, typeIDs *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	shape := ids.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("embeddings: expected ids [batch, seq], got %v", shape))
	}
	if typeIDs == nil {
		typeIDs = tensor.Zeros[int32](shape, ids.Backend())
	} else if !typeIDs.Shape().Equal(shape) {
		panic(fmt.Sprintf("embeddings: token type ids %v do not match ids %v", typeIDs.Shape(), shape))
	}

	x := e.Word.Forward(ids).
		Add(e.Position.Forward(e.positionIDs(ids))).
		Add(e.TokenType.Forward(typeIDs))
	return e.Dropout.Forward(e.Norm.Forward(x))
}

// positionIDs numbers tokens from 0. RoBERTa numbers non-padding tokens from
// padID+1 and gives padding tokens padID.
func (e *Embeddings[B]) positionIDs(ids *tensor.Tensor[int32, B]) *tensor.Tensor[int32, B] {
	shape := ids.Shape()
	batch, seq := shape[0], shape[1]
	pos := tensor.Zeros[int32](shape, ids.Backend())
	out, in := pos.Data(), ids.Data()

	for b := 0; b < batch; b++ {
		count := e.padID
		for s := 0; s < seq; s++ {
			i := b*seq + s
			switch {
			case !e.roberta:
				out[i] = int32(s) //nolint:gosec // G115: bounded by position table
			case in[i] == e.padID:
				out[i] = e.padID
			default:
				count++
				out[i] = count
			}
		}
	}
	return pos
}

// SetTraining toggles dropout.
func (e *Embeddings[B]) SetTraining(training bool) {
	e.Dropout.SetTraining(training)
}

// Parameters returns all embedding and normalization weights.
func (e *Embeddings[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 5)
	params = append(params, e.Word.Parameters()...)
	params = append(params, e.Position.Parameters()...)
	params = append(params, e.TokenType.Parameters()...)
	return append(params, e.Norm.Parameters()...)
}

// StateDict uses Hugging Face names relative to "embeddings".
func (e *Embeddings[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for name, m := range e.modules() {
		nn.PrefixStateDict(sd, name, m.StateDict())
	}
	return sd
}

// LoadStateDict loads all tables and the LayerNorm.
func (e *Embeddings[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for name, m := range e.modules() {
		if err := m.LoadStateDict(nn.SubStateDict(sd, name)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (e *Embeddings[B]) modules() map[string]nn.Stateful {
	return map[string]nn.Stateful{
		"word_embeddings":       e.Word,
		"position_embeddings":   e.Position,
		"token_type_embeddings": e.TokenType,
		"LayerNorm":             e.Norm,
	}
}
