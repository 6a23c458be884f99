package bert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/tensor"
)

func TestPositionIDs(t *testing.T) {
	tests := []struct {
		name      string
		modelType string
		padID     int
		ids       []int32
		want      []int32
	}{
		{"bert", ModelTypeBERT, 0, []int32{2, 5, 6, 0, 7, 8, 0, 0}, []int32{0, 1, 2, 3, 0, 1, 2, 3}},
		{"roberta", ModelTypeRoBERTa, 1, []int32{0, 5, 6, 1, 0, 8, 2, 2}, []int32{2, 3, 4, 1, 2, 3, 4, 5}},
	}

	backend := cpu.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				ModelType: tt.modelType, VocabSize: 10, HiddenSize: 4, NumHiddenLayers: 1,
				NumAttentionHeads: 1, IntermediateSize: 4, HiddenAct: "gelu",
				MaxPositionEmbeddings: 8, TypeVocabSize: 2, LayerNormEps: 1e-12, PadTokenID: tt.padID,
			}
			emb := NewEmbeddings(cfg, backend)
			ids := tensor.MustFromSlice(tt.ids, tensor.Shape{2, 4}, backend)
			assert.Equal(t, tt.want, emb.positionIDs(ids).Data())
		})
	}
}
