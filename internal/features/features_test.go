package features_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/features"
	"github.com/born-ml/n2s/internal/tensor"
	"github.com/born-ml/n2s/internal/tokenizer"
)

// Vocabulary: [PAD]=0 [UNK]=1 [CLS]=2 [SEP]=3 then one ID per character.
func newTokenizer(t *testing.T) tokenizer.Tokenizer {
	t.Helper()
	vocab := map[string]int32{"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3}
	for i, r := range []string{"城", "市", "人", "口", "名", "称", "面", "积", "多", "少"} {
		vocab[r] = int32(4 + i)
	}
	tok, err := tokenizer.NewWordPiece(vocab, true)
	require.NoError(t, err)
	return tok
}

func TestEncoder_Encode(t *testing.T) {
	enc, err := features.NewEncoder(newTokenizer(t), 64)
	require.NoError(t, err)

	ex, err := enc.Encode("人口多少", []string{"城市", "人口", "面积"})
	require.NoError(t, err)

	// [CLS] 人 口 多 少 [SEP] 城 市 [SEP] 人 口 [SEP] 面 积 [SEP]
	assert.Equal(t, []int32{2, 6, 7, 12, 13, 3, 4, 5, 3, 6, 7, 3, 10, 11, 3}, ex.InputIDs)
	assert.Equal(t, []int32{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1}, ex.TokenTypeIDs)
	assert.Equal(t, []int32{0, 0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0}, ex.HeaderMask)
	assert.Equal(t, []int{6, 9, 12}, ex.HeaderPositions)
	assert.Equal(t, 3, ex.NumHeaders())
}

func TestEncoder_EdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		maxLen    int
		question  string
		headers   []string
		wantIDs   []int32
		wantMask  []int32
		wantError error
	}{
		{
			name:     "no headers",
			maxLen:   16,
			question: "人口",
			wantIDs:  []int32{2, 6, 7, 3},
			wantMask: []int32{0, 0, 0, 0},
		},
		{
			name:     "empty header keeps a position",
			maxLen:   16,
			question: "人",
			headers:  []string{""},
			wantIDs:  []int32{2, 6, 3, 1, 3},
			wantMask: []int32{0, 0, 0, 1, 0},
		},
		{
			name:     "truncated after last header start",
			maxLen:   6,
			question: "人",
			headers:  []string{"城", "名称面积"},
			wantIDs:  []int32{2, 6, 3, 4, 3, 8},
			wantMask: []int32{0, 0, 0, 1, 0, 1},
		},
		{
			name:      "header beyond limit",
			maxLen:    5,
			question:  "人",
			headers:   []string{"城", "名称"},
			wantError: features.ErrSequenceTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := features.NewEncoder(newTokenizer(t), tt.maxLen)
			require.NoError(t, err)

			ex, err := enc.Encode(tt.question, tt.headers)
			if tt.wantError != nil {
				assert.True(t, errors.Is(err, tt.wantError), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ex.InputIDs)
			assert.Equal(t, tt.wantMask, ex.HeaderMask)
			assert.LessOrEqual(t, len(ex.InputIDs), tt.maxLen)
		})
	}
}

func TestNewEncoder_Validation(t *testing.T) {
	_, err := features.NewEncoder(newTokenizer(t), 2)
	assert.Error(t, err)
}

func TestCollate(t *testing.T) {
	backend := cpu.New()
	enc, err := features.NewEncoder(newTokenizer(t), 64)
	require.NoError(t, err)

	a, err := enc.Encode("人口", []string{"城市", "面积", "名称"})
	require.NoError(t, err)
	b, err := enc.Encode("多少", []string{"人口", "城"})
	require.NoError(t, err)

	batch, err := features.Collate([]features.Example{a, b}, enc.PadID(), backend)
	require.NoError(t, err)

	seq := len(a.InputIDs)
	assert.Equal(t, tensor.Shape{2, seq}, batch.InputIDs.Shape())
	assert.Equal(t, tensor.Shape{2, seq}, batch.AttentionMask.Shape())
	assert.Equal(t, []int{3, 2}, batch.HeaderCounts)
	assert.Equal(t, 2, batch.Size())
	assert.Equal(t, 5, len(tensor.NonZero(batch.HeaderMask).Data()))

	row := seq
	attn := batch.AttentionMask.Data()
	ids := batch.InputIDs.Data()
	for j := len(b.InputIDs); j < seq; j++ {
		assert.Equal(t, int32(0), attn[row+j])
		assert.Equal(t, enc.PadID(), ids[row+j])
		assert.Equal(t, int32(0), batch.HeaderMask.Data()[row+j])
		assert.Equal(t, int32(0), batch.TokenTypeIDs.Data()[row+j])
	}
	for j := range a.InputIDs {
		assert.Equal(t, int32(1), attn[j])
	}

	_, err = features.Collate[*cpu.CPUBackend](nil, 0, backend)
	assert.Error(t, err)

	_, err = features.Collate([]features.Example{{InputIDs: []int32{1}}}, 0, backend)
	assert.Error(t, err)
}
