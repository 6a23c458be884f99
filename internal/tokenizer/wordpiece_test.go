package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"城", "市", "人", "口", "hello", "un", "##aff", "##able", ",", "!", "cafe", "的", "?", "$", "5",
}

func newTestWordPiece(t *testing.T, lowerCase bool) *WordPiece {
	t.Helper()
	vocab := make(map[string]int32, len(testVocab))
	for i, tok := range testVocab {
		vocab[tok] = int32(i)
	}
	w, err := NewWordPiece(vocab, lowerCase)
	require.NoError(t, err)
	return w
}

func TestWordPiece_Encode(t *testing.T) {
	w := newTestWordPiece(t, true)

	tests := []struct {
		name string
		text string
		want []int32
	}{
		{"cjk split per character", "城市的人口", []int32{4, 5, 15, 6, 7}},
		{"mixed with punctuation", "Hello, 城市的人口?", []int32{8, 12, 4, 5, 15, 6, 7, 16}},
		{"continuation pieces", "unaffable", []int32{9, 10, 11}},
		{"accents stripped", "Café", []int32{14}},
		{"unknown word", "xyz", []int32{1}},
		{"partial match is unknown", "unaffx", []int32{1}},
		{"ascii symbols split", "$5", []int32{17, 18}},
		{"control characters dropped", "hel\u200blo\x00", []int32{8}},
		{"whitespace variants", "hello\t\n\u3000hello", []int32{8, 8}},
		{"too long", strings.Repeat("a", maxCharsPerWord+1), []int32{1}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Encode(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWordPiece_CaseSensitive(t *testing.T) {
	w := newTestWordPiece(t, false)
	assert.False(t, w.LowerCase())

	got, err := w.Encode("Hello hello")
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 8}, got)
}

func TestWordPiece_Decode(t *testing.T) {
	w := newTestWordPiece(t, true)

	text, err := w.Decode([]int32{2, 9, 10, 11, 8, 1, 3, 0})
	require.NoError(t, err)
	assert.Equal(t, "unaffable hello [UNK]", text)

	_, err = w.Decode([]int32{99})
	assert.Error(t, err)
}

func TestWordPiece_SpecialTokens(t *testing.T) {
	w := newTestWordPiece(t, true)

	assert.Equal(t, int32(2), w.BosToken())
	assert.Equal(t, int32(3), w.EosToken())
	assert.Equal(t, int32(0), w.PadToken())
	assert.Equal(t, int32(1), w.UnkToken())
	assert.Equal(t, len(testVocab), w.VocabSize())
	for _, id := range []int32{0, 1, 2, 3} {
		assert.True(t, w.IsSpecialToken(id))
	}
	assert.False(t, w.IsSpecialToken(8))
}

func TestNewWordPiece_MissingSpecials(t *testing.T) {
	_, err := NewWordPiece(map[string]int32{"[CLS]": 0, "[SEP]": 1}, true)
	assert.ErrorContains(t, err, "[UNK]")

	w, err := NewWordPiece(map[string]int32{"[CLS]": 0, "[SEP]": 1, "[UNK]": 2}, true)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), w.PadToken())
}

func TestLoadVocab(t *testing.T) {
	path := filepath.Join(t.TempDir(), VocabFile)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(testVocab, "\r\n")+"\n"), 0o600))

	vocab, err := LoadVocab(path)
	require.NoError(t, err)
	assert.Len(t, vocab, len(testVocab))
	assert.Equal(t, int32(8), vocab["hello"])
	assert.Equal(t, int32(10), vocab["##aff"])

	_, err = LoadVocab(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
