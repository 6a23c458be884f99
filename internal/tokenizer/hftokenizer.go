package tokenizer

import (
	"fmt"

	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/go-huggingface/tokenizers/hftokenizer"
)

// HFTokenizer runs a Hugging Face tokenizer.json pipeline
// (normalizer, pre-tokenizer, model) through gomlx/go-huggingface.
//
// Post-processing is disabled: the feature encoder places [CLS] and
// [SEP] itself.
type HFTokenizer struct {
	tok       *hftokenizer.Tokenizer
	vocabSize int
	bos       int32
	eos       int32
	pad       int32
	unk       int32
	special   map[int32]struct{}
}

// Compile-time interface check.
var _ Tokenizer = (*HFTokenizer)(nil)

// NewHFTokenizer loads a tokenizer.json file. WordPiece, BPE and Unigram
// models are accepted.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tok, err := hftokenizer.NewFromFile(nil, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer.json: %w", err)
	}
	return newHFTokenizer(tok)
}

func newHFTokenizer(tok *hftokenizer.Tokenizer) (*HFTokenizer, error) {
	switch HFTokenizerType(tok.GetTokenizerType()) {
	case HFTypeWordPiece, HFTypeBPE, HFTypeUnigram:
	default:
		return nil, fmt.Errorf("unknown tokenizer type: %q", tok.GetTokenizerType())
	}
	if err := tok.With(api.EncodeOptions{AddSpecialTokens: false}); err != nil {
		return nil, fmt.Errorf("failed to configure tokenizer: %w", err)
	}

	h := &HFTokenizer{tok: tok, special: make(map[int32]struct{})}
	for _, id := range tok.GetVocab() {
		h.vocabSize = max(h.vocabSize, id+1)
	}

	h.bos = h.resolve(api.TokClassification, ClsToken, "<s>")
	h.eos = h.resolve(api.TokEndOfSentence, SepToken, "</s>")
	h.pad = h.resolve(api.TokPad, PadToken, "<pad>")
	h.unk = h.resolve(api.TokUnknown, UnkToken, "<unk>")
	for _, at := range tok.AddedTokensList() {
		if at.Special {
			h.special[int32(at.ID)] = struct{}{}
		}
	}
	return h, nil
}

// resolve looks up a special token id: declared special tokens first,
// then the conventional spellings in the vocabulary. -1 means absent.
func (h *HFTokenizer) resolve(kind api.SpecialToken, names ...string) int32 {
	id, err := h.tok.SpecialTokenID(kind)
	if err != nil {
		id = -1
		for _, name := range names {
			if v, ok := h.tok.TokenToID(name); ok {
				id = v
				break
			}
		}
	}
	if id >= 0 {
		h.special[int32(id)] = struct{}{}
	}
	return int32(id)
}

// Encode converts text to token ids without special tokens.
func (h *HFTokenizer) Encode(text string) ([]int32, error) {
	ids := h.tok.Encode(text)
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out, nil
}

// Decode converts token ids back to text.
func (h *HFTokenizer) Decode(tokens []int32) (string, error) {
	ids := make([]int, len(tokens))
	for i, id := range tokens {
		if id < 0 || int(id) >= h.vocabSize {
			return "", fmt.Errorf("token id %d out of range [0, %d)", id, h.vocabSize)
		}
		ids[i] = int(id)
	}
	return h.tok.Decode(ids), nil
}

// VocabSize is one past the largest id in the vocabulary or added tokens.
func (h *HFTokenizer) VocabSize() int { return h.vocabSize }

// BosToken returns the [CLS] or <s> id, or -1.
func (h *HFTokenizer) BosToken() int32 { return h.bos }

// EosToken returns the [SEP] or </s> id, or -1.
func (h *HFTokenizer) EosToken() int32 { return h.eos }

// PadToken returns the padding id, or -1.
func (h *HFTokenizer) PadToken() int32 { return h.pad }

// UnkToken returns the unknown-token id, or -1.
func (h *HFTokenizer) UnkToken() int32 { return h.unk }

// IsSpecialToken reports whether token is a declared or resolved special token.
func (h *HFTokenizer) IsSpecialToken(token int32) bool {
	_, ok := h.special[token]
	return ok
}

// ModelType reports the tokenizer.json model type.
func (h *HFTokenizer) ModelType() HFTokenizerType {
	return HFTokenizerType(h.tok.GetTokenizerType())
}
