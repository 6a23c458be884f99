package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// tiktokenSpec holds the facts tiktoken-go does not expose.
type tiktokenSpec struct {
	vocabSize  int
	endOfText  int32
	specialMax int32 // highest reserved special id, equal to endOfText when there is one
}

var tiktokenSpecs = map[string]tiktokenSpec{
	"cl100k_base": {vocabSize: 100256, endOfText: 100257, specialMax: 100276},
	"p50k_base":   {vocabSize: 50257, endOfText: 50256, specialMax: 50256},
	"r50k_base":   {vocabSize: 50257, endOfText: 50256, specialMax: 50256},
}

// TikToken adapts a tiktoken BPE encoding to Tokenizer.
//
// tiktoken has no [CLS]/[SEP] equivalents, so <|endoftext|> serves as both
// the sequence start and the header separator. Encodings missing from
// tiktokenSpecs load, but report -1 for both and cannot drive the feature
// encoder.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
	spec     tiktokenSpec
	known    bool
}

// NewTikToken loads an encoding such as "cl100k_base". tiktoken-go
// downloads the BPE ranks on first use.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encodingName, err)
	}
	spec, known := tiktokenSpecs[encodingName]
	return &TikToken{encoding: encoding, name: encodingName, spec: spec, known: known}, nil
}

// Encode converts text to ids. Special-token text such as "<|endoftext|>"
// in a question is encoded as ordinary text.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		ids[i] = int32(tok) //nolint:gosec // G115: BPE ranks are below 2^31.
	}
	return ids, nil
}

// Decode converts ids back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ranks := make([]int, len(tokens))
	for i, tok := range tokens {
		if tok < 0 {
			return "", fmt.Errorf("decode: negative token id %d", tok)
		}
		ranks[i] = int(tok)
	}
	return t.encoding.Decode(ranks), nil
}

// VocabSize returns the number of ordinary BPE ranks, or 100000 for an
// encoding not in the table.
func (t *TikToken) VocabSize() int {
	if !t.known {
		return 100000
	}
	return t.spec.vocabSize
}

// BosToken returns <|endoftext|>.
func (t *TikToken) BosToken() int32 {
	return t.EosToken()
}

// EosToken returns the <|endoftext|> id, or -1 for an unknown encoding.
func (t *TikToken) EosToken() int32 {
	if !t.known {
		return -1
	}
	return t.spec.endOfText
}

// PadToken returns -1; tiktoken defines no padding token.
func (t *TikToken) PadToken() int32 {
	return -1
}

// UnkToken returns -1; byte-level BPE never produces an unknown token.
func (t *TikToken) UnkToken() int32 {
	return -1
}

// IsSpecialToken reports whether token lies in the reserved range that
// starts at the end of the ordinary vocabulary.
func (t *TikToken) IsSpecialToken(token int32) bool {
	if !t.known {
		return false
	}
	return token == t.spec.endOfText ||
		(token >= int32(t.spec.vocabSize) && token <= t.spec.specialMax) //nolint:gosec // G115: table values fit in int32.
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}
