package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Special token strings of BERT vocabularies.
const (
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
)

const (
	continuationPrefix = "##"
	// maxCharsPerWord matches BERT: longer words map to [UNK].
	maxCharsPerWord = 100
)

// WordPiece implements BERT's greedy longest-match-first subword tokenizer.
type WordPiece struct {
	vocab        map[string]int32
	reverseVocab map[int32]string
	lowerCase    bool

	clsToken int32
	sepToken int32
	padToken int32
	unkToken int32
}

// NewWordPiece creates a tokenizer over vocab. The vocabulary must contain
// [CLS], [SEP] and [UNK]; [PAD] is optional.
func NewWordPiece(vocab map[string]int32, lowerCase bool) (*WordPiece, error) {
	w := &WordPiece{
		vocab:        vocab,
		reverseVocab: make(map[int32]string, len(vocab)),
		lowerCase:    lowerCase,
		padToken:     -1,
	}
	for token, id := range vocab {
		w.reverseVocab[id] = token
	}

	for _, special := range []struct {
		name string
		dst  *int32
	}{
		{ClsToken, &w.clsToken},
		{SepToken, &w.sepToken},
		{UnkToken, &w.unkToken},
	} {
		id, ok := vocab[special.name]
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", special.name)
		}
		*special.dst = id
	}
	if id, ok := vocab[PadToken]; ok {
		w.padToken = id
	}
	return w, nil
}

// LoadVocab reads a vocab.txt file: one token per line, IDs by line number.
func LoadVocab(path string) (map[string]int32, error) {
	//nolint:gosec // Loading tokenizer from user-specified path is intentional.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer func() { _ = f.Close() }()

	vocab := make(map[string]int32)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var id int32
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if _, dup := vocab[token]; !dup {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	return vocab, nil
}

// Encode converts text to token IDs without adding [CLS] or [SEP].
func (w *WordPiece) Encode(text string) ([]int32, error) {
	var ids []int32
	for _, word := range basicTokenize(text, w.lowerCase) {
		ids = w.appendWord(ids, word)
	}
	return ids, nil
}

func (w *WordPiece) appendWord(ids []int32, word string) []int32 {
	runes := []rune(word)
	if len(runes) > maxCharsPerWord {
		return append(ids, w.unkToken)
	}

	var pieces []int32
	for start := 0; start < len(runes); {
		end := len(runes)
		found := int32(-1)
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = continuationPrefix + sub
			}
			if id, ok := w.vocab[sub]; ok {
				found = id
				break
			}
		}
		if found < 0 {
			return append(ids, w.unkToken)
		}
		pieces = append(pieces, found)
		start = end
	}
	return append(ids, pieces...)
}

// Decode joins tokens with spaces, merging "##" continuations into the
// preceding word. Special tokens are skipped.
func (w *WordPiece) Decode(tokens []int32) (string, error) {
	var b strings.Builder
	for _, id := range tokens {
		token, ok := w.reverseVocab[id]
		if !ok {
			return "", fmt.Errorf("token id %d outside vocabulary", id)
		}
		if w.IsSpecialToken(id) && id != w.unkToken {
			continue
		}
		if rest, cont := strings.CutPrefix(token, continuationPrefix); cont {
			b.WriteString(rest)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(token)
	}
	return b.String(), nil
}

// VocabSize returns the number of distinct token IDs.
func (w *WordPiece) VocabSize() int {
	return len(w.reverseVocab)
}

// BosToken returns the [CLS] ID.
func (w *WordPiece) BosToken() int32 {
	return w.clsToken
}

// EosToken returns the [SEP] ID.
func (w *WordPiece) EosToken() int32 {
	return w.sepToken
}

// PadToken returns the [PAD] ID, or -1.
func (w *WordPiece) PadToken() int32 {
	return w.padToken
}

// UnkToken returns the [UNK] ID.
func (w *WordPiece) UnkToken() int32 {
	return w.unkToken
}

// IsSpecialToken reports whether token is [CLS], [SEP], [PAD] or [UNK].
func (w *WordPiece) IsSpecialToken(token int32) bool {
	return token == w.clsToken || token == w.sepToken || token == w.unkToken ||
		(w.padToken >= 0 && token == w.padToken)
}

// LowerCase reports whether input is lower-cased and accent-stripped.
func (w *WordPiece) LowerCase() bool {
	return w.lowerCase
}
