// Package features turns a question and table headers into encoder inputs.
//
// Sequence layout:
//
//	[CLS] question [SEP] header_1 [SEP] header_2 [SEP] ... header_n [SEP]
//
// Token types are 0 up to and including the first [SEP] and 1 afterwards.
// The header indicator is 1 on the first token of every header.
package features

import (
	"errors"
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
	"github.com/born-ml/n2s/internal/tokenizer"
)

// ErrSequenceTooLong is returned when a header would start beyond the
// maximum sequence length.
var ErrSequenceTooLong = errors.New("sequence too long")

// Example holds the unpadded inputs for one question.
type Example struct {
	InputIDs     []int32
	TokenTypeIDs []int32
	HeaderMask   []int32
	// HeaderPositions are the indices where HeaderMask is 1, in header order.
	HeaderPositions []int
}

// NumHeaders returns the number of marked header positions.
func (e Example) NumHeaders() int {
	return len(e.HeaderPositions)
}

// Encoder builds Examples with a tokenizer.
type Encoder struct {
	tok    tokenizer.Tokenizer
	maxLen int
}

// NewEncoder creates an Encoder producing sequences of at most maxLen tokens.
func NewEncoder(tok tokenizer.Tokenizer, maxLen int) (*Encoder, error) {
	if tok.BosToken() < 0 || tok.EosToken() < 0 {
		return nil, fmt.Errorf("tokenizer has no sequence delimiters")
	}
	if maxLen < 3 {
		return nil, fmt.Errorf("max sequence length must be at least 3, got %d", maxLen)
	}
	return &Encoder{tok: tok, maxLen: maxLen}, nil
}

// MaxLen returns the sequence length limit.
func (e *Encoder) MaxLen() int {
	return e.maxLen
}

// PadID returns the padding token, or 0 when the tokenizer has none.
func (e *Encoder) PadID() int32 {
	if pad := e.tok.PadToken(); pad >= 0 {
		return pad
	}
	return 0
}

// Encode builds the inputs for question over headers.
//
// A sequence longer than MaxLen is truncated as long as every header still
// starts within it; otherwise ErrSequenceTooLong is returned. A header that
// tokenizes to nothing is represented by the unknown token so it keeps a
// position.
func (e *Encoder) Encode(question string, headers []string) (Example, error) {
	q, err := e.tok.Encode(question)
	if err != nil {
		return Example{}, fmt.Errorf("encode question: %w", err)
	}

	ids := make([]int32, 0, len(q)+2+2*len(headers))
	ids = append(ids, e.tok.BosToken())
	ids = append(ids, q...)
	ids = append(ids, e.tok.EosToken())
	questionEnd := len(ids)

	positions := make([]int, 0, len(headers))
	for i, header := range headers {
		h, err := e.tok.Encode(header)
		if err != nil {
			return Example{}, fmt.Errorf("encode header %d: %w", i, err)
		}
		if len(h) == 0 {
			h = []int32{e.unknown()}
		}
		positions = append(positions, len(ids))
		ids = append(ids, h...)
		ids = append(ids, e.tok.EosToken())
	}

	if len(ids) > e.maxLen {
		if len(positions) > 0 && positions[len(positions)-1] >= e.maxLen {
			return Example{}, fmt.Errorf("%w: header %d starts at %d, limit %d",
				ErrSequenceTooLong, len(positions)-1, positions[len(positions)-1], e.maxLen)
		}
		ids = ids[:e.maxLen]
	}

	types := make([]int32, len(ids))
	for i := questionEnd; i < len(ids); i++ {
		types[i] = 1
	}
	mask := make([]int32, len(ids))
	for _, p := range positions {
		mask[p] = 1
	}

	return Example{
		InputIDs:        ids,
		TokenTypeIDs:    types,
		HeaderMask:      mask,
		HeaderPositions: positions,
	}, nil
}

func (e *Encoder) unknown() int32 {
	if unk := e.tok.UnkToken(); unk >= 0 {
		return unk
	}
	return e.tok.EosToken()
}

// Batch holds padded encoder inputs, all shaped [batch, seq].
type Batch[B tensor.Backend] struct {
	InputIDs      *tensor.Tensor[int32, B]
	AttentionMask *tensor.Tensor[int32, B]
	TokenTypeIDs  *tensor.Tensor[int32, B]
	HeaderMask    *tensor.Tensor[int32, B]
	// HeaderCounts holds the number of headers of each example.
	HeaderCounts []int
}

// Size returns the number of examples.
func (b *Batch[B]) Size() int {
	return len(b.HeaderCounts)
}

// Collate pads examples to the longest one. Padding positions get padID,
// attention 0, token type 0 and no header mark.
func Collate[B tensor.Backend](examples []Example, padID int32, backend B) (*Batch[B], error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("collate: empty batch")
	}

	seq := 0
	for _, ex := range examples {
		if len(ex.InputIDs) != len(ex.TokenTypeIDs) || len(ex.InputIDs) != len(ex.HeaderMask) {
			return nil, fmt.Errorf("collate: example fields have different lengths")
		}
		seq = max(seq, len(ex.InputIDs))
	}

	shape := tensor.Shape{len(examples), seq}
	batch := &Batch[B]{
		InputIDs:      tensor.Full[int32](shape, padID, backend),
		AttentionMask: tensor.Zeros[int32](shape, backend),
		TokenTypeIDs:  tensor.Zeros[int32](shape, backend),
		HeaderMask:    tensor.Zeros[int32](shape, backend),
		HeaderCounts:  make([]int, len(examples)),
	}

	ids, attn := batch.InputIDs.Data(), batch.AttentionMask.Data()
	types, headers := batch.TokenTypeIDs.Data(), batch.HeaderMask.Data()
	for i, ex := range examples {
		row := i * seq
		copy(ids[row:], ex.InputIDs)
		copy(types[row:], ex.TokenTypeIDs)
		copy(headers[row:], ex.HeaderMask)
		for j, marked := range ex.HeaderMask {
			attn[row+j] = 1
			if marked != 0 {
				batch.HeaderCounts[i]++
			}
		}
	}
	return batch, nil
}
