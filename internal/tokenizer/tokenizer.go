package tokenizer

// Tokenizer maps questions and headers to vocabulary ids.
//
// Encode returns bare word ids. The feature encoder adds the sequence
// start and header separators itself, so implementations must report
// them through BosToken and EosToken.
type Tokenizer interface {
	Encode(text string) ([]int32, error)
	Decode(tokens []int32) (string, error)

	// VocabSize bounds every id Encode can return.
	VocabSize() int

	// BosToken opens a sequence ([CLS]); EosToken closes the question and
	// every header ([SEP]). Both return -1 when the vocabulary has none.
	BosToken() int32
	EosToken() int32

	// PadToken and UnkToken return -1 when the vocabulary has none.
	PadToken() int32
	UnkToken() int32

	IsSpecialToken(token int32) bool
}
