// Package tokenizer converts questions and column headers to token IDs.
//
// Implementations:
//   - HFTokenizer: tokenizer.json pipelines through gomlx/go-huggingface
//   - WordPiece: the vocab.txt fallback, with basic tokenization,
//     per-character CJK splitting and "##" continuations
//   - TikToken: OpenAI BPE encodings through pkoukk/tiktoken-go
//
// Example usage:
//
//	tok, err := tokenizer.LoadDir("models/chinese-roberta-wwm-ext")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ids, err := tok.Encode("城市的人口是多少")
//	if err != nil {
//	    log.Fatal(err)
//	}
package tokenizer
