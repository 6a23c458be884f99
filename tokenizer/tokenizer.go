// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer converts questions and headers to token ids.
//
// Three families are supported:
//   - HFTokenizer: Hugging Face tokenizer.json pipelines
//   - WordPiece: BERT-style vocab.txt vocabularies
//   - TikToken: OpenAI BPE encodings, selected with the "tiktoken:" prefix
//
// Example usage:
//
//	tok, err := tokenizer.LoadDir("models/chinese-roberta-wwm-ext")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := tok.Encode("二零一九年第四周的票房是多少")
package tokenizer

import (
	"context"

	"github.com/born-ml/n2s/internal/tokenizer"
)

// Tokenizer converts text to token ids and back.
type Tokenizer = tokenizer.Tokenizer

// WordPiece is a BERT WordPiece tokenizer.
type WordPiece = tokenizer.WordPiece

// HFTokenizer runs a Hugging Face tokenizer.json pipeline.
type HFTokenizer = tokenizer.HFTokenizer

// TikToken wraps a tiktoken BPE encoding.
type TikToken = tokenizer.TikToken

// Resolver maps a model identifier to a local directory.
type Resolver = tokenizer.Resolver

// TikTokenPrefix selects a tiktoken encoding by identifier.
const TikTokenPrefix = tokenizer.TikTokenPrefix

// Load returns the tokenizer for id.
func Load(ctx context.Context, id string, resolver Resolver) (Tokenizer, error) {
	return tokenizer.Load(ctx, id, resolver)
}

// LoadDir loads the tokenizer of a Hugging Face model directory.
// tokenizer.json is preferred; vocab.txt is the fallback.
func LoadDir(dir string) (Tokenizer, error) {
	return tokenizer.LoadDir(dir)
}

// LoadVocab reads a vocab.txt file, one token per line.
func LoadVocab(path string) (map[string]int32, error) {
	return tokenizer.LoadVocab(path)
}

// NewWordPiece builds a WordPiece tokenizer from a vocabulary.
func NewWordPiece(vocab map[string]int32, lowerCase bool) (*WordPiece, error) {
	return tokenizer.NewWordPiece(vocab, lowerCase)
}

// NewHFTokenizer loads a tokenizer.json file.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	return tokenizer.NewHFTokenizer(path)
}

// NewTikToken creates a tokenizer for a tiktoken encoding such as "cl100k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	return tokenizer.NewTikToken(encodingName)
}
