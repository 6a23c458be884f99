package tokenizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Files recognized in a pretrained model directory.
const (
	TokenizerJSONFile   = "tokenizer.json"
	TokenizerConfigFile = "tokenizer_config.json"
	VocabFile           = "vocab.txt"
)

// TikTokenPrefix selects a tiktoken encoding by identifier, e.g. "tiktoken:cl100k_base".
const TikTokenPrefix = "tiktoken:"

// HFTokenizerType identifies the tokenizer implementation type.
type HFTokenizerType string

const (
	// HFTypeBPE indicates Byte-Pair Encoding tokenizer.
	HFTypeBPE HFTokenizerType = "BPE"

	// HFTypeWordPiece indicates WordPiece tokenizer (BERT-style).
	HFTypeWordPiece HFTokenizerType = "WordPiece"

	// HFTypeUnigram indicates Unigram tokenizer (SentencePiece-style).
	HFTypeUnigram HFTokenizerType = "Unigram"
)

type hfTokenizerConfig struct {
	DoLowerCase *bool `json:"do_lower_case"`
}

// Resolver maps a model identifier to a local directory.
type Resolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Load returns the tokenizer for id. Identifiers with the "tiktoken:" prefix
// name a tiktoken encoding; anything else is resolved to a directory.
func Load(ctx context.Context, id string, resolver Resolver) (Tokenizer, error) {
	if encoding, ok := strings.CutPrefix(id, TikTokenPrefix); ok {
		tok, err := NewTikToken(encoding)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}
	dir, err := resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return LoadDir(dir)
}

// LoadDir loads the tokenizer of a Hugging Face model directory.
// tokenizer.json is preferred and runs through HFTokenizer; a bare
// vocab.txt falls back to WordPiece, lower-casing per
// tokenizer_config.json (default true).
func LoadDir(dir string) (Tokenizer, error) {
	jsonPath := filepath.Join(dir, TokenizerJSONFile)
	if _, err := os.Stat(jsonPath); err == nil {
		tok, err := NewHFTokenizer(jsonPath)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}

	lowerCase := true
	if cfg, err := readTokenizerConfig(filepath.Join(dir, TokenizerConfigFile)); err != nil {
		return nil, err
	} else if cfg.DoLowerCase != nil {
		lowerCase = *cfg.DoLowerCase
	}

	vocab, err := LoadVocab(filepath.Join(dir, VocabFile))
	if err != nil {
		return nil, err
	}
	tok, err := NewWordPiece(vocab, lowerCase)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func readTokenizerConfig(path string) (hfTokenizerConfig, error) {
	var cfg hfTokenizerConfig
	//nolint:gosec // Loading tokenizer from user-specified path is intentional.
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read tokenizer config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse tokenizer config: %w", err)
	}
	return cfg, nil
}
