// Package bert implements a BERT-style transformer encoder that loads
// Hugging Face checkpoints (BERT and RoBERTa layouts).
//
// The encoder returns per-token hidden states [batch, seq, hidden] and the
// pooled [CLS] representation [batch, hidden].
package bert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrUnsupportedArchitecture is returned for config.json files describing a
// model this package cannot run.
var ErrUnsupportedArchitecture = errors.New("unsupported architecture")

// Model types understood by the encoder.
const (
	ModelTypeBERT    = "bert"
	ModelTypeRoBERTa = "roberta"
)

// Config mirrors the fields of a Hugging Face config.json used by the encoder.
type Config struct {
	ModelType                 string  `json:"model_type"`
	VocabSize                 int     `json:"vocab_size"`
	HiddenSize                int     `json:"hidden_size"`
	NumHiddenLayers           int     `json:"num_hidden_layers"`
	NumAttentionHeads         int     `json:"num_attention_heads"`
	IntermediateSize          int     `json:"intermediate_size"`
	HiddenAct                 string  `json:"hidden_act"`
	HiddenDropoutProb         float32 `json:"hidden_dropout_prob"`
	AttentionProbsDropoutProb float32 `json:"attention_probs_dropout_prob"`
	MaxPositionEmbeddings     int     `json:"max_position_embeddings"`
	TypeVocabSize             int     `json:"type_vocab_size"`
	LayerNormEps              float32 `json:"layer_norm_eps"`
	PadTokenID                int     `json:"pad_token_id"`
}

// DefaultConfig returns the bert-base-chinese geometry.
func DefaultConfig() Config {
	return Config{
		ModelType:                 ModelTypeBERT,
		VocabSize:                 21128,
		HiddenSize:                768,
		NumHiddenLayers:           12,
		NumAttentionHeads:         12,
		IntermediateSize:          3072,
		HiddenAct:                 "gelu",
		HiddenDropoutProb:         0.1,
		AttentionProbsDropoutProb: 0.1,
		MaxPositionEmbeddings:     512,
		TypeVocabSize:             2,
		LayerNormEps:              1e-12,
	}
}

// ParseConfig decodes a config.json document. Absent fields keep their
// DefaultConfig values.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and validates a config.json file.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec // G304: model paths are operator supplied
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := ParseConfig(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the geometry is consistent and the model type and
// activation are supported.
func (c Config) Validate() error {
	switch c.ModelType {
	case ModelTypeBERT, ModelTypeRoBERTa:
	default:
		return fmt.Errorf("%w: model_type %q", ErrUnsupportedArchitecture, c.ModelType)
	}
	if c.HiddenAct != "gelu" {
		return fmt.Errorf("%w: hidden_act %q", ErrUnsupportedArchitecture, c.HiddenAct)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"vocab_size", c.VocabSize},
		{"hidden_size", c.HiddenSize},
		{"num_hidden_layers", c.NumHiddenLayers},
		{"num_attention_heads", c.NumAttentionHeads},
		{"intermediate_size", c.IntermediateSize},
		{"max_position_embeddings", c.MaxPositionEmbeddings},
		{"type_vocab_size", c.TypeVocabSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %d", p.name, p.value)
		}
	}
	if c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("invalid config: hidden_size (%d) must be divisible by num_attention_heads (%d)",
			c.HiddenSize, c.NumAttentionHeads)
	}
	if c.HiddenDropoutProb < 0 || c.HiddenDropoutProb >= 1 {
		return fmt.Errorf("invalid config: hidden_dropout_prob must be in [0, 1), got %g", c.HiddenDropoutProb)
	}
	if c.LayerNormEps <= 0 {
		return fmt.Errorf("invalid config: layer_norm_eps must be positive, got %g", c.LayerNormEps)
	}
	if c.PadTokenID < 0 || c.PadTokenID >= c.VocabSize {
		return fmt.Errorf("invalid config: pad_token_id %d outside vocabulary", c.PadTokenID)
	}
	if c.ModelType == ModelTypeRoBERTa && c.PadTokenID+1 >= c.MaxPositionEmbeddings {
		return fmt.Errorf("invalid config: max_position_embeddings too small for padding offset %d", c.PadTokenID+1)
	}
	return nil
}

// HeadDim returns the per-head projection width.
func (c Config) HeadDim() int {
	return c.HiddenSize / c.NumAttentionHeads
}

// MaxSequenceLength returns the longest input the position table supports.
// RoBERTa reserves pad_token_id+1 leading positions.
func (c Config) MaxSequenceLength() int {
	if c.ModelType == ModelTypeRoBERTa {
		return c.MaxPositionEmbeddings - c.PadTokenID - 1
	}
	return c.MaxPositionEmbeddings
}
