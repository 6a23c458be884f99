package bert

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/born-ml/n2s/internal/loader"
	"github.com/born-ml/n2s/internal/nn"
	"github.com/born-ml/n2s/internal/tensor"
)

// File names inside a pretrained model directory.
const (
	ConfigFile  = "config.json"
	WeightsFile = "model.safetensors"
)

// checkpointPrefixes are stripped from keys when loading Hugging Face
// checkpoints saved from a task model (BertForMaskedLM and friends).
var checkpointPrefixes = []string{"bert.", "roberta."}

// Encoder is the full transformer encoder with pooler.
//
// Example:
//
//	enc, err := bert.Load("models/chinese-roberta-wwm-ext", cpu.New())
//	hidden, pooled := enc.Forward(ids, mask, typeIDs)
type Encoder[B tensor.Backend] struct {
	Embeddings *Embeddings[B]
	Layers     []*Layer[B]
	Pooler     *Pooler[B]

	cfg     Config
	backend B
}

// New creates a randomly initialized encoder for cfg.
func New[B tensor.Backend](cfg Config, backend B) (*Encoder[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layers := make([]*Layer[B], cfg.NumHiddenLayers)
	for i := range layers {
		layers[i] = NewLayer(cfg, backend)
	}
	return &Encoder[B]{
		Embeddings: NewEmbeddings(cfg, backend),
		Layers:     layers,
		Pooler:     NewPooler(cfg, backend),
		cfg:        cfg,
		backend:    backend,
	}, nil
}

// Load builds an encoder from a directory holding config.json and
// model.safetensors.
func Load[B tensor.Backend](dir string, backend B) (*Encoder[B], error) {
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	enc, err := New(cfg, backend)
	if err != nil {
		return nil, err
	}

	weights, _, err := loader.ReadFile(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder weights: %w", err)
	}
	if err := enc.LoadStateDict(weights); err != nil {
		return nil, fmt.Errorf("failed to load encoder weights from %s: %w", dir, err)
	}
	return enc, nil
}

// Config returns the encoder configuration.
func (e *Encoder[B]) Config() Config {
	return e.cfg
}

// HiddenSize returns the width of hidden and pooled outputs.
func (e *Encoder[B]) HiddenSize() int {
	return e.cfg.HiddenSize
}

// Backend returns the compute backend.
func (e *Encoder[B]) Backend() B {
	return e.backend
}

// Forward encodes ids [batch, seq].
//
// mask marks real tokens with 1 and padding with 0; nil attends everywhere.
// typeIDs selects the segment embedding; nil means segment 0.
//
// Returns hidden states [batch, seq, hidden] and pooled output [batch, hidden].
func (e *Encoder[B]) Forward(ids, mask, typeIDs *tensor.Tensor[int32, B]) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	var additive *tensor.Tensor[float32, B]
	if mask != nil {
		if !mask.Shape().Equal(ids.Shape()) {
			panic(fmt.Sprintf("bert: attention mask %v does not match ids %v", mask.Shape(), ids.Shape()))
		}
		additive = nn.PaddingMask(mask)
	}

	hidden := e.Embeddings.Forward(ids, typeIDs)
	for _, layer := range e.Layers {
		hidden = layer.Forward(hidden, additive)
	}
	return hidden, e.Pooler.Forward(hidden)
}

// SetTraining toggles dropout in every sub-module.
func (e *Encoder[B]) SetTraining(training bool) {
	e.Embeddings.SetTraining(training)
	for _, layer := range e.Layers {
		layer.SetTraining(training)
	}
}

// Parameters returns all weights in embedding, layer, pooler order.
func (e *Encoder[B]) Parameters() []*nn.Parameter[B] {
	params := e.Embeddings.Parameters()
	for _, layer := range e.Layers {
		params = append(params, layer.Parameters()...)
	}
	return append(params, e.Pooler.Parameters()...)
}

// StateDict returns all weights under their Hugging Face names
// (e.g. "encoder.layer.0.attention.self.query.weight").
func (e *Encoder[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	nn.PrefixStateDict(sd, "embeddings", e.Embeddings.StateDict())
	for i, layer := range e.Layers {
		nn.PrefixStateDict(sd, fmt.Sprintf("encoder.layer.%d", i), layer.StateDict())
	}
	nn.PrefixStateDict(sd, "pooler", e.Pooler.StateDict())
	return sd
}

// LoadStateDict loads weights by Hugging Face name. Keys prefixed with
// "bert." or "roberta." are accepted; unrelated keys (e.g. "cls.*") are ignored.
func (e *Encoder[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	sd = stripPrefixes(sd)

	if err := e.Embeddings.LoadStateDict(nn.SubStateDict(sd, "embeddings")); err != nil {
		return fmt.Errorf("embeddings.%w", err)
	}
	for i, layer := range e.Layers {
		prefix := fmt.Sprintf("encoder.layer.%d", i)
		if err := layer.LoadStateDict(nn.SubStateDict(sd, prefix)); err != nil {
			return fmt.Errorf("%s.%w", prefix, err)
		}
	}
	if err := e.Pooler.LoadStateDict(nn.SubStateDict(sd, "pooler")); err != nil {
		return fmt.Errorf("pooler.%w", err)
	}
	return nil
}

func stripPrefixes(sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(sd))
	for key, raw := range sd {
		for _, prefix := range checkpointPrefixes {
			if trimmed, ok := strings.CutPrefix(key, prefix); ok {
				key = trimmed
				break
			}
		}
		out[key] = raw
	}
	return out
}
