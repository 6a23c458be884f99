package m1

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/born-ml/n2s/internal/bert"
	"github.com/born-ml/n2s/internal/loader"
	"github.com/born-ml/n2s/internal/nn"
	"github.com/born-ml/n2s/internal/tensor"
)

// Checkpoint metadata keys.
const (
	MetadataFormat        = "format"
	MetadataEncoderConfig = "encoder_config"

	checkpointFormat = "n2s-m1"
)

// legacyAggPrefix is the misspelled aggregation head prefix found in older
// checkpoints.
const legacyAggPrefix = "agg_deocder"

// StateDict returns every weight keyed "<component>.<name>", e.g.
// "bert_model.pooler.dense.weight" or "agg_decoder.3.bias".
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for name, module := range m.components() {
		nn.PrefixStateDict(sd, name, module.StateDict())
	}
	return sd
}

// LoadStateDict loads all components. Keys under the legacy "agg_deocder"
// prefix are accepted for the aggregation head.
func (m *Model[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for name, module := range m.components() {
		sub := nn.SubStateDict(sd, name)
		if name == ComponentAgg && len(sub) == 0 {
			sub = nn.SubStateDict(sd, legacyAggPrefix)
		}
		if err := module.LoadStateDict(sub); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (m *Model[B]) components() map[string]nn.Stateful {
	return map[string]nn.Stateful{
		ComponentEncoder: m.Encoder,
		ComponentConnOp:  m.ConnOp,
		ComponentAgg:     m.Agg,
		ComponentCondOp:  m.CondOp,
	}
}

// Save writes all weights to a SafeTensors file. The encoder configuration
// is stored in the metadata so LoadCheckpoint can rebuild the model.
func (m *Model[B]) Save(path string) error {
	cfg, err := json.Marshal(m.Encoder.Config())
	if err != nil {
		return fmt.Errorf("encode encoder config: %w", err)
	}
	meta := map[string]string{
		MetadataFormat:        checkpointFormat,
		MetadataEncoderConfig: string(cfg),
	}
	if err := loader.WriteFile(path, m.StateDict(), meta); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadWeights replaces the model weights with those in a checkpoint file.
// On error the model may hold a mix of old and new weights.
func (m *Model[B]) LoadWeights(path string) error {
	sd, _, err := loader.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	if err := m.LoadStateDict(sd); err != nil {
		return fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint builds a model from a checkpoint written by Save.
func LoadCheckpoint[B tensor.Backend](path string, backend B) (*Model[B], error) {
	sd, meta, err := loader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	raw, ok := meta[MetadataEncoderConfig]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s has no %s metadata", path, MetadataEncoderConfig)
	}
	cfg, err := bert.ParseConfig(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return FromStateDict(cfg, sd, backend)
}

// FromStateDict builds a model for cfg and loads sd into it.
func FromStateDict[B tensor.Backend](cfg bert.Config, sd map[string]*tensor.RawTensor, backend B) (*Model[B], error) {
	encoder, err := bert.New(cfg, backend)
	if err != nil {
		return nil, err
	}
	m := New(encoder)
	if err := m.LoadStateDict(sd); err != nil {
		return nil, err
	}
	return m, nil
}
