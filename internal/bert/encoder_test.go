package bert_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/bert"
	"github.com/born-ml/n2s/internal/loader"
	"github.com/born-ml/n2s/internal/tensor"
)

func tinyConfig() bert.Config {
	return bert.Config{
		ModelType:             bert.ModelTypeBERT,
		VocabSize:             32,
		HiddenSize:            8,
		NumHiddenLayers:       2,
		NumAttentionHeads:     2,
		IntermediateSize:      16,
		HiddenAct:             "gelu",
		HiddenDropoutProb:     0.1,
		MaxPositionEmbeddings: 16,
		TypeVocabSize:         2,
		LayerNormEps:          1e-12,
	}
}

func ints(t *testing.T, data []int32, shape ...int) *tensor.Tensor[int32, *cpu.CPUBackend] {
	t.Helper()
	return tensor.MustFromSlice(data, tensor.Shape(shape), cpu.New())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*bert.Config)
		wantErr string
		arch    bool
	}{
		{"valid", func(*bert.Config) {}, "", false},
		{"roberta", func(c *bert.Config) { c.ModelType = bert.ModelTypeRoBERTa; c.PadTokenID = 1 }, "", false},
		{"unknown model type", func(c *bert.Config) { c.ModelType = "gpt2" }, "model_type", true},
		{"unknown activation", func(c *bert.Config) { c.HiddenAct = "swish" }, "hidden_act", true},
		{"heads do not divide", func(c *bert.Config) { c.NumAttentionHeads = 3 }, "divisible", false},
		{"zero layers", func(c *bert.Config) { c.NumHiddenLayers = 0 }, "num_hidden_layers", false},
		{"bad dropout", func(c *bert.Config) { c.HiddenDropoutProb = 1 }, "hidden_dropout_prob", false},
		{"pad outside vocab", func(c *bert.Config) { c.PadTokenID = 32 }, "pad_token_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tinyConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.arch, errors.Is(err, bert.ErrUnsupportedArchitecture))
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := bert.ParseConfig(strings.NewReader(`{"model_type": "bert", "hidden_size": 16, "num_attention_heads": 4, "unknown_field": true}`))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.HiddenSize)
	assert.Equal(t, 4, cfg.HeadDim())
	assert.Equal(t, 21128, cfg.VocabSize, "absent fields keep defaults")
	assert.Equal(t, 512, cfg.MaxSequenceLength())

	_, err = bert.ParseConfig(strings.NewReader(`{"model_type": "t5"}`))
	assert.ErrorIs(t, err, bert.ErrUnsupportedArchitecture)

	_, err = bert.ParseConfig(strings.NewReader(`{`))
	assert.Error(t, err)
}

func TestMaxSequenceLengthRoBERTa(t *testing.T) {
	cfg := tinyConfig()
	cfg.ModelType = bert.ModelTypeRoBERTa
	cfg.PadTokenID = 1
	assert.Equal(t, 14, cfg.MaxSequenceLength())
}

func TestEncoderForwardShapes(t *testing.T) {
	enc, err := bert.New(tinyConfig(), cpu.New())
	require.NoError(t, err)

	ids := ints(t, []int32{2, 5, 6, 3, 7, 3, 2, 9, 3, 0, 0, 0}, 2, 6)
	mask := ints(t, []int32{1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0}, 2, 6)
	types := ints(t, []int32{0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0}, 2, 6)

	hidden, pooled := enc.Forward(ids, mask, types)
	assert.Equal(t, tensor.Shape{2, 6, 8}, hidden.Shape())
	assert.Equal(t, tensor.Shape{2, 8}, pooled.Shape())
	for _, v := range pooled.Data() {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(-1))
	}
	assert.Equal(t, 8, enc.HiddenSize())
}

func TestEncoderDeterministicInEval(t *testing.T) {
	enc, err := bert.New(tinyConfig(), cpu.New())
	require.NoError(t, err)

	ids := ints(t, []int32{2, 5, 6, 3}, 1, 4)
	h1, p1 := enc.Forward(ids, nil, nil)
	h2, p2 := enc.Forward(ids, nil, nil)
	assert.Equal(t, h1.Data(), h2.Data())
	assert.Equal(t, p1.Data(), p2.Data())
}

func TestEncoderPaddingIsMasked(t *testing.T) {
	enc, err := bert.New(tinyConfig(), cpu.New())
	require.NoError(t, err)

	short, shortPooled := enc.Forward(ints(t, []int32{2, 5, 6, 3}, 1, 4), nil, nil)
	padded, paddedPooled := enc.Forward(
		ints(t, []int32{2, 5, 6, 3, 0, 0}, 1, 6),
		ints(t, []int32{1, 1, 1, 1, 0, 0}, 1, 6),
		nil,
	)

	assert.InDeltaSlice(t, short.Data(), padded.Data()[:4*8], 1e-5)
	assert.InDeltaSlice(t, shortPooled.Data(), paddedPooled.Data(), 1e-5)
}

func TestEncoderStateDict(t *testing.T) {
	backend := cpu.New()
	src, err := bert.New(tinyConfig(), backend)
	require.NoError(t, err)
	dst, err := bert.New(tinyConfig(), backend)
	require.NoError(t, err)

	sd := src.StateDict()
	assert.Len(t, sd, 5+16*2+2)
	for _, key := range []string{
		"embeddings.word_embeddings.weight",
		"embeddings.position_embeddings.weight",
		"embeddings.token_type_embeddings.weight",
		"embeddings.LayerNorm.weight",
		"encoder.layer.0.attention.self.query.weight",
		"encoder.layer.1.attention.output.dense.bias",
		"encoder.layer.1.attention.output.LayerNorm.bias",
		"encoder.layer.0.intermediate.dense.weight",
		"encoder.layer.0.output.dense.weight",
		"encoder.layer.1.output.LayerNorm.weight",
		"pooler.dense.weight",
	} {
		assert.Contains(t, sd, key)
	}

	// Task-model checkpoints prefix encoder keys and carry unrelated heads.
	prefixed := map[string]*tensor.RawTensor{
		"cls.predictions.bias":    tensor.Zeros[float32](tensor.Shape{32}, backend).Raw(),
		"embeddings.position_ids": tensor.Zeros[int64](tensor.Shape{1, 16}, backend).Raw(),
	}
	for key, raw := range sd {
		prefixed["bert."+key] = raw
	}
	require.NoError(t, dst.LoadStateDict(prefixed))

	ids := ints(t, []int32{2, 5, 6, 3}, 1, 4)
	h1, p1 := src.Forward(ids, nil, nil)
	h2, p2 := dst.Forward(ids, nil, nil)
	assert.Equal(t, h1.Data(), h2.Data())
	assert.Equal(t, p1.Data(), p2.Data())
	assert.Equal(t, 32*8+16*8+2*8+8+8+2*(4*(8*8+8)+8+8+(8*16+16)+(16*8+8)+8+8)+8*8+8,
		countParams(src))
}

func countParams(enc *bert.Encoder[*cpu.CPUBackend]) int {
	n := 0
	for _, p := range enc.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

func TestEncoderLoadStateDictMissingKey(t *testing.T) {
	enc, err := bert.New(tinyConfig(), cpu.New())
	require.NoError(t, err)

	sd := enc.StateDict()
	delete(sd, "encoder.layer.1.intermediate.dense.bias")

	err = enc.LoadStateDict(sd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder.layer.1.intermediate.dense")
}

func writeModelDir(t *testing.T, cfg bert.Config, weights map[string]*tensor.RawTensor) string {
	t.Helper()
	dir := t.TempDir()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, bert.ConfigFile), data, 0o600))
	if weights != nil {
		require.NoError(t, loader.WriteFile(filepath.Join(dir, bert.WeightsFile), weights, nil))
	}
	return dir
}

func TestLoad(t *testing.T) {
	backend := cpu.New()
	src, err := bert.New(tinyConfig(), backend)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		dir := writeModelDir(t, tinyConfig(), src.StateDict())
		enc, err := bert.Load(dir, backend)
		require.NoError(t, err)

		ids := ints(t, []int32{2, 5, 6, 3}, 1, 4)
		_, want := src.Forward(ids, nil, nil)
		_, got := enc.Forward(ids, nil, nil)
		assert.Equal(t, want.Data(), got.Data())
	})

	t.Run("missing weights", func(t *testing.T) {
		dir := writeModelDir(t, tinyConfig(), nil)
		_, err := bert.Load(dir, backend)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unsupported architecture", func(t *testing.T) {
		cfg := tinyConfig()
		cfg.ModelType = "xlnet"
		dir := writeModelDir(t, cfg, src.StateDict())
		_, err := bert.Load(dir, backend)
		assert.ErrorIs(t, err, bert.ErrUnsupportedArchitecture)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := bert.Load(filepath.Join(t.TempDir(), "absent"), backend)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
