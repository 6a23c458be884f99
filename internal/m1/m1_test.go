package m1_test

import (
	"context"
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
	"github.com/born-ml/n2s/internal/hub"
	"github.com/born-ml/n2s/internal/loader"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/internal/tensor"
)

type cpuTensor = tensor.Tensor[int32, *cpu.CPUBackend]

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

func newModel(t *testing.T) *m1.Model[*cpu.CPUBackend] {
	t.Helper()
	enc, err := bert.New(tinyConfig(), cpu.New())
	require.NoError(t, err)
	return m1.New(enc)
}

func ints(data []int32, shape ...int) *cpuTensor {
	return tensor.MustFromSlice(data, tensor.Shape(shape), cpu.New())
}

// batch is two examples of length 8: the first has 3 headers, the second 2.
type batch struct {
	ids, mask, types, header *cpuTensor
}

func scenario() batch {
	return batch{
		ids: ints([]int32{
			2, 10, 11, 3, 12, 3, 13, 3,
			2, 14, 3, 15, 3, 16, 3, 0,
		}, 2, 8),
		mask: ints([]int32{
			1, 1, 1, 1, 1, 1, 1, 1,
			1, 1, 1, 1, 1, 1, 1, 0,
		}, 2, 8),
		types: ints([]int32{
			0, 0, 0, 0, 1, 1, 1, 1,
			0, 0, 0, 0, 0, 1, 1, 0,
		}, 2, 8),
		header: ints([]int32{
			0, 0, 0, 0, 1, 0, 1, 1,
			0, 0, 0, 0, 0, 1, 0, 1,
		}, 2, 8),
	}
}

func TestForwardShapes(t *testing.T) {
	model := newModel(t)
	b := scenario()

	out, err := model.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, m1.NumConnOps}, out.ConnOp.Shape())
	assert.Equal(t, tensor.Shape{5, m1.NumAggs}, out.Agg.Shape())
	assert.Equal(t, tensor.Shape{5, m1.NumCondOps}, out.CondOp.Shape())
}

func TestForwardNoHeaders(t *testing.T) {
	model := newModel(t)
	b := scenario()
	header := tensor.Zeros[int32](tensor.Shape{2, 8}, cpu.New())

	out, err := model.Forward(b.ids, b.mask, b.types, header)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out.ConnOp.Shape())
	assert.Equal(t, tensor.Shape{0, 7}, out.Agg.Shape())
	assert.Equal(t, tensor.Shape{0, 5}, out.CondOp.Shape())

	preds, err := m1.Decode(out, []int{0, 0}, true)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Empty(t, preds[0].Columns)
}

func TestForwardDeterministicInEval(t *testing.T) {
	model := newModel(t)
	b := scenario()

	first, err := model.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)
	second, err := model.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)

	assert.Equal(t, first.ConnOp.Data(), second.ConnOp.Data())
	assert.Equal(t, first.Agg.Data(), second.Agg.Data())
	assert.Equal(t, first.CondOp.Data(), second.CondOp.Data())
}

func TestForwardBatchIndependence(t *testing.T) {
	model := newModel(t)
	b := scenario()

	both, err := model.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)

	row := func(x *cpuTensor, i int) *cpuTensor {
		return ints(x.Data()[i*8:(i+1)*8], 1, 8)
	}
	first, err := model.Forward(row(b.ids, 0), row(b.mask, 0), row(b.types, 0), row(b.header, 0))
	require.NoError(t, err)
	second, err := model.Forward(row(b.ids, 1), row(b.mask, 1), row(b.types, 1), row(b.header, 1))
	require.NoError(t, err)

	assert.InDeltaSlice(t, first.ConnOp.Data(), both.ConnOp.Data()[:3], 1e-5)
	assert.InDeltaSlice(t, second.ConnOp.Data(), both.ConnOp.Data()[3:], 1e-5)
	assert.InDeltaSlice(t, first.Agg.Data(), both.Agg.Data()[:3*7], 1e-5)
	assert.InDeltaSlice(t, second.Agg.Data(), both.Agg.Data()[3*7:], 1e-5)
	assert.InDeltaSlice(t, first.CondOp.Data(), both.CondOp.Data()[:3*5], 1e-5)
	assert.InDeltaSlice(t, second.CondOp.Data(), both.CondOp.Data()[3*5:], 1e-5)
}

func TestGatherHeadersOrder(t *testing.T) {
	backend := cpu.New()
	// hidden[b, s, :] = {10*b + s, -(10*b + s)}
	data := make([]float32, 0, 2*3*2)
	for b := 0; b < 2; b++ {
		for s := 0; s < 3; s++ {
			v := float32(10*b + s)
			data = append(data, v, -v)
		}
	}
	hidden := tensor.MustFromSlice(data, tensor.Shape{2, 3, 2}, backend)
	header := tensor.MustFromSlice([]int32{0, 1, 1, 1, 0, 1}, tensor.Shape{2, 3}, backend)

	rows := m1.GatherHeaders(hidden, header)
	assert.Equal(t, tensor.Shape{4, 2}, rows.Shape())
	assert.Equal(t, []float32{1, -1, 2, -2, 10, -10, 12, -12}, rows.Data())
}

func TestForwardErrorLeavesModelUsable(t *testing.T) {
	model := newModel(t)
	b := scenario()

	tests := []struct {
		name                     string
		ids, mask, types, header *cpuTensor
	}{
		{
			name:   "token id outside vocabulary",
			ids:    ints([]int32{2, 99, 3, 0}, 1, 4),
			header: ints([]int32{0, 0, 1, 0}, 1, 4),
		},
		{
			name:   "header shape mismatch",
			ids:    ints([]int32{2, 5, 3, 0}, 1, 4),
			header: ints([]int32{0, 0, 1}, 1, 3),
		},
		{
			name:   "sequence longer than position table",
			ids:    tensor.Full[int32](tensor.Shape{1, 20}, 5, cpu.New()),
			header: tensor.Zeros[int32](tensor.Shape{1, 20}, cpu.New()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := model.Forward(tt.ids, tt.mask, tt.types, tt.header)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, m1.ErrForward)

			out, err = model.Forward(b.ids, b.mask, b.types, b.header)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{5, 7}, out.Agg.Shape())
		})
	}
}

type dirResolver struct {
	dirs map[string]string
}

func (r dirResolver) Resolve(_ context.Context, id string) (string, error) {
	if dir, ok := r.dirs[id]; ok {
		return dir, nil
	}
	return "", hub.ErrUnknownModel
}

func writeModelDir(t *testing.T, cfg bert.Config, weights map[string]*tensor.RawTensor) string {
	t.Helper()
	dir := t.TempDir()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, bert.ConfigFile), data, 0o600))
	require.NoError(t, loader.WriteFile(filepath.Join(dir, bert.WeightsFile), weights, nil))
	return dir
}

func TestLoad(t *testing.T) {
	backend := cpu.New()
	enc, err := bert.New(tinyConfig(), backend)
	require.NoError(t, err)

	xlnet := tinyConfig()
	xlnet.ModelType = "xlnet"

	resolver := dirResolver{dirs: map[string]string{
		"tiny/bert":  writeModelDir(t, tinyConfig(), enc.StateDict()),
		"tiny/xlnet": writeModelDir(t, xlnet, enc.StateDict()),
	}}

	t.Run("pretrained encoder", func(t *testing.T) {
		model, err := m1.Load(context.Background(), "tiny/bert", resolver, backend)
		require.NoError(t, err)
		assert.Equal(t, 8, model.Encoder.HiddenSize())

		b := scenario()
		out, err := model.Forward(b.ids, b.mask, b.types, b.header)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 3}, out.ConnOp.Shape())
	})

	tests := []struct {
		name string
		id   string
		want error
	}{
		{"empty identifier", "", hub.ErrUnknownModel},
		{"unknown identifier", "nobody/nothing", hub.ErrUnknownModel},
		{"unsupported architecture", "tiny/xlnet", bert.ErrUnsupportedArchitecture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := m1.Load(context.Background(), tt.id, resolver, backend)
			assert.Nil(t, model)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParameterCounts(t *testing.T) {
	model := newModel(t)
	counts := model.ParameterCounts()

	head := func(k int) int { return 8*8 + 8 + 8*k + k }
	assert.Equal(t, head(3), counts[m1.ComponentConnOp])
	assert.Equal(t, head(7), counts[m1.ComponentAgg])
	assert.Equal(t, head(5), counts[m1.ComponentCondOp])
	assert.Positive(t, counts[m1.ComponentEncoder])

	total := 0
	for _, p := range model.Parameters() {
		total += p.Tensor().NumElements()
	}
	assert.Equal(t, counts[m1.ComponentEncoder]+head(3)+head(7)+head(5), total)
}

func TestCheckpointRoundTrip(t *testing.T) {
	backend := cpu.New()
	src := newModel(t)
	path := filepath.Join(t.TempDir(), "saved_models", "m1.safetensors")
	require.NoError(t, src.Save(path))

	sd := src.StateDict()
	for _, key := range []string{
		"bert_model.embeddings.word_embeddings.weight",
		"bert_model.pooler.dense.weight",
		"cond_conn_op_decoder.1.weight",
		"cond_conn_op_decoder.3.bias",
		"agg_decoder.3.weight",
		"cond_op_decoder.1.bias",
	} {
		assert.Contains(t, sd, key)
	}

	b := scenario()
	want, err := src.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)

	t.Run("load checkpoint", func(t *testing.T) {
		dst, err := m1.LoadCheckpoint(path, backend)
		require.NoError(t, err)
		got, err := dst.Forward(b.ids, b.mask, b.types, b.header)
		require.NoError(t, err)
		assert.Equal(t, want.ConnOp.Data(), got.ConnOp.Data())
		assert.Equal(t, want.Agg.Data(), got.Agg.Data())
		assert.Equal(t, want.CondOp.Data(), got.CondOp.Data())
	})

	t.Run("load weights", func(t *testing.T) {
		dst := newModel(t)
		require.NoError(t, dst.LoadWeights(path))
		got, err := dst.Forward(b.ids, b.mask, b.types, b.header)
		require.NoError(t, err)
		assert.Equal(t, want.Agg.Data(), got.Agg.Data())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := m1.LoadCheckpoint(filepath.Join(t.TempDir(), "absent.safetensors"), backend)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("no encoder config", func(t *testing.T) {
		bare := filepath.Join(t.TempDir(), "bare.safetensors")
		require.NoError(t, loader.WriteFile(bare, sd, nil))
		_, err := m1.LoadCheckpoint(bare, backend)
		require.Error(t, err)
		assert.Contains(t, err.Error(), m1.MetadataEncoderConfig)
	})
}

func TestLoadStateDictLegacyAggPrefix(t *testing.T) {
	src := newModel(t)
	dst := newModel(t)

	legacy := make(map[string]*tensor.RawTensor)
	for key, raw := range src.StateDict() {
		if rest, ok := strings.CutPrefix(key, m1.ComponentAgg+"."); ok {
			key = "agg_deocder." + rest
		}
		legacy[key] = raw
	}
	require.NoError(t, dst.LoadStateDict(legacy))

	b := scenario()
	want, err := src.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)
	got, err := dst.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)
	assert.Equal(t, want.Agg.Data(), got.Agg.Data())
}

func TestLoadStateDictMissingHead(t *testing.T) {
	model := newModel(t)
	sd := model.StateDict()
	delete(sd, "cond_op_decoder.3.weight")

	err := model.LoadStateDict(sd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), m1.ComponentCondOp)
}

func logits(data []float32, shape ...int) *tensor.Tensor[float32, *cpu.CPUBackend] {
	return tensor.MustFromSlice(data, tensor.Shape(shape), cpu.New())
}

func TestDecode(t *testing.T) {
	out := &m1.Output[*cpu.CPUBackend]{
		ConnOp: logits([]float32{
			0, 5, 1,
			3, 0, 0,
		}, 2, 3),
		Agg: logits([]float32{
			0, 0, 0, 0, 9, 0, 0,
			0, 0, 0, 0, 0, 0, 9,
			9, 0, 0, 0, 0, 0, 0,
		}, 3, 7),
		CondOp: logits([]float32{
			0, 0, 0, 0, 9,
			0, 0, 9, 0, 0,
			0, 0, 0, 0, 9,
		}, 3, 5),
	}

	t.Run("labels", func(t *testing.T) {
		preds, err := m1.Decode(out, []int{2, 1}, false)
		require.NoError(t, err)
		require.Len(t, preds, 2)

		assert.Equal(t, m1.ConnAnd, preds[0].ConnOp)
		assert.Nil(t, preds[0].ConnOpProbs)
		require.Len(t, preds[0].Columns, 2)
		assert.Equal(t, m1.Column{Index: 0, Agg: m1.AggCount, CondOp: m1.CondNone}, preds[0].Columns[0])
		assert.Equal(t, m1.Column{Index: 1, Agg: m1.AggExcluded, CondOp: m1.CondEq}, preds[0].Columns[1])

		assert.Equal(t, m1.ConnNone, preds[1].ConnOp)
		require.Len(t, preds[1].Columns, 1)
		assert.Equal(t, m1.AggNone, preds[1].Columns[0].Agg)

		assert.Len(t, preds[0].Selected(), 1)
		require.Len(t, preds[0].Conditions(), 1)
		assert.Equal(t, 1, preds[0].Conditions()[0].Index)
	})

	t.Run("analyze", func(t *testing.T) {
		preds, err := m1.Decode(out, []int{2, 1}, true)
		require.NoError(t, err)

		assertDistribution(t, preds[0].ConnOpProbs, m1.NumConnOps)
		for _, p := range preds {
			for _, c := range p.Columns {
				assertDistribution(t, c.AggProbs, m1.NumAggs)
				assertDistribution(t, c.CondOpProbs, m1.NumCondOps)
			}
		}
		assert.Greater(t, preds[0].Columns[0].AggProbs[m1.AggCount], float32(0.9))
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, err := m1.Decode(out, []int{1, 1}, false)
		assert.Error(t, err)
		_, err = m1.Decode(out, []int{3}, false)
		assert.Error(t, err)
	})

	t.Run("negative count", func(t *testing.T) {
		for _, counts := range [][]int{{4, -1}, {-1, 4}} {
			assert.NotPanics(t, func() {
				_, err := m1.Decode(out, counts, false)
				assert.ErrorContains(t, err, "negative header count")
			}, "counts %v", counts)
		}
	})
}

func assertDistribution(t *testing.T, probs []float32, width int) {
	t.Helper()
	require.Len(t, probs, width)
	var sum float32
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-5)
}

func TestLabelsJSON(t *testing.T) {
	pred := m1.Prediction{
		ConnOp: m1.ConnOr,
		Columns: []m1.Column{
			{Index: 0, Agg: m1.AggSum, CondOp: m1.CondGt},
			{Index: 1, Agg: m1.AggExcluded, CondOp: m1.CondNe},
		},
	}
	data, err := json.Marshal(pred)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"conn_op": "OR",
		"columns": [
			{"index": 0, "agg": "SUM", "cond_op": ">"},
			{"index": 1, "agg": "excluded", "cond_op": "!="}
		]
	}`, string(data))

	assert.Equal(t, "Agg(9)", m1.Agg(9).String())
	assert.Equal(t, "CondOp(-1)", m1.CondOp(-1).String())
	assert.Equal(t, "<", m1.CondLt.String())
	assert.True(t, m1.AggMin.Selected())
	assert.False(t, m1.CondNone.HasCondition())
}

func TestForwardConcurrent(t *testing.T) {
	model := newModel(t)
	b := scenario()
	want, err := model.Forward(b.ids, b.mask, b.types, b.header)
	require.NoError(t, err)

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			out, err := model.Forward(b.ids, b.mask, b.types, b.header)
			if err == nil && !equal(out.Agg.Data(), want.Agg.Data()) {
				err = errors.New("concurrent forward diverged")
			}
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		assert.NoError(t, <-errs)
	}
}

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
