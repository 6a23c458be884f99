package predict_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/bert"
	"github.com/born-ml/n2s/internal/features"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/internal/observability"
	"github.com/born-ml/n2s/internal/predict"
	"github.com/born-ml/n2s/internal/tokenizer"
)

type service = predict.Service[*cpu.CPUBackend]

func tinyConfig() bert.Config {
	return bert.Config{
		ModelType:             bert.ModelTypeBERT,
		VocabSize:             32,
		HiddenSize:            8,
		NumHiddenLayers:       1,
		NumAttentionHeads:     2,
		IntermediateSize:      16,
		HiddenAct:             "gelu",
		HiddenDropoutProb:     0.1,
		MaxPositionEmbeddings: 32,
		TypeVocabSize:         2,
		LayerNormEps:          1e-12,
	}
}

func newModel(t *testing.T, backend *cpu.CPUBackend) *m1.Model[*cpu.CPUBackend] {
	t.Helper()
	enc, err := bert.New(tinyConfig(), backend)
	require.NoError(t, err)
	return m1.New(enc)
}

func newEncoder(t *testing.T, maxLen int) *features.Encoder {
	t.Helper()
	vocab := map[string]int32{"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3}
	for i, r := range []string{"城", "市", "人", "口", "名", "称", "面", "积", "多", "少", "大"} {
		vocab[r] = int32(4 + i)
	}
	tok, err := tokenizer.NewWordPiece(vocab, true)
	require.NoError(t, err)
	enc, err := features.NewEncoder(tok, maxLen)
	require.NoError(t, err)
	return enc
}

func newService(t *testing.T, opts ...predict.Option) (*service, *observability.Metrics, *prometheus.Registry) {
	t.Helper()
	backend := cpu.New()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	opts = append([]predict.Option{
		predict.WithLogger(zaptest.NewLogger(t)),
		predict.WithMetrics(metrics),
		predict.WithDevice("cpu"),
	}, opts...)
	return predict.New(newModel(t, backend), newEncoder(t, 32), backend, opts...), metrics, reg
}

func TestPredict(t *testing.T) {
	svc, _, reg := newService(t)

	pred, err := svc.Predict(context.Background(), "人口多少", []string{"城市", "人口", "面积"})
	require.NoError(t, err)
	require.Len(t, pred.Columns, 3)
	for i, col := range pred.Columns {
		assert.Equal(t, i, col.Index)
		assert.Nil(t, col.AggProbs)
	}
	assert.Nil(t, pred.ConnOpProbs)

	n, err := testutil.GatherAndCount(reg, "n2s_predictions_total", "n2s_header_positions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPredictAnalyze(t *testing.T) {
	svc, _, _ := newService(t, predict.WithAnalyze(true))

	pred, err := svc.Predict(context.Background(), "面积多大", []string{"名称", "面积"})
	require.NoError(t, err)
	assert.Len(t, pred.ConnOpProbs, m1.NumConnOps)
	require.Len(t, pred.Columns, 2)
	assert.Len(t, pred.Columns[1].AggProbs, m1.NumAggs)
	assert.Len(t, pred.Columns[1].CondOpProbs, m1.NumCondOps)
}

func TestPredictBatchMatchesSingle(t *testing.T) {
	svc, _, _ := newService(t, predict.WithAnalyze(true))
	ctx := context.Background()

	reqs := []predict.Request{
		{Question: "人口多少", Headers: []string{"城市", "人口", "面积"}},
		{Question: "面积", Headers: []string{"名称", "面积"}},
	}
	batch, err := svc.PredictBatch(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for i, req := range reqs {
		single, err := svc.Predict(ctx, req.Question, req.Headers)
		require.NoError(t, err)
		require.Len(t, batch[i].Columns, len(req.Headers))
		assert.InDeltaSlice(t, single.ConnOpProbs, batch[i].ConnOpProbs, 1e-4)
		for c := range single.Columns {
			assert.InDeltaSlice(t, single.Columns[c].AggProbs, batch[i].Columns[c].AggProbs, 1e-4)
		}
	}
}

func TestPredictNoHeaders(t *testing.T) {
	svc, _, _ := newService(t)
	pred, err := svc.Predict(context.Background(), "人口", nil)
	require.NoError(t, err)
	assert.Empty(t, pred.Columns)
}

func TestPredictInvalid(t *testing.T) {
	backend := cpu.New()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	svc := predict.New(newModel(t, backend), newEncoder(t, 8), backend,
		predict.WithMetrics(metrics), predict.WithLogger(zaptest.NewLogger(t)))

	tests := []struct {
		name string
		reqs []predict.Request
	}{
		{"empty batch", nil},
		{"empty question", []predict.Request{{Headers: []string{"城市"}}}},
		{"headers beyond max length", []predict.Request{{Question: "人口多少", Headers: []string{"城市", "人口", "面积"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PredictBatch(context.Background(), tt.reqs)
			assert.ErrorIs(t, err, predict.ErrInvalidRequest)
		})
	}

	_, err := svc.Predict(context.Background(), "人口多少", []string{"城市", "人口", "面积"})
	assert.ErrorIs(t, err, features.ErrSequenceTooLong)

	n, err := testutil.GatherAndCount(reg, "n2s_forward_duration_seconds")
	require.NoError(t, err)
	assert.Zero(t, n, "no forward pass for invalid requests")
}

func TestPredictCanceled(t *testing.T) {
	svc, _, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Predict(ctx, "人口", []string{"城市"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReload(t *testing.T) {
	backend := cpu.New()
	svc, _, _ := newService(t, predict.WithAnalyze(true))
	ctx := context.Background()

	replacement := newModel(t, backend)
	path := filepath.Join(t.TempDir(), "m1.safetensors")
	require.NoError(t, replacement.Save(path))

	want, err := predict.New(replacement, newEncoder(t, 32), backend, predict.WithAnalyze(true)).
		Predict(ctx, "人口多少", []string{"城市", "人口"})
	require.NoError(t, err)

	before := svc.Model()
	require.NoError(t, svc.Reload(path))
	assert.NotSame(t, before, svc.Model())

	got, err := svc.Predict(ctx, "人口多少", []string{"城市", "人口"})
	require.NoError(t, err)
	assert.Equal(t, want.ConnOpProbs, got.ConnOpProbs)

	current := svc.Model()
	assert.Error(t, svc.Reload(filepath.Join(t.TempDir(), "absent.safetensors")))
	assert.Same(t, current, svc.Model())
}

func TestConcurrentPredictAndSwap(t *testing.T) {
	backend := cpu.New()
	svc, _, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Predict(ctx, "人口多少", []string{"城市", "人口"})
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		svc.Swap(newModel(t, backend))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
