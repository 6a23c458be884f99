// Package predict serves M1 predictions for questions over table headers.
package predict

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/born-ml/n2s/internal/features"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/internal/observability"
	"github.com/born-ml/n2s/internal/tensor"
)

// ErrInvalidRequest is returned for requests that cannot be encoded.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one question asked against a table.
type Request struct {
	Question string   `json:"question"`
	Headers  []string `json:"headers"`
}

type options struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	analyze bool
	device  string
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records forward latency and prediction outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAnalyze attaches class probabilities to every prediction.
func WithAnalyze(analyze bool) Option {
	return func(o *options) { o.analyze = analyze }
}

// WithDevice labels forward latency metrics.
func WithDevice(device string) Option {
	return func(o *options) { o.device = device }
}

// Service runs feature encoding, the model and decoding.
//
// Predict may be called concurrently. Reload and Swap wait for in-flight
// predictions and block new ones until the model is replaced.
type Service[B tensor.Backend] struct {
	mu    sync.RWMutex
	model *m1.Model[B]

	encoder *features.Encoder
	backend B
	opts    options
}

// New creates a Service. The model is switched to evaluation mode.
func New[B tensor.Backend](model *m1.Model[B], encoder *features.Encoder, backend B, opts ...Option) *Service[B] {
	o := options{logger: zap.NewNop(), device: backend.Name()}
	for _, opt := range opts {
		opt(&o)
	}
	model.SetTraining(false)
	return &Service[B]{model: model, encoder: encoder, backend: backend, opts: o}
}

// Predict classifies a single question.
func (s *Service[B]) Predict(ctx context.Context, question string, headers []string) (m1.Prediction, error) {
	preds, err := s.PredictBatch(ctx, []Request{{Question: question, Headers: headers}})
	if err != nil {
		return m1.Prediction{}, err
	}
	return preds[0], nil
}

// PredictBatch classifies several questions in one forward pass.
func (s *Service[B]) PredictBatch(ctx context.Context, reqs []Request) ([]m1.Prediction, error) {
	preds, outcome, err := s.predict(ctx, reqs)
	if s.opts.metrics != nil {
		s.opts.metrics.IncPrediction(outcome)
	}
	if err != nil {
		s.opts.logger.Warn("Prediction failed",
			zap.Int("batch", len(reqs)),
			zap.String("outcome", outcome),
			zap.Error(err))
		return nil, err
	}
	return preds, nil
}

func (s *Service[B]) predict(ctx context.Context, reqs []Request) ([]m1.Prediction, string, error) {
	if len(reqs) == 0 {
		return nil, observability.OutcomeInvalid, fmt.Errorf("%w: empty batch", ErrInvalidRequest)
	}

	examples := make([]features.Example, len(reqs))
	for i, req := range reqs {
		if req.Question == "" {
			return nil, observability.OutcomeInvalid, fmt.Errorf("%w: request %d has no question", ErrInvalidRequest, i)
		}
		ex, err := s.encoder.Encode(req.Question, req.Headers)
		if err != nil {
			return nil, observability.OutcomeInvalid, fmt.Errorf("%w: request %d: %w", ErrInvalidRequest, i, err)
		}
		examples[i] = ex
	}

	batch, err := features.Collate(examples, s.encoder.PadID(), s.backend)
	if err != nil {
		return nil, observability.OutcomeInvalid, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, observability.OutcomeForwardFail, err
	}

	s.mu.RLock()
	start := time.Now()
	out, err := s.model.Forward(batch.InputIDs, batch.AttentionMask, batch.TokenTypeIDs, batch.HeaderMask)
	elapsed := time.Since(start)
	s.mu.RUnlock()
	if err != nil {
		return nil, observability.OutcomeForwardFail, err
	}

	headers := 0
	for _, n := range batch.HeaderCounts {
		headers += n
	}
	if s.opts.metrics != nil {
		s.opts.metrics.ObserveForward(s.opts.device, headers, elapsed)
	}
	s.opts.logger.Debug("Forward pass",
		zap.Int("batch", batch.Size()),
		zap.Int("seq", batch.InputIDs.Shape()[1]),
		zap.Int("headers", headers),
		zap.Duration("elapsed", elapsed))

	preds, err := m1.Decode(out, batch.HeaderCounts, s.opts.analyze)
	if err != nil {
		return nil, observability.OutcomeForwardFail, err
	}
	return preds, observability.OutcomeOK, nil
}

// Reload replaces the model with one read from a checkpoint file. The
// current model stays in place if loading fails.
func (s *Service[B]) Reload(path string) error {
	model, err := m1.LoadCheckpoint(path, s.backend)
	if err != nil {
		return err
	}
	s.Swap(model)
	s.opts.logger.Info("Reloaded model", zap.String("checkpoint", path))
	return nil
}

// Swap installs model, switched to evaluation mode.
func (s *Service[B]) Swap(model *m1.Model[B]) {
	model.SetTraining(false)
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
}

// Model returns the current model.
func (s *Service[B]) Model() *m1.Model[B] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}
