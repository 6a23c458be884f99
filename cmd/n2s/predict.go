package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/backend/webgpu"
	"github.com/born-ml/n2s/internal/features"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/internal/observability"
	"github.com/born-ml/n2s/internal/predict"
	"github.com/born-ml/n2s/internal/schema"
	"github.com/born-ml/n2s/internal/tensor"
	"github.com/born-ml/n2s/internal/tokenizer"
)

type predictFlags struct {
	headers []string
	table   string
}

// columnOutput is a decoded column labelled with its header.
type columnOutput struct {
	Header string `json:"header"`
	m1.Column
}

type predictOutput struct {
	Question    string         `json:"question"`
	ConnOp      m1.ConnOp      `json:"conn_op"`
	ConnOpProbs []float32      `json:"conn_op_probs,omitempty"`
	Columns     []columnOutput `json:"columns"`
}

func newPredictCmd(a *app) *cobra.Command {
	var f predictFlags
	cmd := &cobra.Command{
		Use:   "predict [question]",
		Short: "Predict SQL components for a question",
		Long: `Predict the condition connector and the per-column aggregation and
comparison operators for a question.

Headers come from repeated --header flags or from a database table with
--table. Without a question argument, questions are read from stdin one per
line until EOF.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPredict(cmd, args, f)
		},
	}
	cmd.Flags().StringArrayVar(&f.headers, "header", nil, "table header, repeatable and in column order")
	cmd.Flags().StringVar(&f.table, "table", "", "read headers from this database table (schema.table)")
	cmd.Flags().Bool("analyze", true, "include class probabilities in the output")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().Int("max-seq-len", 512, "maximum encoder sequence length")
	cmd.MarkFlagsMutuallyExclusive("header", "table")
	a.bind(cmd.Flags(), "analyze", "analyze")
	a.bind(cmd.Flags(), "metrics_addr", "metrics-addr")
	a.bind(cmd.Flags(), "max_seq_len", "max-seq-len")
	return cmd
}

func (a *app) runPredict(cmd *cobra.Command, args []string, f predictFlags) error {
	ctx := cmd.Context()

	headers := f.headers
	if f.table != "" {
		var err error
		if headers, err = a.tableHeaders(ctx, f.table); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	if addr := a.cfg.MetricsAddr; addr != "" {
		serveCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := observability.Serve(serveCtx, addr, reg, a.logger); err != nil {
				a.logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	questions := args
	in := cmd.InOrStdin()
	run := func(svc questionAnswerer) error {
		if len(questions) > 0 {
			return answer(ctx, svc, questions[0], headers, cmd.OutOrStdout())
		}
		return answerLines(ctx, svc, in, headers, cmd.OutOrStdout())
	}

	return onDevice(a.cfg.Device,
		func(b *cpu.CPUBackend) error {
			svc, err := newService(ctx, a, b, metrics)
			if err != nil {
				return err
			}
			return run(svc)
		},
		func(b *webgpu.Backend) error {
			svc, err := newService(ctx, a, b, metrics)
			if err != nil {
				return err
			}
			return run(svc)
		},
	)
}

func (a *app) tableHeaders(ctx context.Context, table string) ([]string, error) {
	db, err := schema.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	headers, err := schema.NewRepository(db).Headers(ctx, table)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Read table headers", zap.String("table", table), zap.Strings("headers", headers))
	return headers, nil
}

// questionAnswerer is the device-independent part of predict.Service.
type questionAnswerer interface {
	Predict(ctx context.Context, question string, headers []string) (m1.Prediction, error)
}

func newService[B tensor.Backend](ctx context.Context, a *app, backend B, metrics *observability.Metrics) (*predict.Service[B], error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.Load(ctx, a.cfg.M1.Tokenizer, resolver)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %q: %w", a.cfg.M1.Tokenizer, err)
	}
	model, err := loadModel(ctx, a, resolver, backend)
	if err != nil {
		return nil, err
	}

	maxLen := min(a.cfg.MaxSeqLen, model.Encoder.Config().MaxSequenceLength())
	encoder, err := features.NewEncoder(tok, maxLen)
	if err != nil {
		return nil, err
	}
	return predict.New(model, encoder, backend,
		predict.WithLogger(a.logger),
		predict.WithMetrics(metrics),
		predict.WithAnalyze(a.cfg.Analyze),
		predict.WithDevice(string(a.cfg.Device)),
	), nil
}

func answer(ctx context.Context, svc questionAnswerer, question string, headers []string, w io.Writer) error {
	pred, err := svc.Predict(ctx, question, headers)
	if err != nil {
		return err
	}
	out := predictOutput{
		Question:    question,
		ConnOp:      pred.ConnOp,
		ConnOpProbs: pred.ConnOpProbs,
		Columns:     make([]columnOutput, len(pred.Columns)),
	}
	for i, c := range pred.Columns {
		out.Columns[i] = columnOutput{Header: headers[c.Index], Column: c}
	}
	return json.NewEncoder(w).Encode(out)
}

// answerLines answers every non-empty line of r. Invalid questions and
// failed forward passes are reported on w and do not stop the loop.
func answerLines(ctx context.Context, svc questionAnswerer, r io.Reader, headers []string, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		err := answer(ctx, svc, question, headers, w)
		switch {
		case errors.Is(err, predict.ErrInvalidRequest), errors.Is(err, m1.ErrForward):
			if encErr := json.NewEncoder(w).Encode(map[string]string{"question": question, "error": err.Error()}); encErr != nil {
				return encErr
			}
		case err != nil:
			return err
		}
	}
	return scanner.Err()
}
