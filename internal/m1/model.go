// Package m1 implements the first-stage NL2SQL model: a BERT encoder with
// three classification heads.
//
//   - connector head on the pooled output: [batch, 3] (none / AND / OR)
//   - aggregation head on each header token: [N, 7]
//   - comparison head on each header token: [N, 5]
//
// N is the total number of header positions marked in the batch.
package m1

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/n2s/internal/bert"
	"github.com/born-ml/n2s/internal/nn"
	"github.com/born-ml/n2s/internal/tensor"
)

// ErrForward is returned when a forward pass fails on malformed input.
var ErrForward = errors.New("forward failed")

// headDropout is the dropout rate in front of every head.
const headDropout = 0.5

// Resolver maps a pretrained model identifier to a local directory.
type Resolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Model is the encoder plus connector, aggregation and comparison heads.
//
// Forward is safe for concurrent use. Loading weights or switching modes is
// not, and must not overlap with Forward.
type Model[B tensor.Backend] struct {
	Encoder *bert.Encoder[B]
	ConnOp  *nn.Sequential[B]
	Agg     *nn.Sequential[B]
	CondOp  *nn.Sequential[B]
}

// Output holds unnormalized logits.
type Output[B tensor.Backend] struct {
	ConnOp *tensor.Tensor[float32, B] // [batch, 3]
	CondOp *tensor.Tensor[float32, B] // [N, 5]
	Agg    *tensor.Tensor[float32, B] // [N, 7]
}

// New wraps an encoder with freshly initialized heads sized to its hidden width.
func New[B tensor.Backend](encoder *bert.Encoder[B]) *Model[B] {
	h := encoder.HiddenSize()
	backend := encoder.Backend()
	return &Model[B]{
		Encoder: encoder,
		ConnOp:  newHead(h, NumConnOps, backend),
		Agg:     newHead(h, NumAggs, backend),
		CondOp:  newHead(h, NumCondOps, backend),
	}
}

// Load resolves a pretrained encoder by identifier and attaches new heads.
// It fails for empty or unknown identifiers and unsupported architectures.
func Load[B tensor.Backend](ctx context.Context, pretrained string, resolver Resolver, backend B) (*Model[B], error) {
	dir, err := resolver.Resolve(ctx, pretrained)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", pretrained, err)
	}
	encoder, err := bert.Load(dir, backend)
	if err != nil {
		return nil, fmt.Errorf("load encoder %q: %w", pretrained, err)
	}
	return New(encoder), nil
}

func newHead[B tensor.Backend](hidden, classes int, backend B) *nn.Sequential[B] {
	return nn.NewSequential[B](
		nn.NewDropout[B](headDropout),
		nn.NewLinear(hidden, hidden, backend),
		nn.NewReLU[B](),
		nn.NewLinear(hidden, classes, backend),
	)
}

// Forward runs the model.
//
// ids, mask, typeIDs and header are [batch, seq]. header is 1 on the first
// token of every column header. Failures inside the numerical layer (shape
// or index errors) are returned as ErrForward and leave the model usable.
func (m *Model[B]) Forward(ids, mask, typeIDs, header *tensor.Tensor[int32, B]) (out *Output[B], err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrForward, r)
		}
	}()

	if !header.Shape().Equal(ids.Shape()) {
		return nil, fmt.Errorf("%w: header indicator %v does not match ids %v", ErrForward, header.Shape(), ids.Shape())
	}

	hidden, pooled := m.Encoder.Forward(ids, mask, typeIDs)
	rows := GatherHeaders(hidden, header)

	return &Output[B]{
		ConnOp: m.ConnOp.Forward(pooled),
		CondOp: m.CondOp.Forward(rows),
		Agg:    m.Agg.Forward(rows),
	}, nil
}

// GatherHeaders selects the hidden states [batch, seq, hidden] at every
// position where header [batch, seq] is non-zero. Rows come out batch-major,
// then by position, as [N, hidden].
func GatherHeaders[B tensor.Backend](hidden *tensor.Tensor[float32, B], header *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	shape := hidden.Shape()
	if len(shape) != 3 {
		panic(fmt.Sprintf("gather_headers: expected hidden [batch, seq, hidden], got %v", shape))
	}
	flat := hidden.Reshape(shape[0]*shape[1], shape[2])
	return flat.IndexSelect(0, tensor.NonZero(header))
}

// SetTraining toggles dropout in the encoder and all heads.
func (m *Model[B]) SetTraining(training bool) {
	m.Encoder.SetTraining(training)
	for _, head := range m.heads() {
		head.SetTraining(training)
	}
}

// Parameters returns encoder and head weights.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	params := m.Encoder.Parameters()
	for _, head := range m.heads() {
		params = append(params, head.Parameters()...)
	}
	return params
}

// Component names, also used as checkpoint key prefixes.
const (
	ComponentEncoder = "bert_model"
	ComponentConnOp  = "cond_conn_op_decoder"
	ComponentAgg     = "agg_decoder"
	ComponentCondOp  = "cond_op_decoder"
)

// ParameterCounts returns the number of scalar weights per component.
func (m *Model[B]) ParameterCounts() map[string]int {
	return map[string]int{
		ComponentEncoder: nn.CountParameters(m.Encoder.Parameters()),
		ComponentConnOp:  nn.CountParameters(m.ConnOp.Parameters()),
		ComponentAgg:     nn.CountParameters(m.Agg.Parameters()),
		ComponentCondOp:  nn.CountParameters(m.CondOp.Parameters()),
	}
}

func (m *Model[B]) heads() []*nn.Sequential[B] {
	return []*nn.Sequential[B]{m.ConnOp, m.Agg, m.CondOp}
}
