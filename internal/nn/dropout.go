package nn

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/born-ml/n2s/internal/tensor"
)

// Dropout zeroes each element with probability p during training and scales
// the survivors by 1/(1-p). In evaluation mode it returns its input unchanged.
//
// Modules start in evaluation mode; call SetTraining(true) to enable dropout.
type Dropout[B tensor.Backend] struct {
	p        float32
	training atomic.Bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDropout creates a Dropout module. p must be in [0, 1).
func NewDropout[B tensor.Backend](p float32) *Dropout[B] {
	return NewDropoutWithSeed[B](p, time.Now().UnixNano())
}

// NewDropoutWithSeed creates a Dropout module with a deterministic mask sequence.
func NewDropoutWithSeed[B tensor.Backend](p float32, seed int64) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("Dropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{
		p:   p,
		rng: rand.New(rand.NewSource(seed)), //nolint:gosec // dropout masks are not security sensitive
	}
}

// P returns the drop probability.
func (d *Dropout[B]) P() float32 {
	return d.p
}

// SetTraining enables (true) or disables (false) dropout.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training.Store(training)
}

// Training reports whether dropout is active.
func (d *Dropout[B]) Training() bool {
	return d.training.Load()
}

// Forward applies dropout when training; otherwise it is the identity.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training.Load() || d.p == 0 || input.NumElements() == 0 {
		return input
	}

	scale := 1 / (1 - d.p)
	mask := tensor.Zeros[float32](input.Shape(), input.Backend())
	data := mask.Data()

	d.mu.Lock()
	for i := range data {
		if d.rng.Float32() >= d.p {
			data[i] = scale
		}
	}
	d.mu.Unlock()

	return input.Mul(mask)
}

// Parameters returns nil (Dropout has no parameters).
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty state dict.
func (d *Dropout[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (d *Dropout[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}
