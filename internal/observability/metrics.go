package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prediction outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid_input"
	OutcomeForwardFail = "forward_error"
)

// Metrics holds the model serving collectors.
type Metrics struct {
	forwardDuration *prometheus.HistogramVec
	headerPositions prometheus.Counter
	predictions     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		forwardDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "n2s_forward_duration_seconds",
				Help:    "Model forward pass latency by device.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"device"},
		),
		headerPositions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "n2s_header_positions_total",
				Help: "Total number of header positions classified.",
			},
		),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "n2s_predictions_total",
				Help: "Total number of prediction requests by outcome.",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.forwardDuration, m.headerPositions, m.predictions)
	return m
}

// ObserveForward records one forward pass over headers header positions.
func (m *Metrics) ObserveForward(device string, headers int, elapsed time.Duration) {
	m.forwardDuration.WithLabelValues(device).Observe(elapsed.Seconds())
	if headers > 0 {
		m.headerPositions.Add(float64(headers))
	}
}

// IncPrediction counts a prediction request with the given outcome.
func (m *Metrics) IncPrediction(outcome string) {
	m.predictions.WithLabelValues(outcome).Inc()
}
