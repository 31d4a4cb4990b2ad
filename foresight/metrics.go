package foresight

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects solver outcomes. A nil *Metrics records nothing.
type Metrics struct {
	solves     *prometheus.CounterVec
	iterations *prometheus.HistogramVec
	residual   *prometheus.GaugeVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the solver collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "elbsim",
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Perfect-foresight solves by mode and outcome.",
		}, []string{"mode", "outcome"}),
		iterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "elbsim",
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Newton steps taken by converged solves.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		}, []string{"mode"}),
		residual: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "elbsim",
			Subsystem: "solver",
			Name:      "last_residual_norm",
			Help:      "Final residual infinity norm of the last converged solve.",
		}, []string{"mode"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "elbsim",
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Wall time per solve.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"mode"}),
	}
}

func (m *Metrics) observe(mode Mode, rep *Report, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := mode.String()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())

	switch {
	case err == nil:
		m.solves.WithLabelValues(label, "converged").Inc()
		m.iterations.WithLabelValues(label).Observe(float64(rep.Iterations))
		m.residual.WithLabelValues(label).Set(rep.ResidualNorm)
	case errors.Is(err, ErrSolverDiverged):
		m.solves.WithLabelValues(label, "diverged").Inc()
	default:
		m.solves.WithLabelValues(label, "rejected").Inc()
	}
}
