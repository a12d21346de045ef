// Package metrics exposes Prometheus collectors for generation traffic.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/logits"
)

// Collectors implements inference.Observer.
type Collectors struct {
	generations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	beams       *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the loom collectors with reg. A nil reg uses a fresh
// registry, which keeps tests and multiple servers in one process apart.
func New(reg *prometheus.Registry) *Collectors {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Collectors{
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_generations_total",
			Help: "Total number of completed generation requests",
		}, []string{"strategy"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_generation_failures_total",
			Help: "Total number of failed generation requests",
		}, []string{"strategy", "error_type"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_generation_duration_seconds",
			Help:    "Duration of generation requests",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"strategy"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_decode_steps_total",
			Help: "Total number of batched decode steps",
		}, []string{"strategy"}),
		beams: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_decode_step_beams",
			Help:    "Number of live beams fed to the model per decode step",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}, []string{"strategy"}),
		gatherer: reg,
	}
}

func (c *Collectors) ObserveStep(strategy string, beams int) {
	c.steps.WithLabelValues(strategy).Inc()
	c.beams.WithLabelValues(strategy).Observe(float64(beams))
}

func (c *Collectors) ObserveGeneration(strategy string, elapsed time.Duration, err error) {
	c.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if err != nil {
		c.failures.WithLabelValues(strategy, ErrorType(err)).Inc()
		return
	}
	c.generations.WithLabelValues(strategy).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ErrorType buckets err into a small fixed label set.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, decode.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, decode.ErrVocabMismatch):
		return "vocab_mismatch"
	case errors.Is(err, logits.ErrDegenerate):
		return "degenerate"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "model"
	}
}
