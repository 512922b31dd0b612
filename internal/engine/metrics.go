package engine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/replypass/replypass/internal/provider"
	"github.com/replypass/replypass/pkg/reply"
)

// Metrics are the Prometheus collectors of the engine.
type Metrics struct {
	generations *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	corrections *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics creates the engine collectors and registers them on reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replypass",
			Name:      "generations_total",
			Help:      "Generation requests by outcome status and failure kind.",
		}, []string{"status", "failure"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replypass",
			Name:      "llm_attempts_total",
			Help:      "Calls to LLM providers by provider and outcome.",
		}, []string{"provider", "outcome"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replypass",
			Name:      "corrections_total",
			Help:      "Corrective re-prompts by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replypass",
			Name:      "generation_duration_seconds",
			Help:      "End-to-end duration of admitted generations.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.generations, m.attempts, m.corrections, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("engine: registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeResult(r reply.Result) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(string(r.Status), string(r.Failure)).Inc()
}

func (m *Metrics) observeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}

func (m *Metrics) observeCorrection(reason string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(reason).Inc()
}

// ObserveAttempt records one provider call. It matches the signature of
// provider.WithObserver.
func (m *Metrics) ObserveAttempt(a provider.Attempt) {
	if m == nil {
		return
	}
	outcome := "ok"
	if a.Err != nil {
		outcome = string(provider.Classify(a.Err))
	}
	m.attempts.WithLabelValues(a.Provider, outcome).Inc()
}
