package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	executionsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "servcur",
			Subsystem: "executions",
			Name:      "submitted_total",
			Help:      "Number of plans accepted into the executor inbox.",
		},
	)
	executionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servcur",
			Subsystem: "executions",
			Name:      "finished_total",
			Help:      "Number of finished plans by result (success, failure, dropped).",
		}, []string{"result"},
	)
	executionsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "servcur",
			Subsystem: "executions",
			Name:      "running",
			Help:      "Plans whose steps are executing. Plans still queued in the inbox are not counted.",
		},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "servcur",
			Subsystem: "executions",
			Name:      "step_duration_seconds",
			Help:      "Wall time of a single plan step.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"tag"},
	)
	registryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servcur",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry mutations by operation and result.",
		}, []string{"op", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{executionsSubmitted, executionsFinished, executionsRunning, stepDuration, registryOps}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncSubmitted() {
	if regOK.Load() {
		executionsSubmitted.Inc()
	}
}

func IncFinished(result string) {
	if regOK.Load() {
		executionsFinished.WithLabelValues(result).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		executionsRunning.Set(float64(n))
	}
}

func ObserveStep(tag string, seconds float64) {
	if regOK.Load() {
		if tag == "" {
			tag = "none"
		}
		stepDuration.WithLabelValues(tag).Observe(seconds)
	}
}

func IncRegistryOp(op string, err error) {
	if regOK.Load() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		registryOps.WithLabelValues(op, result).Inc()
	}
}
