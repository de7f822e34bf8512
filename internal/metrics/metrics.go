// Package metrics exposes Prometheus collectors for registry operations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soochol/connreg/internal/connreg"
	"github.com/soochol/connreg/internal/repository"
)

// Result labels.
const (
	ResultOK        = "ok"
	ResultInvalid   = "invalid_argument"
	ResultNotFound  = "not_found"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connreg_operations_total",
				Help: "Registry operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "connreg_operation_duration_seconds",
				Help:    "Registry operation latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	m.registry.MustRegister(
		m.operations,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one finished operation.
func (m *Metrics) Observe(operation string, started time.Time, err error) {
	m.operations.WithLabelValues(operation, Classify(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Classify maps an operation error onto a result label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, connreg.ErrInvalidArgument):
		return ResultInvalid
	case errors.Is(err, repository.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, repository.ErrDuplicateName):
		return ResultDuplicate
	}
	return ResultError
}
