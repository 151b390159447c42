// Package metrics exposes a process-wide Prometheus registry, adapted from
// this codebase's firewall metrics registry: a sync.Once-guarded singleton
// of promauto-registered counters and gauges, scoped here to command
// execution, pipe connections, and error-code frequency.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds every metric the status API and engine/pipeserver
// instrumentation record against.
type Registry struct {
	CommandsExecuted  *prometheus.CounterVec
	CommandDuration   prometheus.Histogram
	ErrorsByCode      *prometheus.CounterVec
	BreakerOpenEvents prometheus.Counter
	RetriesTotal      prometheus.Counter
	OutputTruncations prometheus.Counter

	PipeConnectionsAccepted prometheus.Counter
	PipeConnectionsRejected prometheus.Counter
	PipeConnectionsActive   prometheus.Gauge
}

// Get returns the process-wide metrics registry, creating it on first use.
func Get() *Registry {
	once.Do(func() { registry = newRegistry() })
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibedbg_commands_executed_total",
		Help: "Total debugger commands executed, by outcome",
	}, []string{"outcome"})

	r.CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vibedbg_command_duration_seconds",
		Help:    "Command execution latency against the debugger adapter",
		Buckets: prometheus.DefBuckets,
	})

	r.ErrorsByCode = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibedbg_errors_total",
		Help: "Errors returned to clients, by error code",
	}, []string{"error_code"})

	r.BreakerOpenEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibedbg_breaker_open_total",
		Help: "Times the engine circuit breaker opened",
	})

	r.RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibedbg_command_retries_total",
		Help: "Commands retried after a timeout",
	})

	r.OutputTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibedbg_output_truncations_total",
		Help: "Command outputs cut at the capture size cap",
	})

	r.PipeConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibedbg_pipe_connections_accepted_total",
		Help: "Pipe client connections accepted",
	})

	r.PipeConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibedbg_pipe_connections_rejected_total",
		Help: "Pipe client connections rejected for exceeding max instances",
	})

	r.PipeConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibedbg_pipe_connections_active",
		Help: "Currently active pipe client connections",
	})

	return r
}

// RecordCommand records one command execution outcome and its duration.
func (r *Registry) RecordCommand(outcome string, durationSeconds float64) {
	r.CommandsExecuted.WithLabelValues(outcome).Inc()
	r.CommandDuration.Observe(durationSeconds)
}

// RecordError increments the error-code counter.
func (r *Registry) RecordError(errorCode string) {
	r.ErrorsByCode.WithLabelValues(errorCode).Inc()
}
