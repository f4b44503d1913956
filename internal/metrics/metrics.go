// Package metrics exposes Banyan's prometheus instrumentation: task
// counts by state, execution-attempt counts, and notifier delivery
// outcomes, registered on a dedicated registry served at /metrics
// (SPEC_FULL.md §2.6).
//
// The pack's own non-test use of client_golang is thin (other_examples'
// event-hub worker only threads a *prometheus.Registry through, without
// defining collectors); this package follows the ecosystem's standard
// promauto.With(registry) construction instead, which is what every
// client_golang consumer in the wider Go world does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the server registers.
type Metrics struct {
	Registry *prometheus.Registry

	TasksByState    *prometheus.CounterVec
	AttemptsStarted prometheus.Counter
	AttemptsRetried prometheus.Counter
	SubtreeCancels  prometheus.Counter

	NotifierFramesSent   *prometheus.CounterVec
	NotifierFramesFailed *prometheus.CounterVec

	RegisteredWorkers prometheus.Gauge
}

// New builds and registers Banyan's metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		TasksByState: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banyan_task_transitions_total",
			Help: "Count of task state transitions, labeled by resulting state.",
		}, []string{"state"}),
		AttemptsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "banyan_execution_attempts_started_total",
			Help: "Count of execution attempts minted (claims plus retries).",
		}),
		AttemptsRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "banyan_execution_attempts_retried_total",
			Help: "Count of attempts that restarted a task after a failed report.",
		}),
		SubtreeCancels: factory.NewCounter(prometheus.CounterOpts{
			Name: "banyan_subtree_cancellations_total",
			Help: "Count of cancel() invocations triggered by exhausted retries or missing workers.",
		}),
		NotifierFramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banyan_notifier_frames_sent_total",
			Help: "Count of control frames written to worker sockets, labeled by frame type.",
		}, []string{"type"}),
		NotifierFramesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banyan_notifier_frames_failed_total",
			Help: "Count of control frame delivery failures, labeled by frame type.",
		}, []string{"type"}),
		RegisteredWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "banyan_registered_workers",
			Help: "Current count of registered workers.",
		}),
	}
}
