// Package metrics registers the replica coordinator's and executor's
// prometheus counters/gauges behind a single New(namespace, registerer)
// constructor.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge a replica exposes.
type Metrics struct {
	FastPathCommits    prometheus.Counter
	SlowPathCommits    prometheus.Counter
	RecoveriesStarted  prometheus.Counter
	RecoveriesFailed   prometheus.Counter
	ExecutorQueueDepth prometheus.Gauge
	ExecutedTotal      prometheus.Counter
}

// New registers a Metrics set under namespace on registerer. Passing
// prometheus.NewRegistry() keeps tests and the sim CLI isolated from the
// global default registry.
func New(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FastPathCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fast_path_commits_total",
			Help:      "Number of instances committed via the fast path.",
		}),
		SlowPathCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_path_commits_total",
			Help:      "Number of instances committed via the slow path.",
		}),
		RecoveriesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_started_total",
			Help:      "Number of recovery attempts started.",
		}),
		RecoveriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_failed_total",
			Help:      "Number of recovery attempts that timed out.",
		}),
		ExecutorQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_queue_depth",
			Help:      "Number of committed-but-not-yet-executed instances.",
		}),
		ExecutedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executed_total",
			Help:      "Number of instances executed.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.FastPathCommits, m.SlowPathCommits, m.RecoveriesStarted,
		m.RecoveriesFailed, m.ExecutorQueueDepth, m.ExecutedTotal,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
