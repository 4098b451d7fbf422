package exec

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirror kv/badgerkv's own (commit outcome counter, commit
// latency histogram): the executor's conflict-retry loop is the other
// half of that same commit path, so it gets the same instrumentation
// shape rather than inventing a new one.
var (
	commitAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rdbcore_exec_commit_attempts_total",
		Help: "Outcomes of Executor.Execute's per-attempt commit, by outcome.",
	}, []string{"outcome"})

	attemptsPerExecute = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rdbcore_exec_attempts_per_execute",
		Help:    "Number of commit attempts a single Execute call needed.",
		Buckets: prometheus.LinearBuckets(1, 1, MaxCommitAttempts),
	})
)

// RegisterMetrics registers the executor's collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{commitAttemptsTotal, attemptsPerExecute} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
