package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Entity metrics
	EntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metastore_entities_total",
			Help: "Total number of active entities by type",
		},
		[]string{"type"},
	)

	EntityVersionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metastore_entity_version_conflicts_total",
			Help: "Total number of TARGET_ENTITY_CONCURRENTLY_MODIFIED results by operation",
		},
		[]string{"operation"},
	)

	// Grant metrics
	GrantsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metastore_grants_total",
			Help: "Total number of active grant records",
		},
	)

	GrantMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metastore_grant_mutations_total",
			Help: "Total number of grant create/revoke operations",
		},
		[]string{"action"},
	)

	// Task leasing metrics
	TaskLeasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metastore_task_leases_total",
			Help: "Total number of tasks leased by loadTasks",
		},
		[]string{"executor"},
	)

	TaskLeaseRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "metastore_task_lease_retries_total",
			Help: "Total number of loadTasks calls that signalled RetryOnConcurrency",
		},
	)

	// Raft metrics (when the Raft-backed persistence is in use)
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metastore_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metastore_raft_peers_total",
			Help: "Total number of Raft peers in the persistence cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metastore_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metastore_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// Operation latency metrics
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metastore_operation_duration_seconds",
			Help:    "Time taken by a public MetastoreManager operation, by name and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metastore_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft-replicated persistence transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	BootstrapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metastore_bootstrap_duration_seconds",
			Help:    "Time taken by bootstrapPolarisService",
			Buckets: prometheus.DefBuckets,
		},
	)

	SecretRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metastore_secret_rotations_total",
			Help: "Total number of principal secret rotations by reset flag",
		},
		[]string{"reset"},
	)

	SubscopedCredsErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "metastore_subscoped_creds_errors_total",
			Help: "Total number of SUBSCOPE_CREDS_ERROR results from getSubscopedCredsForEntity",
		},
	)
)

func init() {
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(EntityVersionConflictsTotal)
	prometheus.MustRegister(GrantsTotal)
	prometheus.MustRegister(GrantMutationsTotal)
	prometheus.MustRegister(TaskLeasesTotal)
	prometheus.MustRegister(TaskLeaseRetriesTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(RaftCommitDuration)
	prometheus.MustRegister(BootstrapDuration)
	prometheus.MustRegister(SecretRotationsTotal)
	prometheus.MustRegister(SubscopedCredsErrorsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
