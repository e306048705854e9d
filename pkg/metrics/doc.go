/*
Package metrics defines and registers the Prometheus metrics exposed by a
catalogd process, plus a small health/readiness registry served alongside
them.

Metrics cover four areas: entity population and version-conflict counts
(metastore_entities_total, metastore_entity_version_conflicts_total), grant
mutation counts (metastore_grants_total, metastore_grant_mutations_total),
task leasing (metastore_task_leases_total, metastore_task_lease_retries_total),
and persistence health (metastore_operation_duration_seconds,
metastore_raft_*, metastore_bootstrap_duration_seconds,
metastore_secret_rotations_total, metastore_subscoped_creds_errors_total).
All metrics are registered against the default Prometheus registry at
package init and are safe for concurrent use.

Handler returns the promhttp handler for /metrics. Timer is a small
helper for recording an operation's duration to a histogram:

	timer := metrics.NewTimer()
	result := mgr.CreateCatalog(cc, catalog, nil, "")
	timer.ObserveDurationVec(metrics.OperationDuration, "CreateCatalog", string(result.Status))

health.go separately keeps a registry of named components for the
/health, /ready, and /live endpoints. /health is healthy when every
registered component is; /ready is ready only when components named
"raft", "containerd", and "api" are all registered and healthy.
*/
package metrics
