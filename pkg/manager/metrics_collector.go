package manager

import (
	"time"

	"github.com/icebase/metastore/pkg/metrics"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// raftStatsSource is satisfied by storage.RaftPersistence. Collectors
// running over a non-Raft backend simply skip the Raft gauges.
type raftStatsSource interface {
	IsLeader() bool
	Stats() map[string]string
}

// MetricsCollector periodically walks the entity hierarchy and refreshes
// the gauges in pkg/metrics that cannot be derived from a single counter
// increment at the call site: entity and grant population totals, and
// (when the backend is Raft-backed) leadership and log-position gauges.
type MetricsCollector struct {
	backend storage.BasePersistence
	cc      *CallContext
	stopCh  chan struct{}
}

// NewMetricsCollector builds a collector over backend. cc supplies the
// clock and context every collection pass runs under.
func NewMetricsCollector(backend storage.BasePersistence, cc *CallContext) *MetricsCollector {
	return &MetricsCollector{backend: backend, cc: cc, stopCh: make(chan struct{})}
}

// Start begins the periodic collection loop in a new goroutine.
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the collection loop.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	root, err := findRoot(c.cc, c.backend)
	if err != nil {
		return
	}

	counts := map[types.EntityType]int{}
	grants := 0

	countOne := func(e *types.Entity) {
		counts[e.TypeCode]++
		records, err := c.backend.LoadAllGrantRecordsOnSecurable(c.cc, e.CatalogID, e.ID)
		if err == nil {
			grants += len(records)
		}
	}

	countOne(root)

	principals, _ := c.backend.ListEntities(c.cc, types.NullID, root.ID, types.EntityTypePrincipal)
	for _, e := range principals {
		countOne(e)
	}
	principalRoles, _ := c.backend.ListEntities(c.cc, types.NullID, root.ID, types.EntityTypePrincipalRole)
	for _, e := range principalRoles {
		countOne(e)
	}
	tasks, _ := c.backend.ListEntities(c.cc, types.NullID, root.ID, types.EntityTypeTask)
	for _, e := range tasks {
		countOne(e)
	}

	catalogs, _ := c.backend.ListEntities(c.cc, types.NullID, root.ID, types.EntityTypeCatalog)
	for _, cat := range catalogs {
		countOne(cat)
		c.walkCatalog(cat, countOne)
	}

	for typeCode, n := range counts {
		metrics.EntitiesTotal.WithLabelValues(string(typeCode)).Set(float64(n))
	}
	metrics.GrantsTotal.Set(float64(grants))

	c.collectRaftMetrics()
}

func (c *MetricsCollector) walkCatalog(cat *types.Entity, countOne func(*types.Entity)) {
	catalogRoles, _ := c.backend.ListEntities(c.cc, cat.ID, cat.ID, types.EntityTypeCatalogRole)
	for _, e := range catalogRoles {
		countOne(e)
	}
	var walkNamespace func(parentID string)
	walkNamespace = func(parentID string) {
		namespaces, _ := c.backend.ListEntities(c.cc, cat.ID, parentID, types.EntityTypeNamespace)
		for _, ns := range namespaces {
			countOne(ns)
			walkNamespace(ns.ID)
			tables, _ := c.backend.ListEntities(c.cc, cat.ID, ns.ID, types.EntityTypeTableLike)
			for _, t := range tables {
				countOne(t)
			}
		}
	}
	walkNamespace(cat.ID)
}

func (c *MetricsCollector) collectRaftMetrics() {
	src, ok := c.backend.(raftStatsSource)
	if !ok {
		return
	}
	if src.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}
	stats := src.Stats()
	if stats == nil {
		return
	}
	if v, ok := parseStatUint(stats["last_log_index"]); ok {
		metrics.RaftLogIndex.Set(float64(v))
	}
	if v, ok := parseStatUint(stats["applied_index"]); ok {
		metrics.RaftAppliedIndex.Set(float64(v))
	}
	if v, ok := parseStatUint(stats["num_peers"]); ok {
		metrics.RaftPeers.Set(float64(v))
	}
}

func parseStatUint(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := parseMillis(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
