/*
store.go - Cache tier contracts

KEY INTERFACES:
  FastCache:     Tier 1. TTL key/value store with an atomic get-or-compute.
  SnapshotStore: Tier 2. Read-only view of the pre-aggregated durable store.
  SnapshotWriter: Used only by the out-of-band aggregation job.

SINGLE-FLIGHT CONTRACT:
  GetOrCompute must run compute at most once per key for concurrent callers
  that miss together. Implementations use golang.org/x/sync/singleflight.

IMPLEMENTATIONS:
  - metric/store/memory.go: In-memory cache and snapshot store
  - store/redis/redis.go: Redis fast cache
  - store/sqlite/sqlite.go: SQLite durable store
*/
package metric

import (
	"context"
	"time"
)

// SnapshotMaxAge bounds how old a durable snapshot may be and still be served.
const SnapshotMaxAge = 24 * time.Hour

// ComputeFunc produces a value on a fast-cache miss.
type ComputeFunc func(ctx context.Context) (RawMetricResult, error)

// FastCache is the tier-1 cache.
type FastCache interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (RawMetricResult, error)
}

// Snapshot is a pre-aggregated durable record for (tenant, metric, period).
type Snapshot struct {
	TenantID  TenantID
	Metric    MetricType
	Period    Period
	Data      RawMetricResult
	UpdatedAt time.Time
}

// IsFresh reports whether the snapshot may be consumed at now.
func (s *Snapshot) IsFresh(now time.Time) bool {
	if s == nil || s.Data == nil || s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) < SnapshotMaxAge
}

// SnapshotStore returns the most recent snapshot, or (nil, nil) when absent.
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, tenantID TenantID, metricType MetricType, period Period) (*Snapshot, error)
}

// SnapshotWriter persists snapshots. The engine itself never writes tier 2.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}
