// Package store provides in-memory implementations of the cache tiers.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/metrics-engine/metric"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// MEMORY CACHE - Tier 1 for tests and single-process deployments
// =============================================================================

type cacheEntry struct {
	value     metric.RawMetricResult
	expiresAt time.Time
}

// MemoryCache is a TTL cache with per-key single-flight on misses.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
	clock   metric.Clock
}

func NewMemoryCache(clock metric.Clock) *MemoryCache {
	if clock == nil {
		clock = metric.SystemClock{}
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		clock:   clock,
	}
}

// GetOrCompute returns the cached value for key, or runs compute once for all
// concurrent callers and stores its result for ttl. Errors are not cached.
func (c *MemoryCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute metric.ComputeFunc) (metric.RawMetricResult, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// another flight may have filled the slot between lookup and Do
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		raw, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if metric.IsNilRaw(raw) {
			return nil, fmt.Errorf("compute %s returned no result: %w", key, metric.ErrMalformedRaw)
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{value: raw, expiresAt: c.clock.Now().Add(ttl)}
		c.mu.Unlock()
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	raw, ok := v.(metric.RawMetricResult)
	if !ok {
		return nil, fmt.Errorf("cache %s: %w", key, metric.ErrMalformedRaw)
	}
	return raw, nil
}

func (c *MemoryCache) lookup(key string) (metric.RawMetricResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Delete drops a key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len counts entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// =============================================================================
// MEMORY SNAPSHOTS - Tier 2 for tests
// =============================================================================

type snapshotKey struct {
	TenantID metric.TenantID
	Metric   metric.MetricType
	Period   metric.Period
}

// MemorySnapshots keeps every saved snapshot and serves the newest.
type MemorySnapshots struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey][]metric.Snapshot
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snapshots: make(map[snapshotKey][]metric.Snapshot)}
}

func (m *MemorySnapshots) SaveSnapshot(_ context.Context, snap metric.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapshotKey{TenantID: snap.TenantID, Metric: snap.Metric, Period: snap.Period}
	m.snapshots[k] = append(m.snapshots[k], snap)
	return nil
}

func (m *MemorySnapshots) LatestSnapshot(_ context.Context, tenantID metric.TenantID, metricType metric.MetricType, period metric.Period) (*metric.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[snapshotKey{TenantID: tenantID, Metric: metricType, Period: period}]
	if len(snaps) == 0 {
		return nil, nil
	}
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	return &latest, nil
}
