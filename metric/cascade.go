package metric

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var cascadeTierTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "metrics_engine_cascade_tier_total",
		Help: "Metric requests by the cache tier that answered them",
	},
	[]string{"tier"},
)

const (
	tierFast    = "fast"
	tierDurable = "durable"
	tierLive    = "live"
	tierForced  = "forced"
	// callers that waited on another caller's in-flight lookup
	tierShared = "shared"
)

// =============================================================================
// CASCADE - fast cache -> durable snapshot -> live calculation
// =============================================================================

// Cascade retrieves raw metric results through the three cache tiers.
//
// INVARIANTS:
//   - Tier 2 and 3 run only inside the fast cache's get-or-compute, so
//     concurrent misses for one key trigger at most one recomputation.
//   - Snapshots older than SnapshotMaxAge are treated as absent.
//   - Custom periods never read snapshots.
//   - Every call is counted under exactly one tier label.
//   - Calculator errors are returned unchanged.
//
// Snapshots may be nil, in which case tier 2 is skipped.
type Cascade struct {
	Registry  *Registry
	Cache     FastCache
	Snapshots SnapshotStore
	Clock     Clock
	Logger    *slog.Logger

	flight singleflight.Group
}

type flightResult struct {
	raw  RawMetricResult
	tier string
}

// Get returns the raw result for one metric. forceRefresh bypasses every
// cache tier and writes nothing.
func (c *Cascade) Get(ctx context.Context, tenantID TenantID, metricType MetricType, rng DateRange, period Period, forceRefresh bool) (RawMetricResult, error) {
	calc, err := c.Registry.Make(metricType)
	if err != nil {
		return nil, err
	}
	log := c.logger().With("tenant_id", tenantID, "metric_type", metricType, "period", period)

	if forceRefresh {
		cascadeTierTotal.WithLabelValues(tierForced).Inc()
		log.Debug("forced recalculation", "tier", tierForced)
		return calc.Calculate(ctx, tenantID, rng, period)
	}

	key := calc.CacheKey(tenantID, rng, period)
	led := false
	v, err, _ := c.flight.Do(key, func() (any, error) {
		led = true
		tier := tierFast
		raw, err := c.Cache.GetOrCompute(ctx, key, calc.CacheTTL(), func(ctx context.Context) (RawMetricResult, error) {
			raw, t, err := c.computeMiss(ctx, calc, tenantID, metricType, rng, period)
			tier = t
			return raw, err
		})
		return flightResult{raw: raw, tier: tier}, err
	})
	if err != nil {
		return nil, err
	}
	res := v.(flightResult)

	tier := res.tier
	if !led {
		tier = tierShared
	}
	cascadeTierTotal.WithLabelValues(tier).Inc()
	log.Debug("metric served", "tier", tier, "key", key)
	return res.raw, nil
}

// computeMiss runs tiers 2 and 3 and reports which one answered. Custom
// ranges skip tier 2: snapshots are keyed by period token, not by dates.
func (c *Cascade) computeMiss(ctx context.Context, calc Calculator, tenantID TenantID, metricType MetricType, rng DateRange, period Period) (RawMetricResult, string, error) {
	if c.Snapshots != nil && period != PeriodCustom {
		snap, err := c.Snapshots.LatestSnapshot(ctx, tenantID, metricType, period)
		if err != nil {
			return nil, tierDurable, fmt.Errorf("durable snapshot lookup: %w", err)
		}
		if snap.IsFresh(clockOrSystem(c.Clock).Now()) {
			return snap.Data, tierDurable, nil
		}
	}

	raw, err := calc.Calculate(ctx, tenantID, rng, period)
	return raw, tierLive, err
}

func (c *Cascade) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// =============================================================================
// DASHBOARD
// =============================================================================

// Dashboard fans out DashboardMetrics through Get. Any single failure aborts
// the whole composite.
// TODO: isolate per-metric failures once the dashboard UI can render a
// partially failed composite.
func (c *Cascade) Dashboard(ctx context.Context, tenantID TenantID, rng DateRange, period Period) (map[MetricType]RawMetricResult, error) {
	results := make([]RawMetricResult, len(DashboardMetrics))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range DashboardMetrics {
		g.Go(func() error {
			raw, err := c.Get(gctx, tenantID, t, rng, period, false)
			if err != nil {
				return err
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[MetricType]RawMetricResult, len(DashboardMetrics))
	for i, t := range DashboardMetrics {
		out[t] = results[i]
	}
	return out, nil
}
