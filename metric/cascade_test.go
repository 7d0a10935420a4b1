package metric_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/metric/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type cascadeFixture struct {
	cascade   *metric.Cascade
	cache     *store.MemoryCache
	snapshots *store.MemorySnapshots
	clock     *metric.FixedClock
	rng       metric.DateRange
}

func newCascadeFixture(t *testing.T, calcs ...metric.Calculator) *cascadeFixture {
	t.Helper()
	clock := &metric.FixedClock{At: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)}
	regs := make([]metric.Registration, 0, len(calcs))
	for _, c := range calcs {
		regs = append(regs, registrationFor(c))
	}

	cache := store.NewMemoryCache(clock)
	snapshots := store.NewMemorySnapshots()
	rng, err := metric.NewPeriodResolver(clock).Resolve(metric.Period30Days, nil, nil)
	require.NoError(t, err)

	return &cascadeFixture{
		cascade: &metric.Cascade{
			Registry:  metric.NewRegistry(regs, nil),
			Cache:     cache,
			Snapshots: snapshots,
			Clock:     clock,
		},
		cache:     cache,
		snapshots: snapshots,
		clock:     clock,
		rng:       rng,
	}
}

func (f *cascadeFixture) get(t *testing.T, m metric.MetricType, force bool) (metric.RawMetricResult, error) {
	t.Helper()
	return f.cascade.Get(context.Background(), "tenant-1", m, f.rng, metric.Period30Days, force)
}

// =============================================================================
// TIER BEHAVIOUR
// =============================================================================

func TestCascade_SecondCallServedFromFastCache(t *testing.T) {
	calc := newCounting(metric.ArticleViewed, 9)
	f := newCascadeFixture(t, calc)

	first, err := f.get(t, metric.ArticleViewed, false)
	require.NoError(t, err)
	second, err := f.get(t, metric.ArticleViewed, false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calc.calls.Load())
	assert.Same(t, first, second)
}

func TestCascade_ForceRefreshAlwaysCalculates(t *testing.T) {
	calc := newCounting(metric.ArticleViewed, 9)
	f := newCascadeFixture(t, calc)

	_, err := f.get(t, metric.ArticleViewed, false)
	require.NoError(t, err)
	_, err = f.get(t, metric.ArticleViewed, true)
	require.NoError(t, err)
	_, err = f.get(t, metric.ArticleViewed, true)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calc.calls.Load())
}

func TestCascade_ForceRefreshDoesNotPopulateCache(t *testing.T) {
	calc := newCounting(metric.ArticleViewed, 9)
	f := newCascadeFixture(t, calc)

	_, err := f.get(t, metric.ArticleViewed, true)
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.Len())
}

func TestCascade_FreshSnapshotSkipsCalculator(t *testing.T) {
	// GIVEN: Empty fast cache, snapshot written 2 hours ago
	// WHEN: Requesting the metric
	// THEN: Snapshot data is returned, calculator never runs
	calc := newCounting(metric.ActivationRate, 1)
	f := newCascadeFixture(t, calc)
	legacy := &metric.LegacyFlat{Fields: map[string]float64{"rate": 72.5}}
	require.NoError(t, f.snapshots.SaveSnapshot(context.Background(), metric.Snapshot{
		TenantID: "tenant-1", Metric: metric.ActivationRate, Period: metric.Period30Days,
		Data: legacy, UpdatedAt: f.clock.At.Add(-2 * time.Hour),
	}))

	raw, err := f.get(t, metric.ActivationRate, false)
	require.NoError(t, err)

	assert.Same(t, legacy, raw)
	assert.Equal(t, int32(0), calc.calls.Load())
}

func TestCascade_StaleSnapshotFallsThroughAndIsCached(t *testing.T) {
	// GIVEN: Snapshot written 30 hours ago
	// WHEN: Requesting twice with a frozen clock
	// THEN: Calculator runs exactly once; the second call hits the fast cache
	calc := newCounting(metric.ActivationRate, 64)
	f := newCascadeFixture(t, calc)
	require.NoError(t, f.snapshots.SaveSnapshot(context.Background(), metric.Snapshot{
		TenantID: "tenant-1", Metric: metric.ActivationRate, Period: metric.Period30Days,
		Data: &metric.LegacyFlat{Fields: map[string]float64{"rate": 72.5}}, UpdatedAt: f.clock.At.Add(-30 * time.Hour),
	}))

	first, err := f.get(t, metric.ActivationRate, false)
	require.NoError(t, err)
	second, err := f.get(t, metric.ActivationRate, false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calc.calls.Load())
	assert.Equal(t, metric.ShapeDaily, first.Shape())
	assert.Same(t, first, second)
}

func TestCascade_SnapshotExactly24HoursOldIsStale(t *testing.T) {
	calc := newCounting(metric.ActivationRate, 64)
	f := newCascadeFixture(t, calc)
	require.NoError(t, f.snapshots.SaveSnapshot(context.Background(), metric.Snapshot{
		TenantID: "tenant-1", Metric: metric.ActivationRate, Period: metric.Period30Days,
		Data: &metric.LegacyFlat{Fields: map[string]float64{"rate": 72.5}}, UpdatedAt: f.clock.At.Add(-24 * time.Hour),
	}))

	_, err := f.get(t, metric.ActivationRate, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calc.calls.Load())
}

func TestCascade_CustomPeriodNeverReadsSnapshots(t *testing.T) {
	// GIVEN: A fresh snapshot stored under the custom token
	// WHEN: Requesting an unrelated custom range
	// THEN: The calculator runs for that range
	calc := newCounting(metric.ActivationRate, 64)
	f := newCascadeFixture(t, calc)
	require.NoError(t, f.snapshots.SaveSnapshot(context.Background(), metric.Snapshot{
		TenantID: "tenant-1", Metric: metric.ActivationRate, Period: metric.PeriodCustom,
		Data: &metric.LegacyFlat{Fields: map[string]float64{"rate": 99}}, UpdatedAt: f.clock.At.Add(-time.Hour),
	}))
	rng := metric.DateRange{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 5, 23, 59, 59, 0, time.UTC),
	}

	raw, err := f.cascade.Get(context.Background(), "tenant-1", metric.ActivationRate, rng, metric.PeriodCustom, false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calc.calls.Load())
	assert.Equal(t, metric.ShapeDaily, raw.Shape())
}

func TestCascade_SnapshotForOtherTenantIgnored(t *testing.T) {
	calc := newCounting(metric.ActivationRate, 64)
	f := newCascadeFixture(t, calc)
	require.NoError(t, f.snapshots.SaveSnapshot(context.Background(), metric.Snapshot{
		TenantID: "tenant-2", Metric: metric.ActivationRate, Period: metric.Period30Days,
		Data: &metric.LegacyFlat{Fields: map[string]float64{"rate": 72.5}}, UpdatedAt: f.clock.At,
	}))

	_, err := f.get(t, metric.ActivationRate, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calc.calls.Load())
}

func TestCascade_CalculatorErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("aggregation query failed")
	calc := newCounting(metric.SessionTime, 1)
	calc.err = boom
	f := newCascadeFixture(t, calc)

	_, err := f.get(t, metric.SessionTime, false)
	assert.Same(t, boom, err)
	assert.False(t, metric.IsClientError(err))
}

func TestCascade_UnknownMetricType(t *testing.T) {
	f := newCascadeFixture(t, newCounting(metric.SessionTime, 1))
	_, err := f.get(t, metric.BounceRate, false)
	assert.ErrorIs(t, err, metric.ErrInvalidMetricType)
}

func TestCascade_ConcurrentMissesCalculateOnce(t *testing.T) {
	calc := newCounting(metric.ArticleViewed, 3)
	calc.block = make(chan struct{})
	f := newCascadeFixture(t, calc)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.cascade.Get(context.Background(), "tenant-1", metric.ArticleViewed, f.rng, metric.Period30Days, false)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(calc.block)
	wg.Wait()

	assert.Equal(t, int32(1), calc.calls.Load())
}

// =============================================================================
// DASHBOARD
// =============================================================================

func dashboardCalcs() []*countingCalculator {
	return []*countingCalculator{
		newCounting(metric.ActiveBeneficiaries, 10),
		newCounting(metric.ActivationRate, 50),
		newCounting(metric.SessionTime, 30),
		newCounting(metric.ArticleViewed, 4),
	}
}

func TestCascade_DashboardAssemblesFourMetrics(t *testing.T) {
	calcs := dashboardCalcs()
	f := newCascadeFixture(t, calcs[0], calcs[1], calcs[2], calcs[3], newCounting(metric.BounceRate, 1))

	out, err := f.cascade.Dashboard(context.Background(), "tenant-1", f.rng, metric.Period30Days)
	require.NoError(t, err)

	require.Len(t, out, 4)
	total, _ := out[metric.SessionTime].Scalar("total")
	assert.Equal(t, 30.0, total)
	assert.NotContains(t, out, metric.BounceRate)
}

func TestCascade_DashboardAbortsOnAnyFailure(t *testing.T) {
	boom := errors.New("session store down")
	calcs := dashboardCalcs()
	calcs[2].err = boom
	f := newCascadeFixture(t, calcs[0], calcs[1], calcs[2], calcs[3])

	out, err := f.cascade.Dashboard(context.Background(), "tenant-1", f.rng, metric.Period30Days)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}
