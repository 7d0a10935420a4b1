package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/metrics-engine/calculators"
	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/metric/store"
	"github.com/warp/metrics-engine/present"
	"github.com/warp/metrics-engine/service"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type stubCalculator struct {
	metricType metric.MetricType
	result     metric.RawMetricResult
	err        error
	calls      atomic.Int32
}

func (c *stubCalculator) Calculate(context.Context, metric.TenantID, metric.DateRange, metric.Period) (metric.RawMetricResult, error) {
	c.calls.Add(1)
	return c.result, c.err
}

func (c *stubCalculator) CacheKey(tenantID metric.TenantID, rng metric.DateRange, period metric.Period) string {
	return calculators.CacheKey(c.metricType, tenantID, rng, period)
}

func (c *stubCalculator) CacheTTL() time.Duration { return time.Hour }

func (c *stubCalculator) MetricType() metric.MetricType { return c.metricType }

func stub(t metric.MetricType, value float64) *stubCalculator {
	return &stubCalculator{
		metricType: t,
		result: &metric.DailySeries{
			Daily: []metric.DailyPoint{{Date: "2025-03-15", Value: value}},
			Total: value,
		},
	}
}

type fixture struct {
	svc       *service.MetricService
	snapshots *store.MemorySnapshots
	clock     *metric.FixedClock
}

func newFixture(t *testing.T, calcs ...*stubCalculator) *fixture {
	t.Helper()
	clock := &metric.FixedClock{At: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)}
	regs := make([]metric.Registration, 0, len(calcs))
	for _, c := range calcs {
		c := c
		regs = append(regs, metric.Registration{Type: c.metricType, New: func() metric.Calculator { return c }})
	}
	snapshots := store.NewMemorySnapshots()
	cascade := &metric.Cascade{
		Registry:  metric.NewRegistry(regs, nil),
		Cache:     store.NewMemoryCache(clock),
		Snapshots: snapshots,
		Clock:     clock,
	}
	return &fixture{
		svc:       service.New(metric.NewPeriodResolver(clock), cascade, present.NewNormalizer(calculators.Policies()), nil),
		snapshots: snapshots,
		clock:     clock,
	}
}

func (f *fixture) snapshot(t *testing.T, tenant metric.TenantID, mt metric.MetricType, period metric.Period, data metric.RawMetricResult, age time.Duration) {
	t.Helper()
	require.NoError(t, f.snapshots.SaveSnapshot(context.Background(), metric.Snapshot{
		TenantID: tenant, Metric: mt, Period: period, Data: data, UpdatedAt: f.clock.At.Add(-age),
	}))
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestGetMetric_FreshLegacySnapshot(t *testing.T) {
	// GIVEN: Empty fast cache, legacy {rate: 72.5} snapshot updated 2 hours ago
	// WHEN: Requesting activation-rate for 30d
	// THEN: Headline "72.5" in percent, one label and one point, no calculation
	calc := stub(metric.ActivationRate, 10)
	f := newFixture(t, calc)
	f.snapshot(t, "T", metric.ActivationRate, metric.Period30Days,
		&metric.LegacyFlat{Fields: map[string]float64{"rate": 72.5}}, 2*time.Hour)

	res, err := f.svc.GetMetric(context.Background(), "T", "activation-rate", service.MetricQuery{Period: "30d"})
	require.NoError(t, err)

	assert.Equal(t, "72.5", res.Metric.Value)
	assert.Equal(t, present.UnitPercentage, res.Metric.Unit)
	assert.Len(t, res.Metric.Labels, 1)
	require.Len(t, res.Metric.Datasets, 1)
	assert.Equal(t, []float64{72.5}, res.Metric.Datasets[0].Data)
	assert.Equal(t, int32(0), calc.calls.Load())
}

func TestGetMetric_StaleSnapshotCalculatesOnceThenCaches(t *testing.T) {
	// GIVEN: Same snapshot, but updated 30 hours ago
	// WHEN: Requesting twice with a frozen clock
	// THEN: The calculator runs exactly once and both calls agree
	calc := stub(metric.ActivationRate, 64)
	f := newFixture(t, calc)
	f.snapshot(t, "T", metric.ActivationRate, metric.Period30Days,
		&metric.LegacyFlat{Fields: map[string]float64{"rate": 72.5}}, 30*time.Hour)

	first, err := f.svc.GetMetric(context.Background(), "T", "activation-rate", service.MetricQuery{Period: "30d"})
	require.NoError(t, err)
	second, err := f.svc.GetMetric(context.Background(), "T", "activation-rate", service.MetricQuery{Period: "30d"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calc.calls.Load())
	assert.Equal(t, "64", first.Metric.Value)
	assert.Equal(t, first.Metric, second.Metric)
}

func TestGetMetric_ForceRefresh(t *testing.T) {
	calc := stub(metric.ArticleViewed, 3)
	f := newFixture(t, calc)

	for i := 0; i < 2; i++ {
		_, err := f.svc.GetMetric(context.Background(), "T", "article-viewed", service.MetricQuery{ForceRefresh: true})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calc.calls.Load())
}

func TestGetMetric_DefaultPeriodAndRange(t *testing.T) {
	f := newFixture(t, stub(metric.ArticleViewed, 3))

	res, err := f.svc.GetMetric(context.Background(), "T", "article-viewed", service.MetricQuery{})
	require.NoError(t, err)

	assert.Equal(t, metric.Period30Days, res.Period)
	assert.Equal(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), res.Range.From)
	assert.Equal(t, metric.EndOfDay(f.clock.At), res.Range.To)
}

func TestGetMetric_CustomRangeVerbatim(t *testing.T) {
	f := newFixture(t, stub(metric.ArticleViewed, 3))
	from, to := date(2025, 1, 1), date(2025, 1, 31)

	res, err := f.svc.GetMetric(context.Background(), "T", "article-viewed", service.MetricQuery{Period: "custom", From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, metric.DateRange{From: *from, To: *to}, res.Range)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestGetMetric_ValidationErrors(t *testing.T) {
	f := newFixture(t, stub(metric.ArticleViewed, 3))
	ctx := context.Background()

	tests := []struct {
		name   string
		metric string
		query  service.MetricQuery
		want   error
	}{
		{"unknown metric wins over bad period", "nope", service.MetricQuery{Period: "1y"}, metric.ErrInvalidMetricType},
		{"valid but unregistered metric", "bounce-rate", service.MetricQuery{}, metric.ErrInvalidMetricType},
		{"unknown period", "article-viewed", service.MetricQuery{Period: "1y"}, metric.ErrInvalidPeriod},
		{"custom without bounds", "article-viewed", service.MetricQuery{Period: "custom"}, metric.ErrInvalidCustomRange},
		{"custom inverted", "article-viewed", service.MetricQuery{Period: "custom", From: date(2025, 2, 1), To: date(2025, 1, 1)}, metric.ErrInvalidCustomRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GetMetric(ctx, "T", tt.metric, tt.query)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, metric.IsClientError(err))
		})
	}
}

func TestGetMetric_CalculatorFailureIsNotClientError(t *testing.T) {
	calc := stub(metric.SessionTime, 0)
	calc.err = errors.New("warehouse timeout")
	f := newFixture(t, calc)

	_, err := f.svc.GetMetric(context.Background(), "T", "session-time", service.MetricQuery{})
	assert.Same(t, calc.err, err)
	assert.False(t, metric.IsClientError(err))
}

// =============================================================================
// DASHBOARD
// =============================================================================

func dashboardStubs() []*stubCalculator {
	return []*stubCalculator{
		stub(metric.ActiveBeneficiaries, 12),
		stub(metric.ActivationRate, 50),
		stub(metric.SessionTime, 125),
		stub(metric.ArticleViewed, 4),
	}
}

func TestGetDashboard_PresentsInOrder(t *testing.T) {
	f := newFixture(t, dashboardStubs()...)

	res, err := f.svc.GetDashboard(context.Background(), "T", service.MetricQuery{Period: "7d"})
	require.NoError(t, err)

	require.Len(t, res.Metrics, 4)
	for i, mt := range metric.DashboardMetrics {
		assert.Equal(t, mt, res.Metrics[i].Type)
	}
	assert.Equal(t, "2 h 5 min", res.Metrics[2].Metric.Value)
	assert.Equal(t, metric.Period7Days, res.Period)
}

func TestGetDashboard_OneFailureFailsAll(t *testing.T) {
	calcs := dashboardStubs()
	calcs[3].err = errors.New("article index offline")
	f := newFixture(t, calcs...)

	res, err := f.svc.GetDashboard(context.Background(), "T", service.MetricQuery{})
	assert.ErrorIs(t, err, calcs[3].err)
	assert.Nil(t, res)
}

func TestGetDashboard_InvalidPeriod(t *testing.T) {
	f := newFixture(t, dashboardStubs()...)
	_, err := f.svc.GetDashboard(context.Background(), "T", service.MetricQuery{Period: "2w"})
	assert.ErrorIs(t, err, metric.ErrInvalidPeriod)
}

func TestSupportedMetrics(t *testing.T) {
	f := newFixture(t, dashboardStubs()...)
	assert.Len(t, f.svc.SupportedMetrics(), 4)
}
