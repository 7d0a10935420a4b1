package aggregation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/metrics-engine/aggregation"
	"github.com/warp/metrics-engine/calculators"
	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/metric/store"
)

type tenants []metric.TenantID

func (t tenants) ListTenants(context.Context) ([]metric.TenantID, error) { return t, nil }

type failingLister struct{ err error }

func (f failingLister) ListTenants(context.Context) ([]metric.TenantID, error) { return nil, f.err }

type flakyCalculator struct {
	*calculators.NullCalculator
	failFor metric.TenantID
}

func (c flakyCalculator) Calculate(ctx context.Context, tenant metric.TenantID, rng metric.DateRange, p metric.Period) (metric.RawMetricResult, error) {
	if tenant == c.failFor {
		return nil, errors.New("boom")
	}
	return c.NullCalculator.Calculate(ctx, tenant, rng, p)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func registry(failFor metric.TenantID) *metric.Registry {
	return metric.NewRegistry([]metric.Registration{
		{Type: metric.SessionTime, New: func() metric.Calculator {
			return flakyCalculator{NullCalculator: calculators.NewNull(metric.SessionTime, 0), failFor: failFor}
		}},
		{Type: metric.BounceRate, New: func() metric.Calculator { return calculators.NewNull(metric.BounceRate, 0) }},
	}, quiet)
}

func TestRunOnce_WritesEverySnapshot(t *testing.T) {
	// GIVEN: 2 tenants, 2 metrics, 2 periods
	// WHEN: Running one pass
	// THEN: 8 fresh snapshots are written
	clock := &metric.FixedClock{At: time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)}
	snaps := store.NewMemorySnapshots()
	s := aggregation.NewScheduler(tenants{"t1", "t2"}, registry(""), snaps, clock, quiet)
	s.Periods = []metric.Period{metric.Period7Days, metric.Period30Days, metric.PeriodCustom}

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, aggregation.RunResult{Tenants: 2, Written: 8}, res)

	snap, err := snaps.LatestSnapshot(context.Background(), "t2", metric.BounceRate, metric.Period30Days)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.IsFresh(clock.At))
}

func TestRunOnce_SkipsFailures(t *testing.T) {
	clock := &metric.FixedClock{At: time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)}
	snaps := store.NewMemorySnapshots()
	s := aggregation.NewScheduler(tenants{"t1", "t2"}, registry("t1"), snaps, clock, quiet)
	s.Periods = []metric.Period{metric.Period7Days}

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, 1, res.Failed)

	snap, err := snaps.LatestSnapshot(context.Background(), "t1", metric.SessionTime, metric.Period7Days)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRunOnce_ListingErrorAborts(t *testing.T) {
	boom := errors.New("db closed")
	s := aggregation.NewScheduler(failingLister{boom}, registry(""), store.NewMemorySnapshots(), nil, quiet)
	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunOnce_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := aggregation.NewScheduler(tenants{"t1"}, registry(""), store.NewMemorySnapshots(), nil, quiet)
	_, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartStop(t *testing.T) {
	snaps := store.NewMemorySnapshots()
	s := aggregation.NewScheduler(tenants{"t1"}, registry(""), snaps, nil, quiet)
	s.Interval = time.Hour
	s.Periods = []metric.Period{metric.Period7Days}

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		snap, _ := snaps.LatestSnapshot(context.Background(), "t1", metric.SessionTime, metric.Period7Days)
		return snap != nil
	}, time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestStart_Disabled(t *testing.T) {
	snaps := store.NewMemorySnapshots()
	s := aggregation.NewScheduler(tenants{"t1"}, registry(""), snaps, nil, quiet)
	s.Enabled = false

	s.Start(context.Background())
	s.Stop()

	snap, err := snaps.LatestSnapshot(context.Background(), "t1", metric.SessionTime, metric.Period7Days)
	require.NoError(t, err)
	assert.Nil(t, snap)
}
