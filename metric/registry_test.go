package metric_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/metrics-engine/metric"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// countingCalculator records how often Calculate runs.
type countingCalculator struct {
	metricType metric.MetricType
	ttl        time.Duration
	calls      atomic.Int32
	result     metric.RawMetricResult
	err        error
	block      chan struct{}
}

func newCounting(t metric.MetricType, total float64) *countingCalculator {
	return &countingCalculator{
		metricType: t,
		ttl:        time.Hour,
		result: &metric.DailySeries{
			Daily: []metric.DailyPoint{{Date: "2025-03-01", Value: total}},
			Total: total,
		},
	}
}

func (c *countingCalculator) Calculate(_ context.Context, _ metric.TenantID, _ metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	c.calls.Add(1)
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func (c *countingCalculator) CacheKey(tenantID metric.TenantID, rng metric.DateRange, period metric.Period) string {
	return fmt.Sprintf("test:%s:%s:%s:%s:%s", c.metricType, tenantID, period,
		rng.From.Format(metric.DateLayout), rng.To.Format(metric.DateLayout))
}

func (c *countingCalculator) CacheTTL() time.Duration       { return c.ttl }
func (c *countingCalculator) MetricType() metric.MetricType { return c.metricType }

func registrationFor(calc metric.Calculator) metric.Registration {
	return metric.Registration{Type: calc.MetricType(), New: func() metric.Calculator { return calc }}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_MakeReturnsSameInstance(t *testing.T) {
	var built atomic.Int32
	registry := metric.NewRegistry([]metric.Registration{{
		Type: metric.ActivationRate,
		New: func() metric.Calculator {
			built.Add(1)
			return newCounting(metric.ActivationRate, 1)
		},
	}}, nil)

	first, err := registry.Make(metric.ActivationRate)
	require.NoError(t, err)
	second, err := registry.Make(metric.ActivationRate)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), built.Load())
}

func TestRegistry_ConcurrentMakeBuildsOnce(t *testing.T) {
	var built atomic.Int32
	registry := metric.NewRegistry([]metric.Registration{{
		Type: metric.SessionTime,
		New: func() metric.Calculator {
			built.Add(1)
			return newCounting(metric.SessionTime, 1)
		},
	}}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Make(metric.SessionTime)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), built.Load())
}

func TestRegistry_UnknownTypeFailsClosed(t *testing.T) {
	registry := metric.NewRegistry([]metric.Registration{registrationFor(newCounting(metric.ActivationRate, 1))}, nil)

	for _, name := range []string{"not-a-metric", "", string(metric.SessionTime)} {
		_, err := registry.Make(metric.MetricType(name))
		assert.ErrorIs(t, err, metric.ErrInvalidMetricType, "type %q", name)
	}
	assert.True(t, registry.Supports(metric.ActivationRate))
	assert.False(t, registry.Supports(metric.SessionTime))
}

func TestRegistry_DropsInvalidRegistrations(t *testing.T) {
	registry := metric.NewRegistry([]metric.Registration{
		{Type: "bogus", New: func() metric.Calculator { return newCounting("bogus", 1) }},
		{Type: metric.BounceRate},
		registrationFor(newCounting(metric.ArticleViewed, 1)),
	}, nil)

	assert.Equal(t, []metric.MetricType{metric.ArticleViewed}, registry.Types())
}

func TestRegistry_AllInstantiatesEveryType(t *testing.T) {
	registry := metric.NewRegistry([]metric.Registration{
		registrationFor(newCounting(metric.ActiveBeneficiaries, 1)),
		registrationFor(newCounting(metric.ArticleViewed, 1)),
	}, nil)

	all := registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, metric.ArticleViewed, all[metric.ArticleViewed].MetricType())

	again, err := registry.Make(metric.ActiveBeneficiaries)
	require.NoError(t, err)
	assert.Same(t, all[metric.ActiveBeneficiaries], again)
}

func TestParseMetricType(t *testing.T) {
	m, err := metric.ParseMetricType("voucher-average-amount")
	require.NoError(t, err)
	assert.Equal(t, metric.VoucherAverageAmount, m)
	assert.Equal(t, "tenant_voucher_average_amount", m.StoreName())

	_, err = metric.ParseMetricType("voucher_average_amount")
	assert.ErrorIs(t, err, metric.ErrInvalidMetricType)
	assert.Len(t, metric.AllMetricTypes(), 11)
}
