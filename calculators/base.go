package calculators

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/metrics-engine/metric"
)

// DefaultCacheTTL is the fast-cache lifetime when none is configured.
const DefaultCacheTTL = time.Hour

// CacheKey is the fast-cache key shared by every reference calculator.
// Tenant ids may contain ':'; the fixed-format suffix keeps keys unambiguous.
func CacheKey(t metric.MetricType, tenantID metric.TenantID, rng metric.DateRange, period metric.Period) string {
	return fmt.Sprintf("tenant_metrics:%s:%s:%s:%s:%s",
		t, tenantID, period, rng.From.Format(metric.DateLayout), rng.To.Format(metric.DateLayout))
}

// base carries what every calculator shares.
type base struct {
	metricType metric.MetricType
	src        EventSource
	ttl        time.Duration
}

func newBase(t metric.MetricType, src EventSource, ttl time.Duration) base {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return base{metricType: t, src: src, ttl: ttl}
}

func (b base) MetricType() metric.MetricType { return b.metricType }

func (b base) CacheTTL() time.Duration { return b.ttl }

func (b base) CacheKey(tenantID metric.TenantID, rng metric.DateRange, period metric.Period) string {
	return CacheKey(b.metricType, tenantID, rng, period)
}

// =============================================================================
// SERIES HELPERS
// =============================================================================

// densify returns exactly one point per day of rng, in order. Missing days
// are zero; points outside the range are dropped.
func densify(rng metric.DateRange, points []metric.DailyPoint) []metric.DailyPoint {
	byDate := make(map[string]metric.DailyPoint, len(points))
	for _, p := range points {
		byDate[p.Date] = p
	}
	days := rng.Days()
	out := make([]metric.DailyPoint, len(days))
	for i, d := range days {
		key := d.Format(metric.DateLayout)
		if p, ok := byDate[key]; ok {
			out[i] = p
			continue
		}
		out[i] = metric.DailyPoint{Date: key}
	}
	return out
}

// ratio computes num*scale/den rounded to places, zero when den is zero.
func ratio(num, den, scale float64, places int32) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromFloat(num).
		Mul(decimal.NewFromFloat(scale)).
		Div(decimal.NewFromFloat(den)).
		Round(places).
		InexactFloat64()
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func sumValues(points []metric.DailyPoint) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum
}
