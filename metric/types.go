/*
Package metric provides the tenant metric calculation-and-caching engine.

PURPOSE:
  Answers "what is the value of metric X, for tenant Y, over date-range Z"
  while keeping recomputation cost low. Calculators (one per metric type)
  do the math; this package decides when they actually have to run.

KEY CONCEPTS IN THIS FILE (types.go):
  - MetricType: Closed enumeration of measurable quantities
  - TenantID: Type-safe tenant ("financer") identifier
  - DateRange: Absolute inclusive range produced by the PeriodResolver

CONTROL FLOW:
  caller -> service.GetMetric
         -> PeriodResolver.Resolve(period)
         -> Registry.Make(metricType)
         -> Cascade.Get (fast cache -> durable snapshot -> live calculation)
         -> present.Normalizer.Transform(raw)

USAGE:
  registry := metric.NewRegistry(registrations, logger)
  cascade := &metric.Cascade{Registry: registry, Cache: cache, Snapshots: store}
  raw, err := cascade.Get(ctx, "tenant-1", metric.ActivationRate, rng, metric.Period30Days, false)

SEE ALSO:
  - period.go: Period tokens and date resolution
  - cascade.go: Three-tier cache cascade
  - registry.go: Calculator registry
*/
package metric

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// METRIC TYPE - Closed enumeration
// =============================================================================

type MetricType string

const (
	ActiveBeneficiaries  MetricType = "active-beneficiaries"
	ActivationRate       MetricType = "activation-rate"
	SessionTime          MetricType = "session-time"
	ModuleUsage          MetricType = "module-usage"
	ArticleViewed        MetricType = "article-viewed"
	VoucherPurchases     MetricType = "voucher-purchases"
	ShortcutsClicks      MetricType = "shortcuts-clicks"
	ArticleReactions     MetricType = "article-reactions"
	ArticlesPerEmployee  MetricType = "articles-per-employee"
	BounceRate           MetricType = "bounce-rate"
	VoucherAverageAmount MetricType = "voucher-average-amount"
)

var metricTypes = []MetricType{
	ActiveBeneficiaries,
	ActivationRate,
	SessionTime,
	ModuleUsage,
	ArticleViewed,
	VoucherPurchases,
	ShortcutsClicks,
	ArticleReactions,
	ArticlesPerEmployee,
	BounceRate,
	VoucherAverageAmount,
}

// DashboardMetrics is the fixed subset assembled by Cascade.Dashboard.
var DashboardMetrics = []MetricType{
	ActiveBeneficiaries,
	ActivationRate,
	SessionTime,
	ArticleViewed,
}

// AllMetricTypes returns every known metric type in declaration order.
func AllMetricTypes() []MetricType {
	out := make([]MetricType, len(metricTypes))
	copy(out, metricTypes)
	return out
}

// Valid reports whether m belongs to the closed enumeration.
func (m MetricType) Valid() bool {
	for _, t := range metricTypes {
		if t == m {
			return true
		}
	}
	return false
}

// StoreName is the metric-name encoding used by the durable store.
func (m MetricType) StoreName() string {
	return "tenant_" + strings.ReplaceAll(string(m), "-", "_")
}

func (m MetricType) String() string { return string(m) }

// ParseMetricType validates s against the closed enumeration.
func ParseMetricType(s string) (MetricType, error) {
	m := MetricType(strings.TrimSpace(s))
	if !m.Valid() {
		return "", &UnknownMetricTypeError{Type: s}
	}
	return m, nil
}

func sortMetricTypes(types []MetricType) {
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
}

// =============================================================================
// IDENTIFIERS AND RANGES
// =============================================================================

type TenantID string

// DateRange is an absolute inclusive range. Both bounds carry time of day:
// From is normally a start-of-day instant, To an end-of-day instant.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains returns true if t is within [From, To].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Days returns every calendar day touched by the range, as start-of-day instants.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := StartOfDay(r.From); !d.After(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return "[" + r.From.Format(DateLayout) + ", " + r.To.Format(DateLayout) + "]"
}
