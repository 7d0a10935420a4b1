package calculators

import (
	"context"
	"sort"
	"time"

	"github.com/warp/metrics-engine/metric"
)

// =============================================================================
// COUNTS - article views, reactions, shortcut clicks
// =============================================================================

// CountCalculator counts events of one kind per day.
type CountCalculator struct {
	base
	kind EventKind
}

func NewCountCalculator(t metric.MetricType, kind EventKind, src EventSource, ttl time.Duration) *CountCalculator {
	return &CountCalculator{base: newBase(t, src, ttl), kind: kind}
}

func (c *CountCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	q := Query{Kind: c.kind, Agg: AggCount}
	daily, err := c.src.Daily(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	total, err := c.src.Total(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	return &metric.DailySeries{Daily: densify(rng, daily), Total: total}, nil
}

// =============================================================================
// BENEFICIARIES
// =============================================================================

// ActiveBeneficiariesCalculator counts distinct beneficiaries with a session.
type ActiveBeneficiariesCalculator struct{ base }

func NewActiveBeneficiaries(src EventSource, ttl time.Duration) *ActiveBeneficiariesCalculator {
	return &ActiveBeneficiariesCalculator{newBase(metric.ActiveBeneficiaries, src, ttl)}
}

func (c *ActiveBeneficiariesCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	q := Query{Kind: KindSession, Agg: AggDistinct}
	daily, err := c.src.Daily(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	active, err := c.src.Total(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	enrolled, err := c.src.Beneficiaries(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &metric.DailySeries{
		Daily:      densify(rng, daily),
		Total:      active,
		Aggregates: map[string]float64{"beneficiaries": float64(enrolled)},
	}, nil
}

// ActivationRateCalculator tracks the cumulative share of activated
// beneficiaries at the end of each day.
type ActivationRateCalculator struct{ base }

func NewActivationRate(src EventSource, ttl time.Duration) *ActivationRateCalculator {
	return &ActivationRateCalculator{newBase(metric.ActivationRate, src, ttl)}
}

func (c *ActivationRateCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	enrolled, err := c.src.Beneficiaries(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	activated, err := c.src.ActivatedBefore(ctx, tenantID, rng.From)
	if err != nil {
		return nil, err
	}
	daily, err := c.src.Daily(ctx, tenantID, rng, Query{Kind: KindActivation, Agg: AggCount})
	if err != nil {
		return nil, err
	}

	points := densify(rng, daily)
	running := float64(activated)
	for i := range points {
		running += points[i].Value
		points[i].Value = ratio(running, float64(enrolled), 100, 1)
	}
	return &metric.DailySeries{
		Daily: points,
		Total: ratio(running, float64(enrolled), 100, 1),
		Aggregates: map[string]float64{
			"activated":     running,
			"beneficiaries": float64(enrolled),
		},
	}, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionTimeCalculator reports the average session length in minutes.
type SessionTimeCalculator struct{ base }

func NewSessionTime(src EventSource, ttl time.Duration) *SessionTimeCalculator {
	return &SessionTimeCalculator{newBase(metric.SessionTime, src, ttl)}
}

func (c *SessionTimeCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	q := Query{Kind: KindSession, Agg: AggAvg}
	daily, err := c.src.Daily(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	avg, err := c.src.Total(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	sessions, err := c.src.Total(ctx, tenantID, rng, Query{Kind: KindSession, Agg: AggCount})
	if err != nil {
		return nil, err
	}

	points := densify(rng, daily)
	for i := range points {
		points[i].Value = round(points[i].Value, 1)
	}
	return &metric.DailySeries{
		Daily:      points,
		Total:      round(avg, 1),
		Aggregates: map[string]float64{"sessions": sessions},
	}, nil
}

// BounceRateCalculator reports bounced sessions as a percentage of all sessions.
type BounceRateCalculator struct{ base }

func NewBounceRate(src EventSource, ttl time.Duration) *BounceRateCalculator {
	return &BounceRateCalculator{newBase(metric.BounceRate, src, ttl)}
}

func (c *BounceRateCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	all := Query{Kind: KindSession, Agg: AggCount}
	bounced := Query{Kind: KindSession, Agg: AggCount, Subject: SubjectBounce}

	sessions, err := c.src.Daily(ctx, tenantID, rng, all)
	if err != nil {
		return nil, err
	}
	bounces, err := c.src.Daily(ctx, tenantID, rng, bounced)
	if err != nil {
		return nil, err
	}

	sessionDays := densify(rng, sessions)
	bounceDays := densify(rng, bounces)
	points := make([]metric.DailyPoint, len(sessionDays))
	var totalSessions, totalBounces float64
	for i := range sessionDays {
		totalSessions += sessionDays[i].Value
		totalBounces += bounceDays[i].Value
		points[i] = metric.DailyPoint{
			Date:  sessionDays[i].Date,
			Value: ratio(bounceDays[i].Value, sessionDays[i].Value, 100, 1),
		}
	}
	return &metric.DailySeries{
		Daily: points,
		Total: ratio(totalBounces, totalSessions, 100, 1),
		Aggregates: map[string]float64{
			"sessions": totalSessions,
			"bounces":  totalBounces,
		},
	}, nil
}

// =============================================================================
// MODULES
// =============================================================================

// ModuleUsageCalculator breaks module usage down per module.
type ModuleUsageCalculator struct{ base }

func NewModuleUsage(src EventSource, ttl time.Duration) *ModuleUsageCalculator {
	return &ModuleUsageCalculator{newBase(metric.ModuleUsage, src, ttl)}
}

func (c *ModuleUsageCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	breakdown, err := c.src.Breakdown(ctx, tenantID, rng, KindModuleUse)
	if err != nil {
		return nil, err
	}
	modules, err := c.src.Modules(ctx)
	if err != nil {
		return nil, err
	}

	points := densify(rng, breakdown)
	used := make(map[string]bool)
	for i := range points {
		var day float64
		for id, n := range points[i].Breakdown {
			used[id] = true
			day += n
		}
		points[i].Value = day
	}

	names := make(map[string]map[string]string, len(modules))
	for _, m := range modules {
		names[m.ID] = m.Name
	}
	ids := make([]string, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cats := make([]metric.Category, 0, len(ids))
	for _, id := range ids {
		cats = append(cats, metric.Category{ID: id, Name: names[id]})
	}

	return &metric.DailySeries{Daily: points, Total: sumValues(points), Categories: cats}, nil
}

// =============================================================================
// ARTICLES
// =============================================================================

// ArticlesPerEmployeeCalculator divides article views by enrolled beneficiaries.
type ArticlesPerEmployeeCalculator struct{ base }

func NewArticlesPerEmployee(src EventSource, ttl time.Duration) *ArticlesPerEmployeeCalculator {
	return &ArticlesPerEmployeeCalculator{newBase(metric.ArticlesPerEmployee, src, ttl)}
}

func (c *ArticlesPerEmployeeCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	enrolled, err := c.src.Beneficiaries(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	q := Query{Kind: KindArticleView, Agg: AggCount}
	daily, err := c.src.Daily(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	views, err := c.src.Total(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}

	points := densify(rng, daily)
	for i := range points {
		points[i].Value = ratio(points[i].Value, float64(enrolled), 1, 2)
	}
	return &metric.DailySeries{
		Daily: points,
		Total: ratio(views, float64(enrolled), 1, 2),
		Aggregates: map[string]float64{
			"views":         views,
			"beneficiaries": float64(enrolled),
		},
	}, nil
}

// =============================================================================
// VOUCHERS - amounts stay in minor units
// =============================================================================

// VoucherPurchasesCalculator counts purchases and sums their amount.
type VoucherPurchasesCalculator struct{ base }

func NewVoucherPurchases(src EventSource, ttl time.Duration) *VoucherPurchasesCalculator {
	return &VoucherPurchasesCalculator{newBase(metric.VoucherPurchases, src, ttl)}
}

func (c *VoucherPurchasesCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	q := Query{Kind: KindVoucherPurchase, Agg: AggCount}
	daily, err := c.src.Daily(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	count, err := c.src.Total(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	amount, err := c.src.Total(ctx, tenantID, rng, Query{Kind: KindVoucherPurchase, Agg: AggSum})
	if err != nil {
		return nil, err
	}
	return &metric.DailySeries{
		Daily:      densify(rng, daily),
		Total:      count,
		Aggregates: map[string]float64{"amount": amount},
	}, nil
}

// VoucherAverageAmountCalculator reports the mean purchase amount in cents.
type VoucherAverageAmountCalculator struct{ base }

func NewVoucherAverageAmount(src EventSource, ttl time.Duration) *VoucherAverageAmountCalculator {
	return &VoucherAverageAmountCalculator{newBase(metric.VoucherAverageAmount, src, ttl)}
}

func (c *VoucherAverageAmountCalculator) Calculate(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, _ metric.Period) (metric.RawMetricResult, error) {
	q := Query{Kind: KindVoucherPurchase, Agg: AggAvg}
	daily, err := c.src.Daily(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	avg, err := c.src.Total(ctx, tenantID, rng, q)
	if err != nil {
		return nil, err
	}
	purchases, err := c.src.Total(ctx, tenantID, rng, Query{Kind: KindVoucherPurchase, Agg: AggCount})
	if err != nil {
		return nil, err
	}

	points := densify(rng, daily)
	for i := range points {
		points[i].Value = round(points[i].Value, 0)
	}
	return &metric.DailySeries{
		Daily:      points,
		Total:      round(avg, 0),
		Aggregates: map[string]float64{"purchases": purchases},
	}, nil
}

// =============================================================================
// NULL
// =============================================================================

// NullCalculator serves any metric type with an empty series. Configuration
// uses it to switch a metric off.
type NullCalculator struct{ base }

func NewNull(t metric.MetricType, ttl time.Duration) *NullCalculator {
	return &NullCalculator{newBase(t, nil, ttl)}
}

func (c *NullCalculator) Calculate(context.Context, metric.TenantID, metric.DateRange, metric.Period) (metric.RawMetricResult, error) {
	return &metric.DailySeries{Daily: []metric.DailyPoint{}}, nil
}
