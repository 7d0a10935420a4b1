package calculators

import (
	"time"

	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/present"
)

// NullImplementation is the implementation name that switches a metric off.
const NullImplementation = "NullCalculator"

// Entry pairs a metric type with its default implementation and its
// presentation policy.
type Entry struct {
	Type           metric.MetricType
	Implementation string
	Policy         present.Policy
	build          func(src EventSource, ttl time.Duration) metric.Calculator
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog returns one entry per metric type, in declaration order.
func Catalog() []Entry {
	return []Entry{
		{
			Type:           metric.ActiveBeneficiaries,
			Implementation: "ActiveBeneficiariesCalculator",
			Policy:         countPolicy(metric.ActiveBeneficiaries, "active"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewActiveBeneficiaries(src, ttl)
			},
		},
		{
			Type:           metric.ActivationRate,
			Implementation: "ActivationRateCalculator",
			Policy:         percentPolicy(metric.ActivationRate, "rate"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewActivationRate(src, ttl)
			},
		},
		{
			Type:           metric.SessionTime,
			Implementation: "SessionTimeCalculator",
			Policy: present.Policy{
				Title:    present.TitleKey(metric.SessionTime),
				Tooltip:  present.TooltipKey(metric.SessionTime),
				Unit:     present.UnitDuration,
				Headline: present.AverageHeadline("average_minutes", present.FormatMinutes),
				Series:   present.DailySeriesRule("average_minutes", nil),
			},
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewSessionTime(src, ttl)
			},
		},
		{
			Type:           metric.ModuleUsage,
			Implementation: "ModuleUsageCalculator",
			Policy: present.Policy{
				Title:    present.TitleKey(metric.ModuleUsage),
				Tooltip:  present.TooltipKey(metric.ModuleUsage),
				Unit:     present.UnitNumber,
				Headline: present.TotalHeadline("total", present.FormatNumber),
				Series:   present.CategorySeriesRule(),
			},
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewModuleUsage(src, ttl)
			},
		},
		{
			Type:           metric.ArticleViewed,
			Implementation: "ArticleViewedCalculator",
			Policy:         countPolicy(metric.ArticleViewed, "total_views"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewCountCalculator(metric.ArticleViewed, KindArticleView, src, ttl)
			},
		},
		{
			Type:           metric.VoucherPurchases,
			Implementation: "VoucherPurchasesCalculator",
			Policy:         countPolicy(metric.VoucherPurchases, "total_purchases"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewVoucherPurchases(src, ttl)
			},
		},
		{
			Type:           metric.ShortcutsClicks,
			Implementation: "ShortcutsClicksCalculator",
			Policy:         countPolicy(metric.ShortcutsClicks, "total_clicks"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewCountCalculator(metric.ShortcutsClicks, KindShortcutClick, src, ttl)
			},
		},
		{
			Type:           metric.ArticleReactions,
			Implementation: "ArticleReactionsCalculator",
			Policy:         countPolicy(metric.ArticleReactions, "total_reactions"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewCountCalculator(metric.ArticleReactions, KindArticleReaction, src, ttl)
			},
		},
		{
			Type:           metric.ArticlesPerEmployee,
			Implementation: "ArticlesPerEmployeeCalculator",
			Policy:         countPolicy(metric.ArticlesPerEmployee, "articles_per_employee"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewArticlesPerEmployee(src, ttl)
			},
		},
		{
			Type:           metric.BounceRate,
			Implementation: "BounceRateCalculator",
			Policy:         percentPolicy(metric.BounceRate, "bounce_rate"),
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewBounceRate(src, ttl)
			},
		},
		{
			Type:           metric.VoucherAverageAmount,
			Implementation: "VoucherAverageAmountCalculator",
			Policy: present.Policy{
				Title:    present.TitleKey(metric.VoucherAverageAmount),
				Tooltip:  present.TooltipKey(metric.VoucherAverageAmount),
				Unit:     present.UnitCurrency,
				Headline: present.AverageHeadline("average_amount", present.FormatCurrency),
				Series:   present.DailySeriesRule("average_amount", present.CurrencyPoint),
			},
			build: func(src EventSource, ttl time.Duration) metric.Calculator {
				return NewVoucherAverageAmount(src, ttl)
			},
		},
	}
}

func countPolicy(t metric.MetricType, legacyField string) present.Policy {
	return present.Policy{
		Title:    present.TitleKey(t),
		Tooltip:  present.TooltipKey(t),
		Unit:     present.UnitNumber,
		Headline: present.TotalHeadline(legacyField, present.FormatNumber),
		Series:   present.DailySeriesRule(legacyField, nil),
	}
}

func percentPolicy(t metric.MetricType, legacyField string) present.Policy {
	return present.Policy{
		Title:    present.TitleKey(t),
		Tooltip:  present.TooltipKey(t),
		Unit:     present.UnitPercentage,
		Headline: present.MeanHeadline(legacyField, 1),
		Series:   present.DailySeriesRule(legacyField, nil),
	}
}

// =============================================================================
// DERIVED TABLES
// =============================================================================

// DefaultRegistrations is the registration table used when no override is configured.
func DefaultRegistrations(src EventSource, ttl time.Duration) []metric.Registration {
	entries := Catalog()
	regs := make([]metric.Registration, 0, len(entries))
	for _, e := range entries {
		build := e.build
		regs = append(regs, metric.Registration{
			Type: e.Type,
			New:  func() metric.Calculator { return build(src, ttl) },
		})
	}
	return regs
}

// Implementations maps every implementation name configuration may refer to.
func Implementations(src EventSource, ttl time.Duration) map[string]metric.Implementation {
	entries := Catalog()
	impls := make(map[string]metric.Implementation, len(entries)+1)
	for _, e := range entries {
		build := e.build
		impls[e.Implementation] = metric.Implementation{
			Name:  e.Implementation,
			Types: []metric.MetricType{e.Type},
			New:   func(metric.MetricType) metric.Calculator { return build(src, ttl) },
		}
	}
	impls[NullImplementation] = metric.Implementation{
		Name: NullImplementation,
		New:  func(t metric.MetricType) metric.Calculator { return NewNull(t, ttl) },
	}
	return impls
}

// Policies maps every metric type to its presentation policy.
func Policies() map[metric.MetricType]present.Policy {
	entries := Catalog()
	out := make(map[metric.MetricType]present.Policy, len(entries))
	for _, e := range entries {
		out[e.Type] = e.Policy
	}
	return out
}
