package present

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/metrics-engine/metric"
)

// LegacyLabel labels the single point presented for a legacy flat payload.
const LegacyLabel = "total"

// =============================================================================
// POLICY - Per-metric formatting strategy
// =============================================================================

// Policy is the presentation strategy for one metric type, registered next to
// its calculator in the catalog.
type Policy struct {
	Title    string
	Tooltip  string
	Unit     Unit
	Headline HeadlineRule
	Series   SeriesRule
}

// HeadlineRule reduces a raw result to the scalar headline. It must tolerate
// a nil or partially filled raw result.
type HeadlineRule func(raw metric.RawMetricResult) string

// SeriesRule produces labels and datasets. label names the single dataset of
// single-series metrics.
type SeriesRule func(raw metric.RawMetricResult, label string) ([]string, []Dataset)

// TitleKey and TooltipKey derive the default translation keys for a metric.
func TitleKey(t metric.MetricType) string {
	return "interface.metrics." + strings.ReplaceAll(string(t), "-", "_") + ".title"
}

func TooltipKey(t metric.MetricType) string {
	return "interface.metrics." + strings.ReplaceAll(string(t), "-", "_") + ".tooltip"
}

// DefaultPolicy presents a plain count. Used for types without a policy.
func DefaultPolicy(t metric.MetricType) Policy {
	return Policy{
		Title:    TitleKey(t),
		Tooltip:  TooltipKey(t),
		Unit:     UnitNumber,
		Headline: TotalHeadline("total", FormatNumber),
		Series:   DailySeriesRule("total", nil),
	}
}

// =============================================================================
// HEADLINE RULES
// =============================================================================

// Formatter renders a headline number.
type Formatter func(d decimal.Decimal) string

func FormatNumber(d decimal.Decimal) string { return d.Round(2).String() }

func FormatMinutes(d decimal.Decimal) string { return FormatDuration(int(d.Round(0).IntPart())) }

func FormatCurrency(d decimal.Decimal) string { return RebaseCurrency(d.InexactFloat64()).StringFixed(2) }

// Reducer folds daily values into a headline when the daily payload carries
// no aggregate of its own.
type Reducer func(values []float64) decimal.Decimal

// SumValues is the reducer for counts.
func SumValues(values []float64) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(safeDecimal(v))
	}
	return sum
}

// MeanValues is the reducer for per-day averages. Unrounded.
func MeanValues(values []float64) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return SumValues(values).Div(decimal.NewFromInt(int64(len(values))))
}

// AggregateHeadline uses the daily shape's total, falling back to reduce over
// the daily values, or legacyField from the flat shape.
func AggregateHeadline(legacyField string, reduce Reducer, format Formatter) HeadlineRule {
	return func(raw metric.RawMetricResult) string {
		return format(totalOf(raw, legacyField, reduce))
	}
}

// TotalHeadline sums daily values when no total is present.
func TotalHeadline(legacyField string, format Formatter) HeadlineRule {
	return AggregateHeadline(legacyField, SumValues, format)
}

// AverageHeadline averages daily values when no total is present.
func AverageHeadline(legacyField string, format Formatter) HeadlineRule {
	return AggregateHeadline(legacyField, MeanValues, format)
}

// MeanHeadline averages the daily values, or rounds legacyField from the flat shape.
func MeanHeadline(legacyField string, places int32) HeadlineRule {
	return func(raw metric.RawMetricResult) string {
		if ds, ok := raw.(*metric.DailySeries); ok {
			return Mean(ds.Values(), places).String()
		}
		return safeDecimal(legacyScalar(raw, legacyField)).Round(places).String()
	}
}

func totalOf(raw metric.RawMetricResult, legacyField string, reduce Reducer) decimal.Decimal {
	ds, ok := raw.(*metric.DailySeries)
	if !ok {
		return safeDecimal(legacyScalar(raw, legacyField))
	}
	if ds.Total != 0 || len(ds.Daily) == 0 {
		return safeDecimal(ds.Total)
	}
	return reduce(ds.Values())
}

func legacyScalar(raw metric.RawMetricResult, field string) float64 {
	if raw == nil {
		return 0
	}
	v, _ := raw.Scalar(field)
	return v
}

// =============================================================================
// SERIES RULES
// =============================================================================

// PointFunc transforms a raw series value for display. nil means identity.
type PointFunc func(v float64) float64

// CurrencyPoint rebases a minor-unit value.
func CurrencyPoint(v float64) float64 { return RebaseCurrency(v).InexactFloat64() }

// DailySeriesRule presents one dataset: the daily values, or a single point
// holding legacyField for the flat shape.
func DailySeriesRule(legacyField string, point PointFunc) SeriesRule {
	if point == nil {
		point = func(v float64) float64 { return v }
	}
	return func(raw metric.RawMetricResult, label string) ([]string, []Dataset) {
		ds, ok := raw.(*metric.DailySeries)
		if !ok {
			if raw == nil {
				return []string{}, []Dataset{{Label: label, Data: []float64{}}}
			}
			return []string{LegacyLabel}, []Dataset{{Label: label, Data: []float64{point(legacyScalar(raw, legacyField))}}}
		}

		labels := make([]string, len(ds.Daily))
		data := make([]float64, len(ds.Daily))
		for i, p := range ds.Daily {
			labels[i] = p.Date
			data[i] = point(p.Value)
		}
		return labels, []Dataset{{Label: label, Data: data}}
	}
}

// CategorySeriesRule presents one dataset per category (e.g. per module),
// ordered by display name, case-insensitively.
func CategorySeriesRule() SeriesRule {
	return func(raw metric.RawMetricResult, _ string) ([]string, []Dataset) {
		if raw == nil {
			return []string{}, []Dataset{}
		}
		cats := categoriesOf(raw)

		ds, daily := raw.(*metric.DailySeries)
		var labels []string
		if daily {
			labels = make([]string, len(ds.Daily))
			for i, p := range ds.Daily {
				labels[i] = p.Date
			}
		} else {
			labels = []string{LegacyLabel}
		}

		datasets := make([]Dataset, 0, len(cats))
		for _, c := range cats {
			set := Dataset{
				Label:          DisplayName(c.Name, c.ID),
				TranslationKey: TranslationKey(c.Name, c.ID),
			}
			if daily {
				set.Data = make([]float64, len(ds.Daily))
				for i, p := range ds.Daily {
					set.Data[i] = p.Breakdown[c.ID]
				}
			} else {
				set.Data = []float64{c.Count}
			}
			datasets = append(datasets, set)
		}

		sort.SliceStable(datasets, func(i, j int) bool {
			return strings.ToLower(datasets[i].Label) < strings.ToLower(datasets[j].Label)
		})
		return labels, datasets
	}
}

// categoriesOf returns the declared categories plus any id that only shows up
// in a daily breakdown.
func categoriesOf(raw metric.RawMetricResult) []metric.Category {
	cats := append([]metric.Category(nil), raw.CategoryList()...)
	ds, ok := raw.(*metric.DailySeries)
	if !ok {
		return cats
	}

	known := make(map[string]bool, len(cats))
	for _, c := range cats {
		known[c.ID] = true
	}
	var extra []string
	for _, p := range ds.Daily {
		for id := range p.Breakdown {
			if !known[id] {
				known[id] = true
				extra = append(extra, id)
			}
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		cats = append(cats, metric.Category{ID: id})
	}
	return cats
}
