/*
Package present turns raw calculator output into UI-ready metrics.

PURPOSE:
  A calculator result is either the newer DailySeries shape or the legacy
  flat shape, and cache entries of both kinds live indefinitely. The
  Normalizer reads either and produces one stable PresentedMetric.

DESIGN:
  - Per-metric behaviour lives in a Policy (headline rule, series rule,
    unit), looked up in a map. There is no central switch over types.
  - Transform never fails: missing fields and nil input yield zeros.
  - PresentedMetric is built fresh on every request and never cached, so
    presentation changes apply to old cache entries immediately.

USAGE:
  n := present.NewNormalizer(calculators.Policies())
  dto := n.Transform(metric.SessionTime, raw)

SEE ALSO:
  - policy.go: Headline and series rules
  - format.go: Durations, currency, translation keys
  - calculators/catalog.go: Policy registered per metric type
*/
package present

import "github.com/warp/metrics-engine/metric"

type Unit string

const (
	UnitNumber     Unit = "number"
	UnitPercentage Unit = "percentage"
	UnitDuration   Unit = "duration"
	UnitCurrency   Unit = "currency"
)

// Dataset is one named series.
type Dataset struct {
	Label          string    `json:"label"`
	TranslationKey string    `json:"translation_key,omitempty"`
	Data           []float64 `json:"data"`
}

// PresentedMetric is the caller-facing DTO.
type PresentedMetric struct {
	Title    string    `json:"title"`
	Tooltip  string    `json:"tooltip"`
	Value    string    `json:"value"`
	Unit     Unit      `json:"unit"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// =============================================================================
// NORMALIZER
// =============================================================================

type Normalizer struct {
	policies map[metric.MetricType]Policy
}

func NewNormalizer(policies map[metric.MetricType]Policy) *Normalizer {
	cp := make(map[metric.MetricType]Policy, len(policies))
	for t, p := range policies {
		cp[t] = p
	}
	return &Normalizer{policies: cp}
}

// PolicyFor returns the registered policy, or the count policy.
func (n *Normalizer) PolicyFor(t metric.MetricType) Policy {
	p, ok := n.policies[t]
	if !ok {
		return DefaultPolicy(t)
	}
	def := DefaultPolicy(t)
	if p.Headline == nil {
		p.Headline = def.Headline
	}
	if p.Series == nil {
		p.Series = def.Series
	}
	if p.Unit == "" {
		p.Unit = def.Unit
	}
	return p
}

// Transform builds the presented metric for a raw result of either shape.
func (n *Normalizer) Transform(t metric.MetricType, raw metric.RawMetricResult) PresentedMetric {
	p := n.PolicyFor(t)
	labels, datasets := p.Series(raw, p.Title)
	if labels == nil {
		labels = []string{}
	}
	if datasets == nil {
		datasets = []Dataset{}
	}
	return PresentedMetric{
		Title:    p.Title,
		Tooltip:  p.Tooltip,
		Value:    p.Headline(raw),
		Unit:     p.Unit,
		Labels:   labels,
		Datasets: datasets,
	}
}
