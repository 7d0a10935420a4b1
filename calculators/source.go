/*
Package calculators provides the reference calculators for every metric type.

PURPOSE:
  Each calculator turns engagement events for one tenant and date range
  into a DailySeries. Calculators never cache; the cascade in metric/
  decides when they run.

DATA SOURCE:
  Calculators read through the EventSource contract. store/sqlite
  implements it over the engagement_events table; tests use a fake.

  Event kinds and their value/subject columns:
    session           value = minutes, subject "bounce" for bounced sessions
    activation        one event per beneficiary, on first activation
    module_use        subject = module id
    article_view
    article_reaction
    shortcut_click
    voucher_purchase  value = amount in minor units (cents)

USAGE:
  regs := calculators.DefaultRegistrations(src, time.Hour)
  registry := metric.NewRegistry(regs, logger)

SEE ALSO:
  - catalog.go: Type -> implementation name -> presentation policy
  - factory/overrides.go: Swapping implementations from configuration
*/
package calculators

import (
	"context"
	"time"

	"github.com/warp/metrics-engine/metric"
)

// EventKind identifies a family of engagement events.
type EventKind string

const (
	KindSession         EventKind = "session"
	KindActivation      EventKind = "activation"
	KindModuleUse       EventKind = "module_use"
	KindArticleView     EventKind = "article_view"
	KindArticleReaction EventKind = "article_reaction"
	KindShortcutClick   EventKind = "shortcut_click"
	KindVoucherPurchase EventKind = "voucher_purchase"
)

// EventKinds lists every kind the event source understands.
func EventKinds() []EventKind {
	return []EventKind{
		KindSession, KindActivation, KindModuleUse, KindArticleView,
		KindArticleReaction, KindShortcutClick, KindVoucherPurchase,
	}
}

// SubjectBounce marks a bounced session.
const SubjectBounce = "bounce"

// Aggregation selects how events in a bucket are reduced.
type Aggregation string

const (
	AggCount    Aggregation = "count"
	AggDistinct Aggregation = "distinct" // distinct beneficiaries
	AggSum      Aggregation = "sum"
	AggAvg      Aggregation = "avg"
)

// Query selects events of one kind, optionally filtered by subject.
type Query struct {
	Kind    EventKind
	Agg     Aggregation
	Subject string
}

// EventSource is the read model the calculators aggregate over. Daily may
// omit days without events; calculators fill the gaps.
type EventSource interface {
	Daily(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, q Query) ([]metric.DailyPoint, error)
	Total(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, q Query) (float64, error)
	// Breakdown returns per-day counts keyed by subject in DailyPoint.Breakdown.
	Breakdown(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, kind EventKind) ([]metric.DailyPoint, error)
	Beneficiaries(ctx context.Context, tenantID metric.TenantID) (int, error)
	ActivatedBefore(ctx context.Context, tenantID metric.TenantID, at time.Time) (int, error)
	Modules(ctx context.Context) ([]metric.Category, error)
}
