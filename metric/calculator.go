package metric

import (
	"context"
	"time"
)

// =============================================================================
// CALCULATOR - Plug-in contract, one implementation per metric type
// =============================================================================

// Calculator computes one metric type. Implementations are stateless across
// calls; the registry keeps a single instance per type.
type Calculator interface {
	// Calculate computes the raw result. Errors propagate to the caller untouched.
	Calculate(ctx context.Context, tenantID TenantID, rng DateRange, period Period) (RawMetricResult, error)

	// CacheKey must be a pure function of its inputs: identical requests
	// collide, distinct tenants or periods never do.
	CacheKey(tenantID TenantID, rng DateRange, period Period) string

	// CacheTTL is the fast-cache lifetime for this calculator's results.
	CacheTTL() time.Duration

	MetricType() MetricType
}

// Constructor builds a calculator instance.
type Constructor func() Calculator

// Implementation is a named calculator implementation that configuration can
// refer to. An empty Types list means the implementation serves any type.
type Implementation struct {
	Name  string
	Types []MetricType
	New   func(MetricType) Calculator
}

// Serves reports whether the implementation can be registered under t.
func (i Implementation) Serves(t MetricType) bool {
	if len(i.Types) == 0 {
		return true
	}
	for _, s := range i.Types {
		if s == t {
			return true
		}
	}
	return false
}
