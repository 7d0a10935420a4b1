/*
registry.go - Metric type to calculator mapping

PURPOSE:
  Maps a MetricType to a single calculator instance for the lifetime of the
  registry. Calculators may hold injected dependencies, so they are built
  lazily on first use and memoized.

HOW IT WORKS:
  1. The registration table is passed in at construction (see factory/ for
     the validated override table)
  2. Make() builds the calculator on first request and caches it
  3. Unknown types fail closed with ErrInvalidMetricType

USAGE:
  registry := metric.NewRegistry(calculators.DefaultRegistrations(src, ttl), logger)
  calc, err := registry.Make(metric.ActivationRate)

SEE ALSO:
  - calculator.go: Calculator contract
  - factory/overrides.go: Builds the registration table from configuration
*/
package metric

import (
	"log/slog"
	"sync"
)

// Registration binds a metric type to the constructor of its calculator.
type Registration struct {
	Type MetricType
	New  Constructor
}

// =============================================================================
// REGISTRY
// =============================================================================

type Registry struct {
	mu        sync.Mutex
	table     map[MetricType]Constructor
	instances map[MetricType]Calculator
	logger    *slog.Logger
}

// NewRegistry builds a registry from an explicit registration table. Entries
// with an unknown type or a nil constructor are dropped and logged.
func NewRegistry(registrations []Registration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		table:     make(map[MetricType]Constructor, len(registrations)),
		instances: make(map[MetricType]Calculator, len(registrations)),
		logger:    logger,
	}
	for _, reg := range registrations {
		if !reg.Type.Valid() || reg.New == nil {
			logger.Warn("dropping calculator registration", "metric_type", reg.Type)
			continue
		}
		r.table[reg.Type] = reg.New
	}
	return r
}

// Make returns the calculator registered for t, building it on first use.
func (r *Registry) Make(t MetricType) (Calculator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.makeLocked(t)
}

func (r *Registry) makeLocked(t MetricType) (Calculator, error) {
	if calc, ok := r.instances[t]; ok {
		return calc, nil
	}
	ctor, ok := r.table[t]
	if !ok {
		return nil, &UnknownMetricTypeError{Type: string(t)}
	}
	calc := ctor()
	if calc.MetricType() != t {
		r.logger.Warn("calculator reports a different metric type",
			"registered", t, "reported", calc.MetricType())
	}
	r.instances[t] = calc
	return calc, nil
}

// Supports reports whether t has a registered calculator.
func (r *Registry) Supports(t MetricType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.table[t]
	return ok
}

// Types returns the registered metric types, sorted.
func (r *Registry) Types() []MetricType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]MetricType, 0, len(r.table))
	for t := range r.table {
		types = append(types, t)
	}
	sortMetricTypes(types)
	return types
}

// All eagerly instantiates every registered calculator.
func (r *Registry) All() map[MetricType]Calculator {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[MetricType]Calculator, len(r.table))
	for t := range r.table {
		calc, err := r.makeLocked(t)
		if err != nil {
			continue
		}
		out[t] = calc
	}
	return out
}
