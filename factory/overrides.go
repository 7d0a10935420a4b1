/*
Package factory builds the calculator registration table from configuration.

PURPOSE:
  The registry ships with a default type -> implementation table. An
  operator may replace it wholesale with an override table kept in a TOML
  file, e.g. to switch a metric to NullCalculator without a deploy.

FILE FORMAT:
  [calculators]
  "activation-rate" = "ActivationRateCalculator"
  "session-time"    = "NullCalculator"

VALIDATION:
  Entries are checked one by one. An entry is rejected (and logged) when:
    - the key is not a known metric type
    - the implementation name does not exist
    - the implementation cannot serve that metric type
  If nothing survives validation, the default table is used.

USAGE:
  overrides, err := factory.LoadOverrides(cfg.Calculators.OverridesFile)
  regs := factory.BuildRegistrations(
      calculators.DefaultRegistrations(src, ttl),
      calculators.Implementations(src, ttl),
      overrides, logger)
  registry := metric.NewRegistry(regs, logger)

SEE ALSO:
  - metric/registry.go: Consumes the registration table
  - calculators/catalog.go: Default table and implementation names
*/
package factory

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/warp/metrics-engine/metric"
)

// =============================================================================
// FILE SCHEMA
// =============================================================================

// OverridesFile is the TOML representation of the override table.
type OverridesFile struct {
	Calculators map[string]string `toml:"calculators"`
}

// ParseOverrides decodes an override table. A document without a
// [calculators] table yields an empty map.
func ParseOverrides(data []byte) (map[string]string, error) {
	var f OverridesFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calculator overrides: %w", err)
	}
	if f.Calculators == nil {
		return map[string]string{}, nil
	}
	return f.Calculators, nil
}

// LoadOverrides reads an override file. An empty path means no overrides.
func LoadOverrides(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calculator overrides: %w", err)
	}
	return ParseOverrides(data)
}

// =============================================================================
// VALIDATION
// =============================================================================

// Rejection describes an override entry that was dropped.
type Rejection struct {
	Key            string
	Implementation string
	Reason         string
}

// ValidateOverrides splits the override table into accepted registrations
// and rejected entries. Output is sorted by key.
func ValidateOverrides(overrides map[string]string, impls map[string]metric.Implementation) ([]metric.Registration, []Rejection) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		regs     []metric.Registration
		rejected []Rejection
	)
	for _, key := range keys {
		name := overrides[key]
		mt, err := metric.ParseMetricType(key)
		if err != nil {
			rejected = append(rejected, Rejection{Key: key, Implementation: name, Reason: "unknown metric type"})
			continue
		}
		impl, ok := impls[name]
		if !ok || impl.New == nil {
			rejected = append(rejected, Rejection{Key: key, Implementation: name, Reason: "unknown implementation"})
			continue
		}
		if !impl.Serves(mt) {
			rejected = append(rejected, Rejection{Key: key, Implementation: name, Reason: "implementation does not serve metric type"})
			continue
		}
		newFn := impl.New
		regs = append(regs, metric.Registration{
			Type: mt,
			New:  func() metric.Calculator { return newFn(mt) },
		})
	}
	return regs, rejected
}

// BuildRegistrations returns the validated override table, or defaults when
// no override is configured or none of its entries is valid.
func BuildRegistrations(defaults []metric.Registration, impls map[string]metric.Implementation, overrides map[string]string, logger *slog.Logger) []metric.Registration {
	if logger == nil {
		logger = slog.Default()
	}
	if len(overrides) == 0 {
		return defaults
	}

	regs, rejected := ValidateOverrides(overrides, impls)
	for _, r := range rejected {
		logger.Warn("rejecting calculator override",
			"metric_type", r.Key,
			"implementation", r.Implementation,
			"reason", r.Reason)
	}
	if len(regs) == 0 {
		logger.Warn("calculator override table is empty after validation, using defaults",
			"rejected", len(rejected))
		return defaults
	}

	logger.Info("using calculator override table", "entries", len(regs), "rejected", len(rejected))
	return regs
}
