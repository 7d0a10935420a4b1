/*
errors.go - Error taxonomy for the metric engine

ERROR CATEGORIES:
  1. Bad input - unknown metric type, unknown period, broken custom range.
     Surfaced directly to the caller, never retried.
  2. Everything else - calculator failures, cache/store connectivity.
     Propagated verbatim; the engine does not translate or retry them.

USAGE:
  if metric.IsClientError(err) {
      // 4xx
  }

SEE ALSO:
  - api/handlers.go: Maps the categories to HTTP status codes
*/
package metric

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidMetricType is returned when a metric identifier is not registered.
	ErrInvalidMetricType = errors.New("invalid metric type")

	// ErrInvalidPeriod is returned when a period token is not in the closed set.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidCustomRange is returned when a custom period has missing or
	// inverted bounds.
	ErrInvalidCustomRange = errors.New("invalid custom range")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownMetricTypeError names the metric type that failed validation.
type UnknownMetricTypeError struct {
	Type string
}

func (e *UnknownMetricTypeError) Error() string {
	return fmt.Sprintf("unknown metric type %q", e.Type)
}

func (e *UnknownMetricTypeError) Unwrap() error { return ErrInvalidMetricType }

// InvalidPeriodError names the period token that failed validation.
type InvalidPeriodError struct {
	Period string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q (expected one of 7d, 30d, 3m, 6m, 12m, custom)", e.Period)
}

func (e *InvalidPeriodError) Unwrap() error { return ErrInvalidPeriod }

// CustomRangeError describes why custom bounds were rejected.
type CustomRangeError struct {
	From   *time.Time
	To     *time.Time
	Reason string
}

func (e *CustomRangeError) Error() string {
	return "invalid custom range: " + e.Reason
}

func (e *CustomRangeError) Unwrap() error { return ErrInvalidCustomRange }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidMetricType) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidCustomRange)
}
