/*
Package service is the caller-facing entry point of the metrics engine.

CONTROL FLOW:
  GetMetric:
    1. Validate metric type (closed enumeration, then registry)
    2. Validate period, then resolve it (custom bounds checked here)
    3. Cascade.Get (fast cache -> durable snapshot -> live)
    4. Normalizer.Transform, fresh on every call

  GetDashboard follows the same path for the fixed dashboard subset. A
  single failing metric fails the whole dashboard.

ERRORS:
  Bad input surfaces as metric.ErrInvalidMetricType, ErrInvalidPeriod or
  ErrInvalidCustomRange (see metric.IsClientError). Everything else comes
  from calculators or cache backends and is returned as is.
*/
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/present"
)

// MetricQuery holds the caller's parameters for one metric. An empty Period
// means metric.DefaultPeriod. From and To are only read for custom periods.
type MetricQuery struct {
	Period       string
	From         *time.Time
	To           *time.Time
	ForceRefresh bool
}

// MetricResult is a presented metric with the range it was computed for.
type MetricResult struct {
	Type   metric.MetricType
	Period metric.Period
	Range  metric.DateRange
	Metric present.PresentedMetric
}

// DashboardResult holds the dashboard metrics in display order.
type DashboardResult struct {
	Period  metric.Period
	Range   metric.DateRange
	Metrics []MetricResult
}

// =============================================================================
// SERVICE
// =============================================================================

type MetricService struct {
	resolver   *metric.PeriodResolver
	cascade    *metric.Cascade
	normalizer *present.Normalizer
	logger     *slog.Logger
}

func New(resolver *metric.PeriodResolver, cascade *metric.Cascade, normalizer *present.Normalizer, logger *slog.Logger) *MetricService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricService{
		resolver:   resolver,
		cascade:    cascade,
		normalizer: normalizer,
		logger:     logger,
	}
}

// SupportedMetrics returns the metric types the registry can serve.
func (s *MetricService) SupportedMetrics() []metric.MetricType {
	return s.cascade.Registry.Types()
}

// GetMetric returns one presented metric for a tenant.
func (s *MetricService) GetMetric(ctx context.Context, tenantID metric.TenantID, metricType string, q MetricQuery) (*MetricResult, error) {
	mt, err := metric.ParseMetricType(metricType)
	if err != nil {
		return nil, err
	}
	if !s.cascade.Registry.Supports(mt) {
		return nil, &metric.UnknownMetricTypeError{Type: metricType}
	}
	period, rng, err := s.resolve(q)
	if err != nil {
		return nil, err
	}

	raw, err := s.cascade.Get(ctx, tenantID, mt, rng, period, q.ForceRefresh)
	if err != nil {
		s.logger.Error("metric retrieval failed",
			"tenant_id", tenantID, "metric_type", mt, "period", period, "error", err)
		return nil, err
	}

	return &MetricResult{
		Type:   mt,
		Period: period,
		Range:  rng,
		Metric: s.normalizer.Transform(mt, raw),
	}, nil
}

// GetDashboard returns the dashboard metrics for a tenant. ForceRefresh is ignored.
func (s *MetricService) GetDashboard(ctx context.Context, tenantID metric.TenantID, q MetricQuery) (*DashboardResult, error) {
	period, rng, err := s.resolve(q)
	if err != nil {
		return nil, err
	}

	raws, err := s.cascade.Dashboard(ctx, tenantID, rng, period)
	if err != nil {
		s.logger.Error("dashboard retrieval failed",
			"tenant_id", tenantID, "period", period, "error", err)
		return nil, err
	}

	out := &DashboardResult{Period: period, Range: rng}
	for _, mt := range metric.DashboardMetrics {
		out.Metrics = append(out.Metrics, MetricResult{
			Type:   mt,
			Period: period,
			Range:  rng,
			Metric: s.normalizer.Transform(mt, raws[mt]),
		})
	}
	return out, nil
}

func (s *MetricService) resolve(q MetricQuery) (metric.Period, metric.DateRange, error) {
	period, err := metric.ParsePeriod(q.Period)
	if err != nil {
		return "", metric.DateRange{}, err
	}
	rng, err := s.resolver.Resolve(period, q.From, q.To)
	if err != nil {
		return "", metric.DateRange{}, err
	}
	return period, rng, nil
}
