/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The presented metric
  itself comes from package present; these types add the request context
  (tenant, period, resolved range) around it.

NAMING CONVENTION:
  - *Response: Response wrappers returned to clients
  - *Request: Request body types from clients
  - *DTO: Listing entries

SEE ALSO:
  - handlers.go: Uses these types
  - present/present.go: PresentedMetric
*/
package api

import (
	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/present"
	"github.com/warp/metrics-engine/service"
)

// =============================================================================
// METRICS
// =============================================================================

// MetricResponse is one presented metric with its resolved range.
type MetricResponse struct {
	Type   string                  `json:"type"`
	Period string                  `json:"period"`
	From   string                  `json:"from"`
	To     string                  `json:"to"`
	Metric present.PresentedMetric `json:"metric"`
}

// DashboardResponse holds the dashboard metrics in display order.
type DashboardResponse struct {
	TenantID string           `json:"tenant_id"`
	Period   string           `json:"period"`
	From     string           `json:"from"`
	To       string           `json:"to"`
	Metrics  []MetricResponse `json:"metrics"`
}

// MetricTypesResponse lists the metric types the server can compute.
type MetricTypesResponse struct {
	Metrics   []string `json:"metrics"`
	Dashboard []string `json:"dashboard"`
	Periods   []string `json:"periods"`
}

func toMetricResponse(r service.MetricResult) MetricResponse {
	return MetricResponse{
		Type:   r.Type.String(),
		Period: r.Period.String(),
		From:   r.Range.From.Format(metric.DateLayout),
		To:     r.Range.To.Format(metric.DateLayout),
		Metric: r.Metric,
	}
}

func toDashboardResponse(tenantID metric.TenantID, r *service.DashboardResult) DashboardResponse {
	out := DashboardResponse{
		TenantID: string(tenantID),
		Period:   r.Period.String(),
		From:     r.Range.From.Format(metric.DateLayout),
		To:       r.Range.To.Format(metric.DateLayout),
		Metrics:  make([]MetricResponse, 0, len(r.Metrics)),
	}
	for _, m := range r.Metrics {
		out.Metrics = append(out.Metrics, toMetricResponse(m))
	}
	return out
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario and the tenant to seed.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
	TenantID   string `json:"tenant_id" validate:"required,max=64"`
}

// LoadScenarioResponse reports what was seeded.
type LoadScenarioResponse struct {
	ScenarioID    string `json:"scenario_id"`
	TenantID      string `json:"tenant_id"`
	Beneficiaries int    `json:"beneficiaries"`
	Events        int    `json:"events"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
