/*
handlers.go - HTTP API handlers for the metrics engine

PURPOSE:
  Exposes tenant metrics over REST. Handles HTTP request/response and JSON
  serialization, and delegates to service.MetricService.

ENDPOINTS:
  Metrics:
    GET    /api/metrics                                   Supported metric types
    GET    /api/tenants/{tenantID}/metrics/{metricType}   One presented metric
    GET    /api/tenants/{tenantID}/dashboard              Dashboard metrics

  Query parameters (metric and dashboard):
    period   7d, 30d, 3m, 6m, 12m or custom (default 30d)
    from     YYYY-MM-DD, custom period only
    to       YYYY-MM-DD, custom period only
    refresh  true to bypass caches (single metric only)

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Seed demo data for a tenant

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Unknown metric type, invalid period, bad custom range
  - 500: Calculator or cache backend failures

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/service"
	"github.com/warp/metrics-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies of the HTTP layer.
type Handler struct {
	Service  *service.MetricService
	Store    *sqlite.Store
	Clock    metric.Clock
	Logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a handler. store may be nil, which disables scenarios.
func NewHandler(svc *service.MetricService, store *sqlite.Store, clock metric.Clock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = metric.SystemClock{}
	}
	return &Handler{
		Service:  svc,
		Store:    store,
		Clock:    clock,
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// METRIC ENDPOINTS
// =============================================================================

// ListMetrics returns the supported metric types and periods.
func (h *Handler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	resp := MetricTypesResponse{
		Metrics:   []string{},
		Dashboard: make([]string, 0, len(metric.DashboardMetrics)),
		Periods:   make([]string, 0, len(metric.Periods())),
	}
	for _, t := range h.Service.SupportedMetrics() {
		resp.Metrics = append(resp.Metrics, t.String())
	}
	for _, t := range metric.DashboardMetrics {
		resp.Dashboard = append(resp.Dashboard, t.String())
	}
	for _, p := range metric.Periods() {
		resp.Periods = append(resp.Periods, p.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMetric returns one presented metric for a tenant.
func (h *Handler) GetMetric(w http.ResponseWriter, r *http.Request) {
	tenantID := metric.TenantID(chi.URLParam(r, "tenantID"))
	metricType := chi.URLParam(r, "metricType")

	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	result, err := h.Service.GetMetric(r.Context(), tenantID, metricType, q)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setCacheControl(w, result.Period, q.ForceRefresh)
	writeJSON(w, http.StatusOK, toMetricResponse(*result))
}

// GetDashboard returns the dashboard metrics for a tenant.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID := metric.TenantID(chi.URLParam(r, "tenantID"))

	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	result, err := h.Service.GetDashboard(r.Context(), tenantID, q)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setCacheControl(w, result.Period, false)
	writeJSON(w, http.StatusOK, toDashboardResponse(tenantID, result))
}

// =============================================================================
// HELPERS
// =============================================================================

// parseQuery reads period, from, to and refresh. from is taken at the start
// of its day and to at the end of its day.
func parseQuery(r *http.Request) (service.MetricQuery, error) {
	values := r.URL.Query()
	q := service.MetricQuery{Period: values.Get("period")}

	if s := values.Get("from"); s != "" {
		from, err := metric.ParseDate(s)
		if err != nil {
			return q, &metric.CustomRangeError{Reason: fmt.Sprintf("from %q is not a YYYY-MM-DD date", s)}
		}
		from = metric.StartOfDay(from)
		q.From = &from
	}
	if s := values.Get("to"); s != "" {
		to, err := metric.ParseDate(s)
		if err != nil {
			return q, &metric.CustomRangeError{Reason: fmt.Sprintf("to %q is not a YYYY-MM-DD date", s)}
		}
		to = metric.EndOfDay(to)
		q.To = &to
	}
	if s := values.Get("refresh"); s != "" {
		refresh, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("refresh %q is not a boolean", s)
		}
		q.ForceRefresh = refresh
	}
	return q, nil
}

func setCacheControl(w http.ResponseWriter, period metric.Period, forced bool) {
	if forced {
		w.Header().Set("Cache-Control", "no-store")
		return
	}
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(period.CacheTTL()/time.Second)))
}

// writeServiceError maps bad input to 400 and everything else to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	if metric.IsClientError(err) {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to compute metric", err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
