/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the event store with deterministic engagement data for one
  tenant so that every metric has something to show.

AVAILABLE SCENARIOS:
  steady-engagement: 40 beneficiaries, 90 days of regular activity
  new-tenant:        25 beneficiaries, first week of activity only
  dormant:           Enrolled beneficiaries, no events at all

HOW SCENARIOS WORK:
  1. Reset the tenant (beneficiaries, events, snapshots)
  2. Upsert the shared module catalogue
  3. Enroll beneficiaries
  4. Record activations, sessions, module use, articles, shortcuts and
     voucher purchases relative to the handler clock

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "steady-engagement", "tenant_id": "acme"}

NOTE:
  Fast cache entries for the tenant are not evicted. Use ?refresh=true to
  see the new data before they expire.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/metrics-engine/calculators"
	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "steady-engagement",
		Name:        "Steady Engagement",
		Description: "40 beneficiaries with 90 days of sessions, modules, articles and vouchers",
	},
	{
		ID:          "new-tenant",
		Name:        "New Tenant",
		Description: "25 beneficiaries, activity limited to the last 7 days",
	},
	{
		ID:          "dormant",
		Name:        "Dormant Tenant",
		Description: "Enrolled beneficiaries without any engagement",
	},
}

// scenarioShape drives the generator.
type scenarioShape struct {
	beneficiaries int
	days          int
	// every n-th beneficiary is active; 0 means nobody
	activeEvery int
}

var scenarioShapes = map[string]scenarioShape{
	"steady-engagement": {beneficiaries: 40, days: 90, activeEvery: 2},
	"new-tenant":        {beneficiaries: 25, days: 7, activeEvery: 3},
	"dormant":           {beneficiaries: 12, days: 0, activeEvery: 0},
}

// demoModules is the shared module catalogue.
var demoModules = []sqlite.Module{
	{ID: "1", Name: map[string]string{"en-US": "Paid Time Off", "fr-FR": "Congés payés"}},
	{ID: "2", Name: map[string]string{"en-GB": "Wellbeing", "fr-FR": "Bien-être"}},
	{ID: "3", Name: map[string]string{"en": "Vouchers"}},
	{ID: "4", Name: map[string]string{"fr-FR": "Actualités"}},
	{ID: "5", Name: map[string]string{"en-US": "Learning Hub"}},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds a scenario for one tenant.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Scenarios require the SQLite store", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	shape, ok := scenarioShapes[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	tenantID := metric.TenantID(req.TenantID)
	events, err := h.loadScenario(r.Context(), tenantID, shape)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.Logger.Info("scenario loaded",
		"scenario", req.ScenarioID, "tenant_id", tenantID, "events", events)
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		ScenarioID:    req.ScenarioID,
		TenantID:      req.TenantID,
		Beneficiaries: shape.beneficiaries,
		Events:        events,
	})
}

// =============================================================================
// GENERATOR
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, tenantID metric.TenantID, shape scenarioShape) (int, error) {
	if err := h.Store.ResetTenant(ctx, tenantID); err != nil {
		return 0, fmt.Errorf("failed to reset tenant: %w", err)
	}
	for _, m := range demoModules {
		if err := h.Store.SaveModule(ctx, m); err != nil {
			return 0, fmt.Errorf("failed to save module %s: %w", m.ID, err)
		}
	}

	today := metric.StartOfDay(h.Clock.Now())
	start := today.AddDate(0, 0, -shape.days)
	enrolledAt := today.AddDate(0, 0, -shape.days-30)

	for i := 0; i < shape.beneficiaries; i++ {
		b := sqlite.Beneficiary{
			ID:         beneficiaryID(i),
			TenantID:   tenantID,
			Name:       fmt.Sprintf("Beneficiary %d", i+1),
			EnrolledAt: enrolledAt,
		}
		if err := h.Store.SaveBeneficiary(ctx, b); err != nil {
			return 0, fmt.Errorf("failed to save beneficiary: %w", err)
		}
	}

	events := generateEvents(tenantID, shape, start)
	if len(events) == 0 {
		return 0, nil
	}
	if err := h.Store.RecordEvents(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// generateEvents is deterministic for a given shape and start day.
func generateEvents(tenantID metric.TenantID, shape scenarioShape, start time.Time) []sqlite.Event {
	if shape.activeEvery == 0 || shape.days == 0 {
		return nil
	}

	var events []sqlite.Event
	add := func(i int, kind calculators.EventKind, subject string, value float64, at time.Time) {
		events = append(events, sqlite.Event{
			TenantID:      tenantID,
			BeneficiaryID: beneficiaryID(i),
			Kind:          kind,
			Subject:       subject,
			Value:         value,
			OccurredAt:    at,
		})
	}

	for i := 0; i < shape.beneficiaries; i += shape.activeEvery {
		// activations are spread over the first days of the range
		activated := start.AddDate(0, 0, i%shape.days).Add(9 * time.Hour)
		add(i, calculators.KindActivation, "", 0, activated)

		for d := i % shape.days; d < shape.days; d++ {
			if (i+d)%3 == 2 {
				continue
			}
			day := start.AddDate(0, 0, d)
			at := day.Add(time.Duration(8+(i+d)%10) * time.Hour)

			subject := ""
			if (i*7+d)%5 == 0 {
				subject = calculators.SubjectBounce
			}
			add(i, calculators.KindSession, subject, float64(3+(i*d)%25), at)

			module := demoModules[(i+d)%len(demoModules)]
			add(i, calculators.KindModuleUse, module.ID, 1, at.Add(2*time.Minute))

			if (i+d)%2 == 0 {
				add(i, calculators.KindArticleView, fmt.Sprintf("article-%d", d%12), 1, at.Add(5*time.Minute))
			}
			if (i+d)%4 == 0 {
				add(i, calculators.KindArticleReaction, "like", 1, at.Add(6*time.Minute))
			}
			if (i+d)%3 == 0 {
				add(i, calculators.KindShortcutClick, "home", 1, at.Add(time.Minute))
			}
			if (i*3+d)%11 == 0 {
				add(i, calculators.KindVoucherPurchase, "voucher", float64(1500+(i*d)%40*125), at.Add(10*time.Minute))
			}
		}
	}
	return events
}

func beneficiaryID(i int) string {
	return fmt.Sprintf("ben-%03d", i+1)
}
