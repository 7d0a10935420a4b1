package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/metrics-engine/calculators"
	"github.com/warp/metrics-engine/metric"
)

// =============================================================================
// RECORDS
// =============================================================================

// Event is one engagement event.
type Event struct {
	ID            string
	TenantID      metric.TenantID
	BeneficiaryID string
	Kind          calculators.EventKind
	Subject       string
	Value         float64
	OccurredAt    time.Time
}

// Beneficiary is an enrolled beneficiary of a tenant.
type Beneficiary struct {
	ID         string
	TenantID   metric.TenantID
	Name       string
	EnrolledAt time.Time
}

// Module is a catalogue entry with localized names.
type Module struct {
	ID   string
	Name map[string]string
}

// RecordEvent appends an event. An empty ID is generated.
func (s *Store) RecordEvent(ctx context.Context, e Event) error {
	return s.RecordEvents(ctx, []Event{e})
}

// RecordEvents appends events atomically.
func (s *Store) RecordEvents(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTS(time.Now())
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO engagement_events
			(id, financer_id, beneficiary_id, kind, subject, value, occurred_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, string(e.TenantID), e.BeneficiaryID, string(e.Kind), e.Subject, e.Value, formatTS(e.OccurredAt), now)
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}
	}
	return tx.Commit()
}

// SaveBeneficiary inserts or updates a beneficiary.
func (s *Store) SaveBeneficiary(ctx context.Context, b Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO beneficiaries (id, financer_id, name, enrolled_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(financer_id, id) DO UPDATE SET
			name = excluded.name,
			enrolled_at = excluded.enrolled_at
	`, b.ID, string(b.TenantID), b.Name, formatTS(b.EnrolledAt), formatTS(time.Now()))
	return err
}

// SaveModule inserts or updates a module.
func (s *Store) SaveModule(ctx context.Context, m Module) error {
	names, err := json.Marshal(m.Name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO modules (id, name_json, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name_json = excluded.name_json
	`, m.ID, string(names), formatTS(time.Now()))
	return err
}

// =============================================================================
// EVENT SOURCE (calculators.EventSource)
// =============================================================================

func aggregateExpr(agg calculators.Aggregation) (string, error) {
	switch agg {
	case calculators.AggCount, "":
		return "COUNT(*)", nil
	case calculators.AggDistinct:
		return "COUNT(DISTINCT beneficiary_id)", nil
	case calculators.AggSum:
		return "COALESCE(SUM(value), 0)", nil
	case calculators.AggAvg:
		return "COALESCE(AVG(value), 0)", nil
	default:
		return "", fmt.Errorf("unsupported aggregation %q", agg)
	}
}

// where builds the shared filter for one tenant, kind and range.
func where(tenantID metric.TenantID, rng metric.DateRange, q calculators.Query) (string, []any) {
	clause := "financer_id = ? AND kind = ? AND occurred_at >= ? AND occurred_at <= ?"
	args := []any{string(tenantID), string(q.Kind), formatTS(rng.From), formatTS(rng.To)}
	if q.Subject != "" {
		clause += " AND subject = ?"
		args = append(args, q.Subject)
	}
	return clause, args
}

// Daily aggregates events per UTC day. Days without events are omitted.
func (s *Store) Daily(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, q calculators.Query) ([]metric.DailyPoint, error) {
	expr, err := aggregateExpr(q.Agg)
	if err != nil {
		return nil, err
	}
	clause, args := where(tenantID, rng, q)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(occurred_at, 1, 10) AS day, `+expr+`
		FROM engagement_events
		WHERE `+clause+`
		GROUP BY day
		ORDER BY day
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily %s: %w", q.Kind, err)
	}
	defer rows.Close()

	var points []metric.DailyPoint
	for rows.Next() {
		var p metric.DailyPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Total aggregates events over the whole range.
func (s *Store) Total(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, q calculators.Query) (float64, error) {
	expr, err := aggregateExpr(q.Agg)
	if err != nil {
		return 0, err
	}
	clause, args := where(tenantID, rng, q)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	err = s.db.QueryRowContext(ctx, `SELECT `+expr+` FROM engagement_events WHERE `+clause, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to query total %s: %w", q.Kind, err)
	}
	return total, nil
}

// Breakdown counts events per day and subject.
func (s *Store) Breakdown(ctx context.Context, tenantID metric.TenantID, rng metric.DateRange, kind calculators.EventKind) ([]metric.DailyPoint, error) {
	clause, args := where(tenantID, rng, calculators.Query{Kind: kind})

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(occurred_at, 1, 10) AS day, subject, COUNT(*)
		FROM engagement_events
		WHERE `+clause+`
		GROUP BY day, subject
		ORDER BY day, subject
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s breakdown: %w", kind, err)
	}
	defer rows.Close()

	var points []metric.DailyPoint
	for rows.Next() {
		var (
			day, subject string
			n            float64
		)
		if err := rows.Scan(&day, &subject, &n); err != nil {
			return nil, err
		}
		if len(points) == 0 || points[len(points)-1].Date != day {
			points = append(points, metric.DailyPoint{Date: day, Breakdown: map[string]float64{}})
		}
		last := &points[len(points)-1]
		last.Breakdown[subject] = n
		last.Value += n
	}
	return points, rows.Err()
}

// Beneficiaries counts the tenant's enrolled beneficiaries.
func (s *Store) Beneficiaries(ctx context.Context, tenantID metric.TenantID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM beneficiaries WHERE financer_id = ?", string(tenantID),
	).Scan(&n)
	return n, err
}

// ActivatedBefore counts distinct beneficiaries activated strictly before at.
func (s *Store) ActivatedBefore(ctx context.Context, tenantID metric.TenantID, at time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT beneficiary_id)
		FROM engagement_events
		WHERE financer_id = ? AND kind = ? AND occurred_at < ?
	`, string(tenantID), string(calculators.KindActivation), formatTS(at)).Scan(&n)
	return n, err
}

// Modules returns the module catalogue ordered by id.
func (s *Store) Modules(ctx context.Context) ([]metric.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name_json FROM modules ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []metric.Category
	for rows.Next() {
		var (
			c     metric.Category
			names string
		)
		if err := rows.Scan(&c.ID, &names); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(names), &c.Name); err != nil {
			return nil, fmt.Errorf("module %s: bad name_json: %w", c.ID, err)
		}
		mods = append(mods, c)
	}
	return mods, rows.Err()
}
