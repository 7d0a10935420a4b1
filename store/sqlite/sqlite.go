/*
Package sqlite provides the SQLite-backed durable store.

PURPOSE:
  Holds the two things that outlive a process: pre-aggregated metric
  snapshots (the cascade's tier 2) and the engagement events the reference
  calculators aggregate over. In production the same schema runs on a
  server database; only SQL dialect details differ.

INTERFACES IMPLEMENTED:
  metric.SnapshotStore:     LatestSnapshot
  metric.SnapshotWriter:    SaveSnapshot
  calculators.EventSource:  Daily, Total, Breakdown, Beneficiaries, ...

KEY TABLES:
  financer_metrics:   Snapshots, one row per aggregation run
  beneficiaries:      Enrolled beneficiaries per tenant
  engagement_events:  Append-only engagement log
  modules:            Module catalogue with localized names

TIMESTAMPS:
  Stored as fixed-width UTC text (see tsLayout) so that range filters and
  ORDER BY can compare strings, and the first 10 characters are the day.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to
  a single connection, since each new connection would open an empty one.

USAGE:
  store, err := sqlite.New("./data/metrics.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  cascade := &metric.Cascade{Snapshots: store, ...}

SEE ALSO:
  - metric/store.go: Snapshot contracts
  - calculators/source.go: EventSource contract
  - metric/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/metrics-engine/metric"
)

// tsLayout is fixed width, unlike time.RFC3339Nano.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the durable snapshot store and the event source.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	Logger *slog.Logger
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, Logger: slog.Default()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Pre-aggregated snapshots (written by the aggregation job)
	CREATE TABLE IF NOT EXISTS financer_metrics (
		id TEXT PRIMARY KEY,
		financer_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		period TEXT NOT NULL,
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Latest snapshot lookup (hot path on fast-cache miss)
	CREATE INDEX IF NOT EXISTS idx_financer_metrics_lookup
		ON financer_metrics(financer_id, metric, period, updated_at DESC);

	-- Beneficiaries
	CREATE TABLE IF NOT EXISTS beneficiaries (
		id TEXT NOT NULL,
		financer_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		enrolled_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (financer_id, id)
	);

	-- Engagement events (append-only)
	CREATE TABLE IF NOT EXISTS engagement_events (
		id TEXT PRIMARY KEY,
		financer_id TEXT NOT NULL,
		beneficiary_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		value REAL NOT NULL DEFAULT 0,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_financer_kind_time
		ON engagement_events(financer_id, kind, occurred_at);

	-- Modules
	CREATE TABLE IF NOT EXISTS modules (
		id TEXT PRIMARY KEY,
		name_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT STORE (metric.SnapshotStore, metric.SnapshotWriter)
// =============================================================================

// SaveSnapshot appends a snapshot row. A zero UpdatedAt means now.
func (s *Store) SaveSnapshot(ctx context.Context, snap metric.Snapshot) error {
	if !snap.Metric.Valid() {
		return &metric.UnknownMetricTypeError{Type: string(snap.Metric)}
	}
	data, err := metric.EncodeRaw(snap.Data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO financer_metrics (id, financer_id, metric, period, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(),
		string(snap.TenantID),
		snap.Metric.StoreName(),
		string(snap.Period),
		string(data),
		formatTS(now),
		formatTS(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently updated snapshot, or nil when none
// exists. A row that cannot be decoded is logged and reported as absent.
func (s *Store) LatestSnapshot(ctx context.Context, tenantID metric.TenantID, metricType metric.MetricType, period metric.Period) (*metric.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT data_json, updated_at
		FROM financer_metrics
		WHERE financer_id = ? AND metric = ? AND period = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, string(tenantID), metricType.StoreName(), string(period)).Scan(&data, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	raw, err := metric.DecodeRaw([]byte(data))
	if err != nil {
		s.logger().Warn("discarding undecodable snapshot",
			"tenant_id", tenantID, "metric_type", metricType, "period", period, "error", err)
		return nil, nil
	}
	ts, err := parseTS(updatedAt)
	if err != nil {
		s.logger().Warn("discarding snapshot with bad updated_at",
			"tenant_id", tenantID, "metric_type", metricType, "period", period, "updated_at", updatedAt, "error", err)
		return nil, nil
	}

	return &metric.Snapshot{
		TenantID:  tenantID,
		Metric:    metricType,
		Period:    period,
		Data:      raw,
		UpdatedAt: ts,
	}, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// ListTenants returns every tenant with beneficiaries or events.
func (s *Store) ListTenants(ctx context.Context) ([]metric.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT financer_id FROM beneficiaries
		UNION
		SELECT financer_id FROM engagement_events
		ORDER BY financer_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []metric.TenantID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, metric.TenantID(id))
	}
	return tenants, rows.Err()
}

// ResetTenant removes a tenant's beneficiaries, events and snapshots.
func (s *Store) ResetTenant(ctx context.Context, tenantID metric.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"engagement_events", "beneficiaries", "financer_metrics"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE financer_id = ?", string(tenantID)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"engagement_events", "beneficiaries", "modules", "financer_metrics"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err == nil {
		return t, nil
	}
	// rows written by other producers
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}
