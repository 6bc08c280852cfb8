// Package store persists profile baseline records in SQLite. The boundary is
// write-mostly: the core flushes aggregated numeric baselines on a schedule
// and only reads them back for the introspection API, never to rebuild
// in-memory state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	velvetotel "github.com/Fayeq-qamar/velvet-app-sub002/internal/otel"
)

var tracer = velvetotel.Tracer("github.com/Fayeq-qamar/velvet-app-sub002/internal/store")

const schema = `
CREATE TABLE IF NOT EXISTS feature_baselines (
    feature TEXT NOT NULL,
    metric TEXT NOT NULL,
    baseline REAL NOT NULL,
    current REAL NOT NULL,
    improvement_rate REAL NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (feature, metric)
);

CREATE INDEX IF NOT EXISTS idx_baselines_updated ON feature_baselines(updated_at);
`

// Store persists baseline records.
type Store struct {
	db *sql.DB
}

// New opens (and initializes) the baseline database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening baseline db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing baseline schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Flush upserts a batch of baseline records in one transaction.
func (s *Store) Flush(ctx context.Context, records []feature.BaselineRecord) error {
	ctx, span := tracer.Start(ctx, "store.flush")
	defer span.End()
	span.SetAttributes(attribute.Int("store.record_count", len(records)))

	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning baseline flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feature_baselines (feature, metric, baseline, current, improvement_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature, metric) DO UPDATE SET
			baseline = excluded.baseline,
			current = excluded.current,
			improvement_rate = excluded.improvement_rate,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing baseline upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.Feature, r.Metric, r.Baseline, r.Current, r.ImprovementRate, updated); err != nil {
			return fmt.Errorf("upserting baseline %s/%s: %w", r.Feature, r.Metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing baseline flush: %w", err)
	}
	return nil
}

// List returns all persisted baseline records, newest first.
func (s *Store) List(ctx context.Context) ([]feature.BaselineRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feature, metric, baseline, current, improvement_rate, updated_at
		FROM feature_baselines
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying baselines: %w", err)
	}
	defer rows.Close()

	var out []feature.BaselineRecord
	for rows.Next() {
		var r feature.BaselineRecord
		if err := rows.Scan(&r.Feature, &r.Metric, &r.Baseline, &r.Current, &r.ImprovementRate, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning baseline row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
