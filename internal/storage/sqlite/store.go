package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/August26/proxyprobe/internal/model"
	"github.com/August26/proxyprobe/internal/storage"
)

// SQLiteStore implements the storage.ReportStore interface for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ storage.ReportStore = (*SQLiteStore)(nil)

// New opens (or creates) the database file and runs migrations.
func New(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	target       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	working      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC);

CREATE TABLE IF NOT EXISTS outcomes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	proxy        TEXT NOT NULL,
	scheme       TEXT NOT NULL,
	status       TEXT NOT NULL,
	http_code    INTEGER,
	error        TEXT,
	latency_ms   INTEGER NOT NULL,
	ip           TEXT,
	anonymity    TEXT,
	country      TEXT,
	city         TEXT,
	isp          TEXT,
	attempts     INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes (run_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveReport stores the run and all of its outcomes in one transaction.
func (s *SQLiteStore) SaveReport(ctx context.Context, report model.ProbeReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	runQuery := `INSERT INTO runs (id, target, started_at, duration_ms, total, working) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, runQuery,
		report.RunID,
		report.Target,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.Duration.Milliseconds(),
		len(report.All),
		len(report.Working),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO outcomes (run_id, proxy, scheme, status, http_code, error, latency_ms, ip, anonymity, country, city, isp, attempts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.All {
		if _, err := stmt.ExecContext(ctx,
			report.RunID,
			o.Endpoint.String(),
			string(o.Endpoint.Scheme),
			o.Status.String(),
			o.HTTPCode,
			o.Message,
			o.Latency.Milliseconds(),
			o.ObservedIP,
			o.Anonymity,
			o.Geo.Country,
			o.Geo.City,
			o.Geo.ISP,
			o.Attempts,
		); err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", o.Endpoint, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*storage.RunSummary, error) {
	query := `SELECT id, target, started_at, duration_ms, total, working FROM runs WHERE id = ?`
	var r storage.RunSummary
	var startedAtStr string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Target, &startedAtStr, &r.DurationMs, &r.Total, &r.Working)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAtStr)
	return &r, nil
}

// ListOutcomes returns the outcomes of a run in the order they were recorded.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]storage.StoredOutcome, error) {
	query := `
SELECT run_id, proxy, scheme, status, http_code, error, latency_ms, ip, anonymity, country, city, isp, attempts
FROM outcomes WHERE run_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var out []storage.StoredOutcome
	for rows.Next() {
		var o storage.StoredOutcome
		if err := rows.Scan(&o.RunID, &o.Proxy, &o.Scheme, &o.Status, &o.HTTPCode, &o.Error, &o.LatencyMs, &o.IP, &o.Anonymity, &o.Geo.Country, &o.Geo.City, &o.Geo.ISP, &o.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
