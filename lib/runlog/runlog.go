// Package runlog journals per-identifier scrape outcomes in sqlite.
// The journal is what makes the retry-missing pass possible: after a
// run, any identifier in the requested range with no successful
// outcome row is a candidate for re-processing.
package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
)

//go:embed schema.sql
var schema string

// Outcome is one identifier's terminal state for one attempt.
type Outcome struct {
	Identifier stf.CaseIdentifier
	OK         bool
	// Error is empty on success.
	Error    string
	Retries  int
	Duration time.Duration
	// FinishedAt is stored as RFC 3339 UTC.
	FinishedAt time.Time
}

// Summary aggregates a journal over a run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Store is a sqlite-backed journal. ":memory:" works for tests.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one outcome row. Outcomes are append-only; a retry
// pass writes a new row rather than updating the failed one, so the
// full history of a run stays inspectable.
func (s *Store) Record(ctx context.Context, o Outcome) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO case_outcome (classe, processo_id, ok, error, retries, duration_ms, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.Identifier.Class,
		o.Identifier.Number,
		boolToInt(o.OK),
		o.Error,
		o.Retries,
		o.Duration.Milliseconds(),
		o.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", o.Identifier, err)
	}
	return nil
}

// Missing returns the identifiers in r with no successful outcome
// row, in ascending number order.
func (s *Store) Missing(ctx context.Context, r stf.Range) ([]stf.CaseIdentifier, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT processo_id FROM case_outcome
WHERE classe = ? AND processo_id BETWEEN ? AND ? AND ok = 1`,
		r.Class, r.First, r.Last,
	)
	if err != nil {
		return nil, fmt.Errorf("query successful outcomes: %w", err)
	}
	defer rows.Close()

	succeeded := map[int]bool{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		succeeded[n] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome rows: %w", err)
	}

	var missing []stf.CaseIdentifier
	for _, id := range r.Identifiers() {
		if !succeeded[id.Number] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Summary counts distinct identifiers by their best outcome: an
// identifier that failed and then succeeded on a retry pass counts as
// succeeded.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*),
    COALESCE(SUM(ok), 0)
FROM (
    SELECT classe, processo_id, MAX(ok) AS ok
    FROM case_outcome
    GROUP BY classe, processo_id
)`)

	var sum Summary
	if err := row.Scan(&sum.Total, &sum.Succeeded); err != nil {
		return Summary{}, fmt.Errorf("summarize journal: %w", err)
	}
	sum.Failed = sum.Total - sum.Succeeded
	return sum, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
