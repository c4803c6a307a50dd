package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stopgraph/internal/catalog"
)

// ErrNoRuns is returned by LatestRun when a target has never been replaced.
var ErrNoRuns = errors.New("no snapshot runs recorded")

const runTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one successful snapshot replace.
type Run struct {
	ID          string
	Operator    string
	Mode        string
	Routes      int
	Stops       int
	Connections int
	ImportedAt  time.Time
}

func (s *Store) recordRun(ctx context.Context, tx *sql.Tx, run Run) error {
	q := s.rebind(`
INSERT INTO snapshot_runs (run_id, operator, mode, route_count, stop_count, connection_count, imported_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, run.ID, run.Operator, run.Mode,
		run.Routes, run.Stops, run.Connections, run.ImportedAt.UTC().Format(runTimeLayout)); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// LatestRun returns the most recent successful snapshot of a target.
func (s *Store) LatestRun(ctx context.Context, t catalog.Target) (Run, error) {
	q := s.rebind(`
SELECT run_id, operator, mode, route_count, stop_count, connection_count, imported_at
FROM snapshot_runs
WHERE operator = ? AND mode = ?
ORDER BY imported_at DESC
LIMIT 1`)
	var run Run
	var importedAt string
	err := s.db.QueryRowContext(ctx, q, t.Operator, t.Mode).Scan(
		&run.ID, &run.Operator, &run.Mode, &run.Routes, &run.Stops, &run.Connections, &importedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%s: %w", t, ErrNoRuns)
		}
		return Run{}, err
	}
	run.ImportedAt, err = time.Parse(runTimeLayout, importedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse imported_at of run %s: %w", run.ID, err)
	}
	return run, nil
}
