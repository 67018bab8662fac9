package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// runRepo implements RunRepo with squirrel-built queries.
type runRepo struct {
	db *sql.DB
}

var runColumns = []string{
	"run_id", "started_at", "duration_ms", "status", "fatal_reason", "dry_run",
	"requested", "generated", "approved", "rejected", "duplicates", "inserted", "failed", "cost_usd",
}

func (r *runRepo) SaveRun(ctx context.Context, rec RunRecord) error {
	_, err := sq.Insert(tableRuns).
		Columns(runColumns...).
		Values(
			rec.RunID, rec.StartedAt.UTC(), rec.DurationMs, rec.Status, rec.FatalReason, rec.DryRun,
			rec.Requested, rec.Generated, rec.Approved, rec.Rejected, rec.Duplicates, rec.Inserted, rec.Failed, rec.CostUSD,
		).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

func (r *runRepo) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := sq.Select(runColumns...).
		From(tableRuns).
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := q.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.RunID, &rec.StartedAt, &rec.DurationMs, &rec.Status, &rec.FatalReason, &rec.DryRun,
			&rec.Requested, &rec.Generated, &rec.Approved, &rec.Rejected, &rec.Duplicates, &rec.Inserted, &rec.Failed, &rec.CostUSD,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
