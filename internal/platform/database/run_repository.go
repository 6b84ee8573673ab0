package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rana-image-tool/internal/domain/batch"
)

// RunRepository is the batch run ledger
type RunRepository interface {
	// RecordRun stores a finished batch and its failures in one transaction.
	RecordRun(ctx context.Context, summary *batch.Summary) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	RecentRuns(ctx context.Context, pagination PaginationParams) ([]*RunRecord, error)
	Failures(ctx context.Context, runID string) ([]batch.Failure, error)
	Count(ctx context.Context) (int, error)
}

// runRepository implements RunRepository
type runRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository
func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

const runColumns = `run_id, label, root, total, succeeded, failed, peak_in_flight,
	started_at, duration_ms, created_at`

// RecordRun inserts the run row and bulk-copies its failures
func (r *runRepository) RecordRun(ctx context.Context, summary *batch.Summary) error {
	rec := newRunRecord(summary)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_runs (
			run_id, label, root, total, succeeded, failed,
			peak_in_flight, started_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.RunID,
		rec.Label,
		rec.Root,
		rec.Total,
		rec.Succeeded,
		rec.Failed,
		rec.PeakInFlight,
		rec.StartedAt,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch run: %w", err)
	}

	if len(summary.Failures) > 0 {
		if err := copyFailures(ctx, tx, rec.RunID, summary.Failures); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch run: %w", err)
	}
	return nil
}

func copyFailures(ctx context.Context, tx *sql.Tx, runID string, failures []batch.Failure) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("batch_failures", "run_id", "path", "stage", "cause"))
	if err != nil {
		return fmt.Errorf("failed to prepare failure copy: %w", err)
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx, runID, f.Path, f.Stage.String(), f.Cause); err != nil {
			return fmt.Errorf("failed to copy failure for %s: %w", f.Path, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush failure copy: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var durationMS int64
	err := row.Scan(
		&rec.RunID,
		&rec.Label,
		&rec.Root,
		&rec.Total,
		&rec.Succeeded,
		&rec.Failed,
		&rec.PeakInFlight,
		&rec.StartedAt,
		&durationMS,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

// GetRun retrieves a run by ID
func (r *runRepository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM batch_runs WHERE run_id = $1`

	rec, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch run: %w", err)
	}
	return rec, nil
}

// RecentRuns lists runs newest first
func (r *runRepository) RecentRuns(ctx context.Context, pagination PaginationParams) ([]*RunRecord, error) {
	pagination = pagination.normalize()
	query := `SELECT ` + runColumns + ` FROM batch_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, pagination.Limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // Resource cleanup

	var runs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// Failures returns a run's failures ordered by path
func (r *runRepository) Failures(ctx context.Context, runID string) ([]batch.Failure, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, stage, cause FROM batch_failures
		WHERE run_id = $1
		ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // Resource cleanup

	var failures []batch.Failure
	for rows.Next() {
		var f batch.Failure
		var stage string
		if err := rows.Scan(&f.Path, &stage, &f.Cause); err != nil {
			return nil, err
		}
		if f.Stage, err = batch.ParseStage(stage); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// Count returns the number of recorded runs
func (r *runRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count batch runs: %w", err)
	}
	return n, nil
}
