package database

import (
	"time"

	"rana-image-tool/internal/domain/batch"
)

// RunRecord is one row of batch_runs
type RunRecord struct {
	RunID        string        `json:"run_id" db:"run_id"`
	Label        string        `json:"label" db:"label"`
	Root         string        `json:"root" db:"root"`
	Total        int           `json:"total" db:"total"`
	Succeeded    int           `json:"succeeded" db:"succeeded"`
	Failed       int           `json:"failed" db:"failed"`
	PeakInFlight int           `json:"peak_in_flight" db:"peak_in_flight"`
	StartedAt    time.Time     `json:"started_at" db:"started_at"`
	Duration     time.Duration `json:"duration" db:"duration_ms"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// ExitCode is the exit code the run finished with.
func (r *RunRecord) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// newRunRecord maps a finished batch onto its ledger row.
func newRunRecord(s *batch.Summary) *RunRecord {
	return &RunRecord{
		RunID:        s.RunID,
		Label:        s.Label,
		Root:         s.Root,
		Total:        s.Total,
		Succeeded:    s.Succeeded,
		Failed:       s.Failed(),
		PeakInFlight: s.PeakInFlight,
		StartedAt:    s.StartedAt,
		Duration:     s.Duration,
	}
}

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// DefaultPagination returns the default listing window
func DefaultPagination() PaginationParams {
	return PaginationParams{Limit: 20, Offset: 0}
}

func (p PaginationParams) normalize() PaginationParams {
	if p.Limit <= 0 {
		p.Limit = DefaultPagination().Limit
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
