package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Outcome values stored in run_outcomes.outcome.
const (
	OutcomeImported = "imported"
	OutcomeSkipped  = "skipped"
	OutcomeErrored  = "errored"
)

// Run represents one sync run.
type Run struct {
	ID               int64
	StartedAt        time.Time
	FinishedAt       time.Time
	RegistryTitle    string
	Imported         int
	Skipped          int
	Errored          int
	Pruned           int
	ReconcilePages   int
	ReconcilePartial bool
	DryRun           bool
	AbortMessage     string
}

// Outcome represents the terminal outcome of one record in a run.
type Outcome struct {
	ExternalID  string
	Description string
	Outcome     string
	Reason      string
}

// RunHistory manages run history operations.
type RunHistory struct {
	conn *Connection
}

// NewRunHistory creates a new RunHistory instance.
func NewRunHistory(conn *Connection) *RunHistory {
	return &RunHistory{conn: conn}
}

// RecordRun stores a run and its outcomes in one transaction and returns the
// run id.
func (h *RunHistory) RecordRun(ctx context.Context, run Run, outcomes []Outcome) (int64, error) {
	var runID int64

	err := h.conn.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO sync_runs (
				started_at, finished_at, registry_title,
				imported, skipped, errored, pruned,
				reconcile_pages, reconcile_partial, dry_run, abort_message
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			formatTime(run.StartedAt),
			formatTime(run.FinishedAt),
			run.RegistryTitle,
			run.Imported,
			run.Skipped,
			run.Errored,
			run.Pruned,
			run.ReconcilePages,
			run.ReconcilePartial,
			run.DryRun,
			run.AbortMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		runID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get run id: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_outcomes (run_id, external_id, description, outcome, reason)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare outcome insert: %w", err)
		}
		defer stmt.Close()

		for _, o := range outcomes {
			if _, err := stmt.ExecContext(ctx, runID, o.ExternalID, o.Description, o.Outcome, o.Reason); err != nil {
				return fmt.Errorf("failed to insert outcome for %q: %w", o.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}

	return runID, nil
}

const runColumns = `
	id, started_at, finished_at, registry_title,
	imported, skipped, errored, pruned,
	reconcile_pages, reconcile_partial, dry_run, abort_message
`

// GetRun retrieves a run by id. Returns nil if it does not exist.
func (h *RunHistory) GetRun(ctx context.Context, id int64) (*Run, error) {
	run, err := scanRun(h.conn.QueryRow(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LastRun retrieves the most recent run. Returns nil if there is none.
func (h *RunHistory) LastRun(ctx context.Context) (*Run, error) {
	run, err := scanRun(h.conn.QueryRow(ctx, `SELECT `+runColumns+` FROM sync_runs ORDER BY id DESC LIMIT 1`))
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	return run, nil
}

// GetOutcomes retrieves the outcomes of a run in processing order.
func (h *RunHistory) GetOutcomes(ctx context.Context, runID int64) ([]Outcome, error) {
	rows, err := h.conn.Query(ctx, `
		SELECT external_id, description, outcome, reason
		FROM run_outcomes
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.ExternalID, &o.Description, &o.Outcome, &o.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

// Stats represents run history statistics.
type Stats struct {
	TotalRuns     int
	TotalImported int
	TotalSkipped  int
	TotalErrored  int
	TotalAborted  int
	LastRun       *Run
}

// GetStats retrieves run history statistics.
func (h *RunHistory) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	err := h.conn.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(imported), 0),
			COALESCE(SUM(skipped), 0),
			COALESCE(SUM(errored), 0),
			COALESCE(SUM(CASE WHEN abort_message != '' THEN 1 ELSE 0 END), 0)
		FROM sync_runs
	`).Scan(&stats.TotalRuns, &stats.TotalImported, &stats.TotalSkipped, &stats.TotalErrored, &stats.TotalAborted)
	if err != nil {
		return nil, fmt.Errorf("failed to get run totals: %w", err)
	}

	stats.LastRun, err = h.LastRun(ctx)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value.
func (h *RunHistory) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := h.conn.QueryRow(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (h *RunHistory) SetMetadata(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := h.conn.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var startedAt, finishedAt string

	err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&run.RegistryTitle,
		&run.Imported,
		&run.Skipped,
		&run.Errored,
		&run.Pruned,
		&run.ReconcilePages,
		&run.ReconcilePartial,
		&run.DryRun,
		&run.AbortMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t, nil
}
