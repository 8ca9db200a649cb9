package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cerradolab/vegetation.report/internal/delta"
)

// Run is the audit record of one pipeline invocation.
type Run struct {
	RunID        string  `json:"run_id"`
	RasterT1     int64   `json:"raster_t1"`
	RasterT2     int64   `json:"raster_t2"`
	State        string  `json:"state"`
	HotspotCount int     `json:"hotspot_count"`
	Error        *string `json:"error,omitempty"`
	StartedAt    string  `json:"started_at"`
	FinishedAt   *string `json:"finished_at,omitempty"`
}

// CreateRun records the start of a run. At most one run per raster pair
// may be in flight: a pair with an unfinished run is rejected with
// ErrRunActive.
func (db *DB) CreateRun(ctx context.Context, runID string, t1, t2 int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM runs
		WHERE raster_t1 = ? AND raster_t2 = ? AND state NOT IN (?, ?)`,
		t1, t2, string(delta.StateCommitted), string(delta.StateAborted)).Scan(&active)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("rasters %d vs %d: %w", t1, t2, ErrRunActive)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, raster_t1, raster_t2, state) VALUES (?, ?, ?, ?)`,
		runID, t1, t2, string(delta.StateLoaded))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return tx.Commit()
}

// FinishRun marks a run terminal. errMsg is stored for aborted runs and
// ignored otherwise.
func (db *DB) FinishRun(ctx context.Context, runID string, state delta.State, count int, errMsg string) error {
	var stored *string
	if state == delta.StateAborted && errMsg != "" {
		stored = &errMsg
	}
	res, err := db.ExecContext(ctx, `
		UPDATE runs SET state = ?, hotspot_count = ?, error = ?, finished_at = CURRENT_TIMESTAMP
		WHERE run_id = ?`,
		string(state), count, stored, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun returns one run record.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := db.QueryRowContext(ctx, `
		SELECT run_id, raster_t1, raster_t2, state, hotspot_count, error, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.RasterT1, &r.RasterT2, &r.State, &r.HotspotCount,
		&r.Error, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &r, nil
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, raster_t1, raster_t2, state, hotspot_count, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.RasterT1, &r.RasterT2, &r.State,
			&r.HotspotCount, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
