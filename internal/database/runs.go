package database

import (
	"database/sql"
	"time"
)

// Run is one pipeline execution recorded in the run log.
type Run struct {
	ID             string
	Status         string
	StartedAt      string
	FinishedAt     *string
	Categories     int
	ItemsCollected int
	ItemsEnriched  int
	ItemsFailed    int
	Notes          *string
}

// StageResult is the outcome of one stage within a run.
type StageResult struct {
	ID         int64
	RunID      string
	Stage      string
	Status     string
	StartedAt  string
	FinishedAt *string
	ItemCount  int
	Error      *string
}

const timeFormat = "2006-01-02 15:04:05"

// StartRun records the beginning of a pipeline execution.
func (db *DB) StartRun(runID string, categories int) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, status, categories) VALUES (?, 'running', ?)`,
		runID, categories,
	)
	return err
}

// FinishRun records the final status and item counts of a run.
func (db *DB) FinishRun(runID, status string, collected, enriched, failed int, notes *string) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET status = ?, finished_at = ?, items_collected = ?,
		items_enriched = ?, items_failed = ?, notes = ? WHERE id = ?`,
		status, time.Now().UTC().Format(timeFormat), collected, enriched, failed, notes, runID,
	)
	return err
}

// RecordStage upserts a stage outcome for a run.
func (db *DB) RecordStage(runID, stage, status string, itemCount int, stageErr *string) error {
	_, err := db.conn.Exec(
		`INSERT INTO stage_results (run_id, stage, status, finished_at, item_count, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, stage) DO UPDATE SET
		status = excluded.status, finished_at = excluded.finished_at,
		item_count = excluded.item_count, error = excluded.error`,
		runID, stage, status, time.Now().UTC().Format(timeFormat), itemCount, stageErr,
	)
	return err
}

// GetRun returns a single run by ID, or nil when absent.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, status, started_at, finished_at, categories,
		items_collected, items_enriched, items_failed, notes
		FROM runs WHERE id = ?`, runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LatestRun returns the most recently started run, or nil on an empty log.
func (db *DB) LatestRun() (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, status, started_at, finished_at, categories,
		items_collected, items_enriched, items_failed, notes
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, status, started_at, finished_at, categories,
		items_collected, items_enriched, items_failed, notes
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Categories,
			&r.ItemsCollected, &r.ItemsEnriched, &r.ItemsFailed, &r.Notes); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetStageResults returns the stage outcomes of a run in execution order.
func (db *DB) GetStageResults(runID string) ([]StageResult, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, stage, status, started_at, finished_at, item_count, error
		FROM stage_results WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StageResult
	for rows.Next() {
		var s StageResult
		if err := rows.Scan(&s.ID, &s.RunID, &s.Stage, &s.Status, &s.StartedAt,
			&s.FinishedAt, &s.ItemCount, &s.Error); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Categories,
		&r.ItemsCollected, &r.ItemsEnriched, &r.ItemsFailed, &r.Notes); err != nil {
		return nil, err
	}
	return &r, nil
}
