package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

// Outcome values stored for finished runs.
const (
	OutcomeCompleted  = "completed"
	OutcomeIncomplete = "incomplete"
	OutcomeFailed     = "failed"
)

type Run struct {
	UUID          string
	File          string
	StartedAt     time.Time
	InProgress    bool
	Outcome       *string
	DownloadURL   *string
	FailureReason *string
	FinishedAt    *time.Time
}

type RunRow struct {
	Run
	ID int
}

func (r RunRow) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("uuid: %q, file: %q, in_progress: %t", r.UUID, r.File, r.InProgress))
	if r.Outcome != nil {
		sb.WriteString(fmt.Sprintf(", outcome: %s", *r.Outcome))
	}
	if r.DownloadURL != nil {
		sb.WriteString(fmt.Sprintf(", download_url: %q", *r.DownloadURL))
	}
	if r.FailureReason != nil {
		sb.WriteString(fmt.Sprintf(", failure_reason: %q", *r.FailureReason))
	}
	return sb.String()
}

func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			file TEXT NOT NULL,
			started_at TEXT NOT NULL,
			in_progress BOOLEAN NOT NULL,
			outcome TEXT DEFAULT NULL,
			download_url TEXT DEFAULT NULL,
			failure_reason TEXT DEFAULT NULL,
			finished_at TEXT DEFAULT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func rollback(ctx context.Context, tx *sql.Tx, uuid string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
	}
}

// Start persists that a run identified by 'uuid' is in progress.
// If the run is still in progress, no error is returned,
// if it has already finished ErrAlreadyFinished is returned.
func Start(ctx context.Context, db *sql.DB, uuid, file string, startedAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, uuid)

	var inProgress bool
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM runs WHERE uuid=?`, uuid,
	).Scan(&inProgress)
	switch {
	case err == nil && inProgress:
		return nil
	case err == nil && !inProgress:
		return ErrAlreadyFinished
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (uuid, file, started_at, in_progress) VALUES (?,?,?,?);`,
		uuid, file, formatTime(startedAt), true,
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, uuid, file, started_at, in_progress, outcome, download_url, failure_reason, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRow, error) {
	var (
		r          RunRow
		startedAt  string
		finishedAt *string
	)
	err := row.Scan(
		&r.ID,
		&r.UUID,
		&r.File,
		&startedAt,
		&r.InProgress,
		&r.Outcome,
		&r.DownloadURL,
		&r.FailureReason,
		&finishedAt,
	)
	if err != nil {
		return RunRow{}, err
	}
	r.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return RunRow{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if finishedAt != nil {
		t, err := parseTime(*finishedAt)
		if err != nil {
			return RunRow{}, fmt.Errorf("parsing finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return r, nil
}

// Get returns a run identified by 'uuid' on success,
// ErrNotFound when it does not exist, error otherwise.
func Get(ctx context.Context, db *sql.DB, uuid string) (RunRow, error) {
	row := db.QueryRowContext(ctx, selectRun+` WHERE uuid=?`, uuid)
	r, err := scanRun(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return RunRow{}, ErrNotFound
	case err != nil:
		return RunRow{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return r, nil
}

// List returns up to limit most recent runs, newest first. limit <= 0 means all.
func List(ctx context.Context, db *sql.DB, limit int) ([]RunRow, error) {
	query := selectRun + ` ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run failed: %w", err)
		}
		ret = append(ret, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs failed: %w", err)
	}
	return ret, nil
}

// FinishOK stores that the run identified by 'uuid' completed and where its
// document can be downloaded. ErrAlreadyFinished is returned for a finished run.
func FinishOK(ctx context.Context, db *sql.DB, uuid, downloadURL string, finishedAt time.Time) error {
	return finish(ctx, db, uuid, OutcomeCompleted, &downloadURL, nil, finishedAt)
}

// FinishErr stores that the run identified by 'uuid' ended without a document,
// outcome is OutcomeIncomplete or OutcomeFailed.
func FinishErr(ctx context.Context, db *sql.DB, uuid, outcome, reason string, finishedAt time.Time) error {
	if outcome != OutcomeIncomplete && outcome != OutcomeFailed {
		return fmt.Errorf("unexpected outcome %q", outcome)
	}
	return finish(ctx, db, uuid, outcome, nil, &reason, finishedAt)
}

func finish(ctx context.Context, db *sql.DB, uuid, outcome string, downloadURL, reason *string, finishedAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, uuid)

	var inProgress bool
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM runs WHERE uuid=?`, uuid,
	).Scan(&inProgress)
	switch {
	case err == nil && !inProgress:
		return ErrAlreadyFinished
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs
		 SET
			in_progress = false,
			outcome = ?,
			download_url = ?,
			failure_reason = ?,
			finished_at = ?
		WHERE uuid = ?;
		`, outcome, downloadURL, reason, formatTime(finishedAt), uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

func Delete(ctx context.Context, db *sql.DB, uuid string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM runs WHERE uuid=?`, uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql delete failed: %w", err)
	}

	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching affected rows failed: %w", err)
	}
	if ra != 1 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
