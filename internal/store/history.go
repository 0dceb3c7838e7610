package store

import (
	"context"
	"database/sql"
	"time"
)

// History records runs of the job controller into the sqlite database.
type History struct {
	db  *sql.DB
	now func() time.Time
}

func NewHistory(db *sql.DB) *History {
	return &History{db: db, now: time.Now}
}

// Open initializes the database at path and returns History using it.
func Open(ctx context.Context, path string) (*History, error) {
	db, err := InitDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewHistory(db), nil
}

func (h *History) RunStarted(ctx context.Context, runID, file string) error {
	return Start(ctx, h.db, runID, file, h.now())
}

func (h *History) RunCompleted(ctx context.Context, runID, downloadURL string) error {
	return FinishOK(ctx, h.db, runID, downloadURL, h.now())
}

func (h *History) RunIncomplete(ctx context.Context, runID, reason string) error {
	return FinishErr(ctx, h.db, runID, OutcomeIncomplete, reason, h.now())
}

func (h *History) RunFailed(ctx context.Context, runID, reason string) error {
	return FinishErr(ctx, h.db, runID, OutcomeFailed, reason, h.now())
}

func (h *History) List(ctx context.Context, limit int) ([]RunRow, error) {
	return List(ctx, h.db, limit)
}

func (h *History) Get(ctx context.Context, runID string) (RunRow, error) {
	return Get(ctx, h.db, runID)
}

func (h *History) Delete(ctx context.Context, runID string) error {
	return Delete(ctx, h.db, runID)
}

func (h *History) Close() error {
	return h.db.Close()
}
