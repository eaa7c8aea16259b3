package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
)

const runColumns = `
	id, channel_id, item_limit, status, discovered, uploaded, failed, skipped,
	error_message, started_at, completed_at
`

// RunRepository persists coordinator [models.Run] history.
type RunRepository struct {
	db *sql.DB
	mu *sync.Mutex
}

// NewRunRepository creates a RunRepository with its own write lock.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db, mu: &sync.Mutex{}}
}

// Create inserts a new run, generating an ID and start time when unset.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.Status == "" {
		run.Status = models.RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.ChannelID, run.ItemLimit, run.Status,
		run.Discovered, run.Uploaded, run.Failed, run.Skipped,
		nullString(run.ErrorMessage), run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return storageErr("insert run", err)
	}
	return nil
}

// Finish stores the final counters and status of run, stamping CompletedAt.
func (r *RunRepository) Finish(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET channel_id = ?, status = ?, discovered = ?, uploaded = ?, failed = ?, skipped = ?,
			error_message = ?, completed_at = ?
		WHERE id = ?
	`,
		run.ChannelID, run.Status, run.Discovered, run.Uploaded, run.Failed, run.Skipped,
		nullString(run.ErrorMessage), run.CompletedAt, run.ID,
	)
	if err != nil {
		return storageErr("finish run", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("finish run", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get run", err)
	}
	return run, nil
}

// List returns the most recent runs first. A limit of zero or less returns all runs.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list runs", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, storageErr("scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration", err)
	}
	return runs, nil
}

func scanRun(s rowScanner) (*models.Run, error) {
	var (
		run          models.Run
		status       string
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)

	err := s.Scan(
		&run.ID, &run.ChannelID, &run.ItemLimit, &status, &run.Discovered, &run.Uploaded,
		&run.Failed, &run.Skipped, &errorMessage, &run.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}
