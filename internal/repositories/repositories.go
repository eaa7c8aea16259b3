// package repositories provides the persistence layer for the migration journal.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/desertthunder/yt2pt/internal/shared"
)

// Journal bundles the repositories that share one database connection.
type Journal struct {
	db *sql.DB
	mu *sync.Mutex

	Channels *ChannelRepository
	Items    *ItemRepository
	Runs     *RunRepository
}

// OpenJournal opens the SQLite database at path and builds a [Journal] on it.
//
// The caller is expected to invoke [Journal.EnsureSchema] before use.
func OpenJournal(path string) (*Journal, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	return NewJournal(db), nil
}

// NewJournal creates a Journal on an already open database.
func NewJournal(db *sql.DB) *Journal {
	mu := &sync.Mutex{}
	return &Journal{
		db:       db,
		mu:       mu,
		Channels: &ChannelRepository{db: db, mu: mu},
		Items:    &ItemRepository{db: db, mu: mu},
		Runs:     &RunRepository{db: db, mu: mu},
	}
}

// EnsureSchema creates the journal tables if they are absent. Safe to call on every start.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := shared.RunMigrations(j.db); err != nil {
		return storageErr("ensure schema", err)
	}
	return nil
}

// DB returns the underlying connection.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// Close closes the underlying connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// storageErr wraps a database failure as [shared.ErrStorage].
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", shared.ErrStorage, op, err)
}

// nullString maps "" to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both [sql.Row] and [sql.Rows].
type rowScanner interface {
	Scan(dest ...any) error
}
