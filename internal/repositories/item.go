package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
)

const itemColumns = `
	sequence, item_id, channel_id, source_ref, local_asset_ref, destination_ref,
	title, description, status, downloaded, uploaded, attempts,
	idempotency_key, last_error, created_at, updated_at
`

// ItemRepository persists [models.Item] rows and enforces the item status machine.
type ItemRepository struct {
	db *sql.DB
	mu *sync.Mutex
}

// NewItemRepository creates an ItemRepository with its own write lock.
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db, mu: &sync.Mutex{}}
}

// UpsertItem inserts or refreshes a single item. See [ItemRepository.UpsertItems].
func (r *ItemRepository) UpsertItem(ctx context.Context, item *models.Item) (bool, error) {
	n, err := r.UpsertItems(ctx, []*models.Item{item})
	return n == 1, err
}

// UpsertItems writes a page of discovered items in one transaction and returns how many were new.
//
// New rows get the next sequence, status pending and a fresh idempotency key unless one is already set.
// Existing rows only have title, description and source_ref refreshed; status fields are never touched.
// Each item is reloaded from the stored row so callers see the journal's view.
func (r *ItemRepository) UpsertItems(ctx context.Context, items []*models.Item) (int, error) {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin upsert", err)
	}
	defer tx.Rollback()

	created := 0
	now := time.Now().UTC()
	for _, item := range items {
		var sequence int64
		err := tx.QueryRowContext(ctx, "SELECT sequence FROM items WHERE item_id = ?", item.ItemID).Scan(&sequence)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			key := item.IdempotencyKey
			if key == "" {
				key = shared.GenerateID()
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (
					item_id, channel_id, source_ref, title, description, status,
					downloaded, uploaded, attempts, idempotency_key, created_at, updated_at
				)
				VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?)
			`, item.ItemID, item.ChannelID, item.SourceRef, item.Title, item.Description, models.StatusPending, key, now, now)
			if err != nil {
				return 0, storageErr("insert item", err)
			}
			created++
		case err != nil:
			return 0, storageErr("lookup item", err)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE items
				SET title = ?, description = ?, source_ref = ?, updated_at = ?
				WHERE item_id = ?
			`, item.Title, item.Description, item.SourceRef, now, item.ItemID)
			if err != nil {
				return 0, storageErr("refresh item", err)
			}
		}

		stored, err := scanItem(tx.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE item_id = ?", item.ItemID))
		if err != nil {
			return 0, storageErr("reload item", err)
		}
		*item = *stored
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit upsert", err)
	}
	return created, nil
}

// GetItem retrieves an item by its source identifier.
func (r *ItemRepository) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE item_id = ?", itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, itemID)
	}
	if err != nil {
		return nil, storageErr("get item", err)
	}
	return item, nil
}

// ListPendingItems returns items not yet uploaded and not failed, in discovery order.
//
// A limit of zero or less means no limit.
func (r *ItemRepository) ListPendingItems(ctx context.Context, limit int) ([]*models.Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE uploaded = 0 AND status != ? ORDER BY sequence"
	args := []any{models.StatusFailed}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// ListItems returns items matching filter in discovery order.
func (r *ItemRepository) ListItems(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE 1 = 1"
	args := []any{}

	if filter.ChannelID != "" {
		query += " AND channel_id = ?"
		args = append(args, filter.ChannelID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY sequence"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return r.list(ctx, query, args...)
}

// CountByStatus returns the number of items in each status. Every status is present in the result.
func (r *ItemRepository) CountByStatus(ctx context.Context) (map[models.ItemStatus]int, error) {
	counts := make(map[models.ItemStatus]int, len(models.ItemStatuses()))
	for _, s := range models.ItemStatuses() {
		counts[s] = 0
	}

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM items GROUP BY status")
	if err != nil {
		return nil, storageErr("count items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("scan count", err)
		}
		counts[models.ItemStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration", err)
	}
	return counts, nil
}

// SetStatus moves an item to status if the transition is allowed.
//
// Entering acquiring or uploading from a different status counts as a new attempt.
// Use [ItemRepository.MarkDownloaded], [ItemRepository.MarkUploaded] and [ItemRepository.MarkFailed] for the
// transitions that also record data.
func (r *ItemRepository) SetStatus(ctx context.Context, itemID string, status models.ItemStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, status)
	}
	if status == models.StatusDone {
		return fmt.Errorf("%w: done is only reachable through MarkUploaded", shared.ErrInvalidTransition)
	}

	return r.transition(ctx, itemID, func(cur *models.Item, now time.Time) (string, []any, error) {
		if err := checkTransition(cur, status); err != nil {
			return "", nil, err
		}
		if status == models.StatusStaged && !cur.Downloaded {
			return "", nil, fmt.Errorf("%w: %s has no staged asset", shared.ErrInvalidTransition, cur.ItemID)
		}

		increment := 0
		if status.CountsAttempt() && cur.Status != status {
			increment = 1
		}
		return "UPDATE items SET status = ?, attempts = attempts + ?, updated_at = ? WHERE item_id = ?",
			[]any{status, increment, now, cur.ItemID}, nil
	})
}

// MarkDownloaded records the staged asset location and moves the item to staged.
func (r *ItemRepository) MarkDownloaded(ctx context.Context, itemID, localRef string) error {
	if localRef == "" {
		return fmt.Errorf("%w: local asset ref is required", shared.ErrInvalidInput)
	}

	return r.transition(ctx, itemID, func(cur *models.Item, now time.Time) (string, []any, error) {
		if err := checkTransition(cur, models.StatusStaged); err != nil {
			return "", nil, err
		}
		return "UPDATE items SET status = ?, downloaded = 1, local_asset_ref = ?, updated_at = ? WHERE item_id = ?",
			[]any{models.StatusStaged, localRef, now, cur.ItemID}, nil
	})
}

// MarkUploaded records the destination reference and moves the item to done.
//
// Both flags are set, covering import mode where acquisition and upload happen in one remote step.
func (r *ItemRepository) MarkUploaded(ctx context.Context, itemID, destRef string) error {
	if destRef == "" {
		return fmt.Errorf("%w: destination ref is required", shared.ErrInvalidInput)
	}

	return r.transition(ctx, itemID, func(cur *models.Item, now time.Time) (string, []any, error) {
		if err := checkTransition(cur, models.StatusDone); err != nil {
			return "", nil, err
		}
		return `UPDATE items
			SET status = ?, downloaded = 1, uploaded = 1, destination_ref = ?, last_error = NULL, updated_at = ?
			WHERE item_id = ?`,
			[]any{models.StatusDone, destRef, now, cur.ItemID}, nil
	})
}

// MarkFailed moves the item to failed and records reason. An already failed item only has its reason replaced.
func (r *ItemRepository) MarkFailed(ctx context.Context, itemID, reason string) error {
	return r.transition(ctx, itemID, func(cur *models.Item, now time.Time) (string, []any, error) {
		if cur.Status != models.StatusFailed {
			if err := checkTransition(cur, models.StatusFailed); err != nil {
				return "", nil, err
			}
		}
		return "UPDATE items SET status = ?, last_error = ?, updated_at = ? WHERE item_id = ?",
			[]any{models.StatusFailed, nullString(reason), now, cur.ItemID}, nil
	})
}

// ResetFailed moves failed items back to pending so the next run picks them up.
//
// With no ids every failed item is reset. Returns the number of rows changed.
func (r *ItemRepository) ResetFailed(ctx context.Context, itemIDs ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := "UPDATE items SET status = ?, updated_at = ? WHERE status = ?"
	args := []any{models.StatusPending, time.Now().UTC(), models.StatusFailed}

	if len(itemIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
		query += " AND item_id IN (" + placeholders + ")"
		for _, id := range itemIDs {
			args = append(args, id)
		}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageErr("reset failed items", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("reset failed items", err)
	}
	return int(n), nil
}

// transition loads the current row and applies the update built by apply in one transaction.
func (r *ItemRepository) transition(ctx context.Context, itemID string, apply func(cur *models.Item, now time.Time) (string, []any, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transition", err)
	}
	defer tx.Rollback()

	cur, err := scanItem(tx.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE item_id = ?", itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w: %s", shared.ErrStorage, shared.ErrItemNotFound, itemID)
	}
	if err != nil {
		return storageErr("load item", err)
	}

	query, args, err := apply(cur, time.Now().UTC())
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return storageErr("update item", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transition", err)
	}
	return nil
}

func (r *ItemRepository) list(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query items", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storageErr("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration", err)
	}
	return items, nil
}

func checkTransition(cur *models.Item, next models.ItemStatus) error {
	if !cur.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s %s -> %s", shared.ErrInvalidTransition, cur.ItemID, cur.Status, next)
	}
	return nil
}

// scanItem returns [sql.ErrNoRows] unwrapped so callers can map it.
func scanItem(s rowScanner) (*models.Item, error) {
	var (
		item           models.Item
		status         string
		localAssetRef  sql.NullString
		destinationRef sql.NullString
		lastError      sql.NullString
	)

	err := s.Scan(
		&item.Sequence, &item.ItemID, &item.ChannelID, &item.SourceRef, &localAssetRef, &destinationRef,
		&item.Title, &item.Description, &status, &item.Downloaded, &item.Uploaded, &item.Attempts,
		&item.IdempotencyKey, &lastError, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = models.ItemStatus(status)
	item.LocalAssetRef = localAssetRef.String
	item.DestinationRef = destinationRef.String
	item.LastError = lastError.String
	return &item, nil
}
