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

// ChannelRepository persists [models.Channel] rows.
type ChannelRepository struct {
	db *sql.DB
	mu *sync.Mutex
}

// NewChannelRepository creates a ChannelRepository with its own write lock.
func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db, mu: &sync.Mutex{}}
}

// UpsertChannel inserts the channel if absent, else refreshes its name, playlist and item count.
//
// CreatedAt and UpdatedAt on ch are set from the stored row.
func (r *ChannelRepository) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	query := `
		INSERT INTO channels (channel_id, display_name, source_playlist_ref, total_item_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			display_name = excluded.display_name,
			source_playlist_ref = excluded.source_playlist_ref,
			total_item_count = excluded.total_item_count,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, ch.ChannelID, ch.DisplayName, ch.SourcePlaylistRef, ch.TotalItemCount, now, now)
	if err != nil {
		return storageErr("upsert channel", err)
	}

	stored, err := r.get(ctx, ch.ChannelID)
	if err != nil {
		return err
	}
	ch.CreatedAt = stored.CreatedAt
	ch.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetChannel retrieves a channel by its source identifier.
func (r *ChannelRepository) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	return r.get(ctx, channelID)
}

// ListChannels returns all channels ordered by creation.
func (r *ChannelRepository) ListChannels(ctx context.Context) ([]*models.Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel_id, display_name, source_playlist_ref, total_item_count, created_at, updated_at
		FROM channels
		ORDER BY created_at, channel_id
	`)
	if err != nil {
		return nil, storageErr("list channels", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration", err)
	}
	return channels, nil
}

func (r *ChannelRepository) get(ctx context.Context, channelID string) (*models.Channel, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT channel_id, display_name, source_playlist_ref, total_item_count, created_at, updated_at
		FROM channels
		WHERE channel_id = ?
	`, channelID)

	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrChannelNotFound, channelID)
	}
	return ch, err
}

func scanChannel(s rowScanner) (*models.Channel, error) {
	var ch models.Channel
	err := s.Scan(&ch.ChannelID, &ch.DisplayName, &ch.SourcePlaylistRef, &ch.TotalItemCount, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("scan channel", err)
	}
	return &ch, nil
}
