// package models defines the data model for the channel migration pipeline
package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for entities persisted in the journal.
type Model interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// ItemStatus is the transfer state of a single [Item].
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusAcquiring ItemStatus = "acquiring"
	StatusStaged    ItemStatus = "staged"
	StatusUploading ItemStatus = "uploading"
	StatusDone      ItemStatus = "done"
	StatusFailed    ItemStatus = "failed"
)

// allowedTransitions lists, for each status, the statuses it may move to.
//
// Self-edges on acquiring and uploading let a crashed transfer re-enter the step it died in.
var allowedTransitions = map[ItemStatus][]ItemStatus{
	StatusPending:   {StatusAcquiring, StatusUploading, StatusFailed},
	StatusAcquiring: {StatusAcquiring, StatusStaged, StatusPending, StatusFailed},
	StatusStaged:    {StatusAcquiring, StatusUploading, StatusFailed},
	StatusUploading: {StatusUploading, StatusStaged, StatusPending, StatusDone, StatusFailed},
	StatusFailed:    {StatusPending},
	StatusDone:      {},
}

// ItemStatuses returns every status in lifecycle order.
func ItemStatuses() []ItemStatus {
	return []ItemStatus{StatusPending, StatusAcquiring, StatusStaged, StatusUploading, StatusDone, StatusFailed}
}

// ParseItemStatus converts a string into an [ItemStatus].
func ParseItemStatus(s string) (ItemStatus, error) {
	st := ItemStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown item status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether an item in status s may move to next.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transfer work applies to s.
func (s ItemStatus) Terminal() bool {
	return s == StatusDone
}

// CountsAttempt reports whether entering s starts a new remote attempt.
func (s ItemStatus) CountsAttempt() bool {
	return s == StatusAcquiring || s == StatusUploading
}

func (s ItemStatus) String() string {
	return string(s)
}

// Channel is a source channel whose uploads are being migrated.
type Channel struct {
	ChannelID         string    `json:"channel_id"`
	DisplayName       string    `json:"display_name"`
	SourcePlaylistRef string    `json:"source_playlist_ref"`
	TotalItemCount    int       `json:"total_item_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validate checks required channel fields.
func (c *Channel) Validate() error {
	if c.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if c.TotalItemCount < 0 {
		return fmt.Errorf("total_item_count must not be negative")
	}
	return nil
}

// Item is one media item tracked by the journal.
//
// Sequence reflects discovery order and is assigned by the journal on first insert.
// LocalAssetRef and DestinationRef are empty until the matching step completes.
type Item struct {
	Sequence       int64      `json:"sequence"`
	ItemID         string     `json:"item_id"`
	ChannelID      string     `json:"channel_id"`
	SourceRef      string     `json:"source_ref"`
	LocalAssetRef  string     `json:"local_asset_ref,omitempty"`
	DestinationRef string     `json:"destination_ref,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         ItemStatus `json:"status"`
	Downloaded     bool       `json:"downloaded"`
	Uploaded       bool       `json:"uploaded"`
	Attempts       int        `json:"attempts"`
	IdempotencyKey string     `json:"idempotency_key"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Validate checks required item fields and the download/upload flag invariants.
func (i *Item) Validate() error {
	if i.ItemID == "" {
		return fmt.Errorf("item_id is required")
	}
	if i.SourceRef == "" {
		return fmt.Errorf("source_ref is required")
	}
	if i.Status != "" && !i.Status.Valid() {
		return fmt.Errorf("invalid status %q", i.Status)
	}
	if i.Uploaded && !i.Downloaded {
		return fmt.Errorf("uploaded item %s must also be downloaded", i.ItemID)
	}
	if i.Uploaded && i.DestinationRef == "" {
		return fmt.Errorf("uploaded item %s has no destination_ref", i.ItemID)
	}
	return nil
}

// Pending reports whether the item still needs transfer work.
func (i *Item) Pending() bool {
	return !i.Uploaded && i.Status != StatusFailed
}

// ItemFilter narrows [Item] listings. Zero values match everything.
type ItemFilter struct {
	ChannelID string
	Status    ItemStatus
	Limit     int
}

// RunStatus is the lifecycle state of a [Run].
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Run records one coordinator invocation.
type Run struct {
	ID           string     `json:"id"`
	ChannelID    string     `json:"channel_id"`
	ItemLimit    int        `json:"item_limit"`
	Status       RunStatus  `json:"status"`
	Discovered   int        `json:"discovered"`
	Uploaded     int        `json:"uploaded"`
	Failed       int        `json:"failed"`
	Skipped      int        `json:"skipped"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Validate checks required run fields.
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	switch r.Status {
	case RunRunning, RunCompleted, RunFailed, RunCanceled:
	default:
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	if r.Uploaded < 0 || r.Failed < 0 || r.Skipped < 0 || r.Discovered < 0 {
		return fmt.Errorf("run counters must not be negative")
	}
	return nil
}

// Duration returns how long the run took, or how long it has been running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// MigrationReport summarizes a coordinator run.
//
// FailedItemIDs are listed in discovery order.
type MigrationReport struct {
	RunID           string    `json:"run_id"`
	ChannelID       string    `json:"channel_id"`
	TotalDiscovered int       `json:"total_discovered"`
	Selected        int       `json:"selected"`
	Uploaded        int       `json:"uploaded"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	FailedItemIDs   []string  `json:"failed_item_ids"`
	Canceled        bool      `json:"canceled"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Elapsed returns the wall time the run took.
func (r *MigrationReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
