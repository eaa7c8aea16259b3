package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
)

func TestItemRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("UpsertItem", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			j := setupTestJournal(t)

			_, err := j.Items.UpsertItem(ctx, &models.Item{ItemID: "x"})
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("GetItem", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			j := setupTestJournal(t)

			_, err := j.Items.GetItem(ctx, "missing")
			if !errors.Is(err, shared.ErrItemNotFound) {
				t.Fatalf("expected ErrItemNotFound, got %v", err)
			}
		})
	})

	t.Run("Mark on missing row", func(t *testing.T) {
		j := setupTestJournal(t)

		calls := map[string]func() error{
			"MarkDownloaded": func() error { return j.Items.MarkDownloaded(ctx, "missing", "/tmp/x") },
			"MarkUploaded":   func() error { return j.Items.MarkUploaded(ctx, "missing", "1") },
			"MarkFailed":     func() error { return j.Items.MarkFailed(ctx, "missing", "x") },
			"SetStatus":      func() error { return j.Items.SetStatus(ctx, "missing", models.StatusAcquiring) },
		}
		for name, call := range calls {
			t.Run(name, func(t *testing.T) {
				err := call()
				if !errors.Is(err, shared.ErrStorage) || !errors.Is(err, shared.ErrItemNotFound) {
					t.Errorf("expected storage and not-found errors, got %v", err)
				}
			})
		}
	})

	t.Run("Invalid transitions", func(t *testing.T) {
		j := setupTestJournal(t)
		seedItems(t, j, 2)

		if err := j.Items.MarkUploaded(ctx, "vid000", "1"); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("pending -> done should be rejected, got %v", err)
		}
		if err := j.Items.MarkDownloaded(ctx, "vid000", "/tmp/a"); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("pending -> staged should be rejected, got %v", err)
		}
		if err := j.Items.SetStatus(ctx, "vid000", models.StatusDone); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("SetStatus(done) should be rejected, got %v", err)
		}

		if err := j.Items.SetStatus(ctx, "vid001", models.StatusUploading); err != nil {
			t.Fatal(err)
		}
		if err := j.Items.MarkUploaded(ctx, "vid001", "7"); err != nil {
			t.Fatal(err)
		}
		if err := j.Items.MarkFailed(ctx, "vid001", "late"); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("done is terminal, got %v", err)
		}
		if err := j.Items.SetStatus(ctx, "vid001", models.StatusPending); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("done -> pending should be rejected, got %v", err)
		}
	})

	t.Run("Missing refs", func(t *testing.T) {
		j := setupTestJournal(t)
		seedItems(t, j, 1)

		if err := j.Items.MarkDownloaded(ctx, "vid000", ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := j.Items.MarkUploaded(ctx, "vid000", ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Closed database", func(t *testing.T) {
		j := setupTestJournal(t)
		seedItems(t, j, 1)
		j.Close()

		if _, err := j.Items.ListPendingItems(ctx, 0); !errors.Is(err, shared.ErrStorage) {
			t.Errorf("expected ErrStorage, got %v", err)
		}
		if _, err := j.Items.UpsertItem(ctx, newItem("late")); !errors.Is(err, shared.ErrStorage) {
			t.Errorf("expected ErrStorage, got %v", err)
		}
	})
}

func TestChannelAndRunRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("GetChannel NotFound", func(t *testing.T) {
		j := setupTestJournal(t)
		if _, err := j.Channels.GetChannel(ctx, "nope"); !errors.Is(err, shared.ErrChannelNotFound) {
			t.Errorf("expected ErrChannelNotFound, got %v", err)
		}
	})

	t.Run("UpsertChannel ValidationError", func(t *testing.T) {
		j := setupTestJournal(t)
		if err := j.Channels.UpsertChannel(ctx, &models.Channel{}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Run NotFound", func(t *testing.T) {
		j := setupTestJournal(t)
		if _, err := j.Runs.Get(ctx, "nope"); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
		run := &models.Run{ID: "nope", Status: models.RunCompleted}
		if err := j.Runs.Finish(ctx, run); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}
