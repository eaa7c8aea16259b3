package tasks

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/services"
	"github.com/desertthunder/yt2pt/internal/shared"
)

func TestSyncCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("walks every page", func(t *testing.T) {
		env := newTestEnv(t, 120, 50)
		progress := make(chan ProgressUpdate, 16)

		result, err := env.fetcher().SyncCatalog(ctx, testChannel, progress)
		if err != nil {
			t.Fatalf("SyncCatalog failed: %v", err)
		}
		if result.Pages != 3 {
			t.Errorf("expected 3 pages, got %d", result.Pages)
		}
		if result.ItemsSeen != 120 || result.NewItems != 120 {
			t.Errorf("expected 120 seen and new, got %d/%d", result.ItemsSeen, result.NewItems)
		}
		if got := env.counts(t)[models.StatusPending]; got != 120 {
			t.Errorf("expected 120 pending items, got %d", got)
		}

		ch, err := env.journal.Channels.GetChannel(ctx, testChannel)
		if err != nil {
			t.Fatalf("GetChannel failed: %v", err)
		}
		if ch.TotalItemCount != 120 || ch.SourcePlaylistRef != "UUtest" {
			t.Errorf("unexpected channel row: %+v", ch)
		}

		close(progress)
		var last ProgressUpdate
		for u := range progress {
			last = u
		}
		if last.Message != "Collected 120 of 120" {
			t.Errorf("unexpected final progress message %q", last.Message)
		}
	})

	t.Run("re-discovery keeps item state", func(t *testing.T) {
		env := newTestEnv(t, 5, 2)
		env.sync(t)

		if err := env.journal.Items.SetStatus(ctx, "vid001", models.StatusUploading); err != nil {
			t.Fatalf("SetStatus failed: %v", err)
		}
		if err := env.journal.Items.MarkUploaded(ctx, "vid001", "pt-vid001"); err != nil {
			t.Fatalf("MarkUploaded failed: %v", err)
		}
		key := env.item(t, "vid002").IdempotencyKey

		env.catalog.Pages[0].Items[0].Title = "Renamed"
		result, err := env.fetcher().SyncCatalog(ctx, testChannel, nil)
		if err != nil {
			t.Fatalf("second SyncCatalog failed: %v", err)
		}
		if result.NewItems != 0 {
			t.Errorf("expected no new items, got %d", result.NewItems)
		}

		done := env.item(t, "vid001")
		if done.Status != models.StatusDone || !done.Uploaded || done.Title != "Renamed" {
			t.Errorf("expected done item with refreshed title, got %+v", done)
		}
		if got := env.item(t, "vid002").IdempotencyKey; got != key {
			t.Errorf("idempotency key changed from %q to %q", key, got)
		}
	})

	t.Run("last page is processed", func(t *testing.T) {
		env := newTestEnv(t, 3, 10)
		result, err := env.fetcher().SyncCatalog(ctx, testChannel, nil)
		if err != nil {
			t.Fatalf("SyncCatalog failed: %v", err)
		}
		if result.Pages != 1 || result.ItemsSeen != 3 {
			t.Errorf("expected 1 page with 3 items, got %d pages %d items", result.Pages, result.ItemsSeen)
		}
	})

	t.Run("metadata failure wraps ErrRemoteFetch", func(t *testing.T) {
		env := newTestEnv(t, 3, 10)
		env.catalog.MetaErr = shared.NewStatusError(http.StatusForbidden, []byte("quotaExceeded"))

		_, err := env.fetcher().SyncCatalog(ctx, testChannel, nil)
		if !errors.Is(err, shared.ErrRemoteFetch) {
			t.Errorf("expected ErrRemoteFetch, got %v", err)
		}
	})

	t.Run("page failure keeps earlier pages", func(t *testing.T) {
		env := newTestEnv(t, 120, 50)
		env.catalog.PageErr = map[int]error{1: shared.NewStatusError(http.StatusInternalServerError, nil)}

		result, err := env.fetcher().SyncCatalog(ctx, testChannel, nil)
		if !errors.Is(err, shared.ErrRemoteFetch) {
			t.Fatalf("expected ErrRemoteFetch, got %v", err)
		}
		if result.ItemsSeen != 50 {
			t.Errorf("expected 50 items before the failure, got %d", result.ItemsSeen)
		}
		if got := env.counts(t)[models.StatusPending]; got != 50 {
			t.Errorf("expected 50 journaled items, got %d", got)
		}
	})

	t.Run("repeated cursor aborts", func(t *testing.T) {
		env := newTestEnv(t, 4, 2)
		env.catalog.Pages[1].NextCursor = "page-1"

		_, err := env.fetcher().SyncCatalog(ctx, testChannel, nil)
		if !errors.Is(err, shared.ErrRemoteFetch) || !strings.Contains(err.Error(), "repeated") {
			t.Errorf("expected repeated cursor error, got %v", err)
		}
		if env.catalog.PageCalls() != 2 {
			t.Errorf("expected 2 page calls, got %d", env.catalog.PageCalls())
		}
	})

	t.Run("cancellation is not a fetch error", func(t *testing.T) {
		env := newTestEnv(t, 4, 2)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := env.fetcher().SyncCatalog(cctx, testChannel, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if errors.Is(err, shared.ErrRemoteFetch) {
			t.Error("cancellation should not wrap ErrRemoteFetch")
		}
	})

	t.Run("entries without source ref get a watch URL", func(t *testing.T) {
		env := newTestEnv(t, 0, 10)
		env.catalog.Meta.ItemCount = 2
		env.catalog.Pages = []services.Page{{Items: []services.CatalogEntry{
			{ItemID: "abc", Title: "No ref"},
			{Title: "No id"},
		}}}

		result, err := env.fetcher().SyncCatalog(ctx, testChannel, nil)
		if err != nil {
			t.Fatalf("SyncCatalog failed: %v", err)
		}
		if result.ItemsSeen != 1 {
			t.Errorf("expected entries without id to be skipped, saw %d", result.ItemsSeen)
		}
		if got := env.item(t, "abc").SourceRef; got != "https://www.youtube.com/watch?v=abc" {
			t.Errorf("unexpected source ref %q", got)
		}
	})

	t.Run("empty reference", func(t *testing.T) {
		env := newTestEnv(t, 1, 1)
		if _, err := env.fetcher().SyncCatalog(ctx, "", nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}
