package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
)

func TestCoordinatorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("limit bounds the transferred items", func(t *testing.T) {
		env := newTestEnv(t, 120, 50)
		progress := make(chan ProgressUpdate, 256)

		report, err := env.coordinator(ModeUpload, 2).Run(ctx, RunOptions{ChannelRef: testChannel, ItemLimit: 10}, progress)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.TotalDiscovered != 120 || report.Selected != 10 || report.Uploaded != 10 {
			t.Errorf("unexpected report: %+v", report)
		}
		if env.catalog.PageCalls() != 3 {
			t.Errorf("expected 3 page fetches, got %d", env.catalog.PageCalls())
		}

		counts := env.counts(t)
		if counts[models.StatusDone] != 10 || counts[models.StatusPending] != 110 {
			t.Errorf("expected 10 done and 110 pending, got %v", counts)
		}
		for i := 1; i <= 10; i++ {
			id := fmt.Sprintf("vid%03d", i)
			if !env.item(t, id).Uploaded {
				t.Errorf("expected %s (discovery order) to be uploaded", id)
			}
		}

		close(progress)
		var uploaded, finished int
		for u := range progress {
			switch u.Phase {
			case ItemFinished:
				uploaded++
			case RunFinished:
				finished++
			}
		}
		if uploaded != 10 || finished != 1 {
			t.Errorf("expected 10 item updates and 1 run update, got %d and %d", uploaded, finished)
		}
	})

	t.Run("run is recorded", func(t *testing.T) {
		env := newTestEnv(t, 3, 10)
		report, err := env.coordinator(ModeUpload, 1).Run(ctx, RunOptions{ChannelRef: testChannel}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		run, err := env.journal.Runs.Get(ctx, report.RunID)
		if err != nil {
			t.Fatalf("Get run failed: %v", err)
		}
		if run.Status != models.RunCompleted || run.Uploaded != 3 || run.Discovered != 3 || run.CompletedAt == nil {
			t.Errorf("unexpected run row: %+v", run)
		}
	})

	t.Run("client error fails one item and a retry run finishes it", func(t *testing.T) {
		env := newTestEnv(t, 5, 10)
		env.importer.Fail("vid003", shared.NewStatusError(http.StatusBadRequest, []byte("invalid name")))
		c := env.coordinator(ModeUpload, 2)

		report, err := c.Run(ctx, RunOptions{ChannelRef: testChannel}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.Uploaded != 4 || report.Failed != 1 {
			t.Errorf("expected 4 uploaded and 1 failed, got %+v", report)
		}
		if len(report.FailedItemIDs) != 1 || report.FailedItemIDs[0] != "vid003" {
			t.Errorf("expected vid003 to fail, got %v", report.FailedItemIDs)
		}
		if env.importer.Calls("vid003") != 1 {
			t.Errorf("4xx must not be retried, got %d submits", env.importer.Calls("vid003"))
		}

		report, err = c.Run(ctx, RunOptions{ChannelRef: testChannel}, nil)
		if err != nil {
			t.Fatalf("second Run failed: %v", err)
		}
		if report.Selected != 0 {
			t.Errorf("failed items are not pending without a retry, selected %d", report.Selected)
		}

		report, err = c.Run(ctx, RunOptions{ChannelRef: testChannel, RetryFailed: true}, nil)
		if err != nil {
			t.Fatalf("retry Run failed: %v", err)
		}
		if report.Uploaded != 1 || report.Failed != 0 {
			t.Errorf("expected the failed item to finish, got %+v", report)
		}
		if got := env.item(t, "vid003"); got.Status != models.StatusDone {
			t.Errorf("expected vid003 done, got %s", got.Status)
		}
	})

	t.Run("transient failures stay with one item", func(t *testing.T) {
		env := newTestEnv(t, 4, 10)
		down := shared.NewStatusError(http.StatusBadGateway, nil)
		env.importer.Fail("vid002", down, down, down)

		report, err := env.coordinator(ModeUpload, 2).Run(ctx, RunOptions{ChannelRef: testChannel}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.Uploaded != 3 || report.Failed != 1 || report.FailedItemIDs[0] != "vid002" {
			t.Errorf("unexpected report: %+v", report)
		}
		if env.importer.Calls("vid002") != 3 {
			t.Errorf("expected 3 attempts, got %d", env.importer.Calls("vid002"))
		}
		for _, id := range []string{"vid001", "vid003", "vid004"} {
			if env.importer.Calls(id) != 1 {
				t.Errorf("%s should be submitted once, got %d", id, env.importer.Calls(id))
			}
		}
	})

	t.Run("resume does not submit twice", func(t *testing.T) {
		env := newTestEnv(t, 6, 10)
		c := env.coordinator(ModeUpload, 2)

		if _, err := c.Run(ctx, RunOptions{ChannelRef: testChannel, ItemLimit: 3}, nil); err != nil {
			t.Fatalf("first Run failed: %v", err)
		}
		report, err := c.Run(ctx, RunOptions{ChannelRef: testChannel}, nil)
		if err != nil {
			t.Fatalf("second Run failed: %v", err)
		}
		if report.Selected != 3 || report.Uploaded != 3 {
			t.Errorf("expected the remaining 3 items, got %+v", report)
		}
		for i := 1; i <= 6; i++ {
			id := fmt.Sprintf("vid%03d", i)
			if n := env.importer.Calls(id); n != 1 {
				t.Errorf("%s submitted %d times", id, n)
			}
		}
	})

	t.Run("skip sync works from the journal", func(t *testing.T) {
		env := newTestEnv(t, 3, 10)
		env.sync(t)
		calls := env.catalog.PageCalls()

		report, err := env.coordinator(ModeImport, 2).Run(ctx, RunOptions{SkipSync: true}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if env.catalog.PageCalls() != calls {
			t.Error("skip sync must not list the source")
		}
		if report.TotalDiscovered != 3 || report.Uploaded != 3 {
			t.Errorf("unexpected report: %+v", report)
		}
	})

	t.Run("catalog failure aborts before transfers", func(t *testing.T) {
		env := newTestEnv(t, 3, 10)
		env.catalog.MetaErr = shared.NewStatusError(http.StatusForbidden, nil)

		report, err := env.coordinator(ModeUpload, 2).Run(ctx, RunOptions{ChannelRef: testChannel}, nil)
		if !errors.Is(err, shared.ErrRemoteFetch) {
			t.Fatalf("expected ErrRemoteFetch, got %v", err)
		}
		if report == nil || report.Selected != 0 {
			t.Errorf("expected an empty partial report, got %+v", report)
		}

		run, err := env.journal.Runs.Get(ctx, report.RunID)
		if err != nil {
			t.Fatalf("Get run failed: %v", err)
		}
		if run.Status != models.RunFailed || run.ErrorMessage == "" {
			t.Errorf("expected failed run with message, got %+v", run)
		}
	})

	t.Run("auth failure stops dispatching", func(t *testing.T) {
		env := newTestEnv(t, 20, 50)
		env.auth.Err = shared.ErrAuth

		report, err := env.coordinator(ModeImport, 1).Run(ctx, RunOptions{ChannelRef: testChannel}, nil)
		if !errors.Is(err, shared.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}
		if report.Uploaded != 0 {
			t.Errorf("expected nothing uploaded, got %d", report.Uploaded)
		}
		if n := env.auth.TokenCalls(); n != 2 {
			t.Errorf("expected one item with one re-authentication, got %d token attempts", n)
		}
		if got := env.counts(t)[models.StatusPending]; got != 20 {
			t.Errorf("expected every item to stay pending, got %d", got)
		}
	})

	t.Run("cancelled run returns a partial report", func(t *testing.T) {
		env := newTestEnv(t, 5, 10)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		report, err := env.coordinator(ModeUpload, 2).Run(cctx, RunOptions{ChannelRef: testChannel}, nil)
		if err != nil {
			t.Fatalf("cancellation should not be an error: %v", err)
		}
		if !report.Canceled || report.Uploaded != 0 {
			t.Errorf("expected a cancelled report, got %+v", report)
		}
		if env.importer.TotalCalls() != 0 {
			t.Error("cancelled run must not submit")
		}
	})

	t.Run("cancel mid-run lets the in-flight item finish", func(t *testing.T) {
		env := newTestEnv(t, 5, 10)
		env.importer.Entered = make(chan string, 5)
		env.importer.Release = make(chan struct{})
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type outcome struct {
			report *models.MigrationReport
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			report, err := env.coordinator(ModeImport, 1).Run(cctx, RunOptions{ChannelRef: testChannel}, nil)
			done <- outcome{report, err}
		}()

		if id := <-env.importer.Entered; id != "vid001" {
			t.Fatalf("expected vid001 in flight, got %s", id)
		}
		cancel()
		close(env.importer.Release)

		var got outcome
		select {
		case got = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("run did not return after cancellation")
		}
		if got.err != nil {
			t.Fatalf("cancellation should not be an error: %v", got.err)
		}
		if !got.report.Canceled || got.report.Selected != 5 || got.report.Uploaded != 1 {
			t.Errorf("unexpected report: %+v", got.report)
		}
		if n := env.importer.TotalCalls(); n != 1 {
			t.Errorf("expected no submissions after cancel, got %d", n)
		}

		counts := env.counts(t)
		if counts[models.StatusDone] != 1 || counts[models.StatusPending] != 4 {
			t.Errorf("expected 1 done and 4 pending, got %v", counts)
		}
		if item := env.item(t, "vid001"); !item.Uploaded || item.DestinationRef == "" {
			t.Errorf("in-flight item should have been recorded, got %+v", item)
		}

		run, err := env.journal.Runs.Get(ctx, got.report.RunID)
		if err != nil {
			t.Fatalf("Get run failed: %v", err)
		}
		if run.Status != models.RunCanceled {
			t.Errorf("expected canceled run, got %s", run.Status)
		}
	})

	t.Run("worker does not start an item after cancel", func(t *testing.T) {
		env := newTestEnv(t, 1, 10)
		env.sync(t)
		pending, err := env.journal.Items.ListPendingItems(ctx, 0)
		if err != nil {
			t.Fatalf("ListPendingItems failed: %v", err)
		}

		c := env.coordinator(ModeImport, 1)
		report := &models.MigrationReport{FailedItemIDs: []string{}}
		lateCtx := &cancelAfterFirstCheck{Context: ctx}

		if err := c.dispatch(lateCtx, pending, 1, report, env.logger, nil); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if env.importer.TotalCalls() != 0 {
			t.Errorf("expected no submission, got %d", env.importer.TotalCalls())
		}
		if !report.Canceled || report.Uploaded != 0 {
			t.Errorf("expected a cancelled report, got %+v", report)
		}
		if got := env.item(t, "vid001").Status; got != models.StatusPending {
			t.Errorf("expected vid001 to stay pending, got %s", got)
		}
	})

	t.Run("one run at a time", func(t *testing.T) {
		env := newTestEnv(t, 1, 10)
		c := env.coordinator(ModeUpload, 1)
		c.active.Store(true)

		if _, err := c.Run(ctx, RunOptions{ChannelRef: testChannel}, nil); !errors.Is(err, shared.ErrRunInProgress) {
			t.Errorf("expected ErrRunInProgress, got %v", err)
		}

		c.active.Store(false)
		if _, err := c.Run(ctx, RunOptions{ChannelRef: testChannel}, nil); err != nil {
			t.Errorf("Run failed after release: %v", err)
		}
		if c.Active() {
			t.Error("coordinator should be idle after a run")
		}
	})

	t.Run("concurrent runs never submit an item twice", func(t *testing.T) {
		env := newTestEnv(t, 10, 10)
		env.sync(t)
		a := env.coordinator(ModeUpload, 4)
		b := env.coordinator(ModeUpload, 4)

		var wg sync.WaitGroup
		for _, c := range []*Coordinator{a, b} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.Run(ctx, RunOptions{SkipSync: true}, nil); err != nil {
					t.Errorf("Run failed: %v", err)
				}
			}()
		}
		wg.Wait()

		for i := 1; i <= 10; i++ {
			id := fmt.Sprintf("vid%03d", i)
			if n := env.importer.Calls(id); n != 1 {
				t.Errorf("%s submitted %d times", id, n)
			}
		}
	})
}

func TestClampWorkers(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultWorkers},
		{-3, DefaultWorkers},
		{1, 1},
		{8, 8},
		{50, MaxWorkers},
	}
	for _, tt := range tests {
		if got := clampWorkers(tt.in); got != tt.want {
			t.Errorf("clampWorkers(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// cancelAfterFirstCheck reports no error on its first Err call and context.Canceled afterwards, while its Done
// channel never fires. It lets a job reach a worker after the dispatcher last saw a live context.
type cancelAfterFirstCheck struct {
	context.Context
	checks atomic.Int32
}

func (c *cancelAfterFirstCheck) Err() error {
	if c.checks.Add(1) == 1 {
		return nil
	}
	return context.Canceled
}
