package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/tasks"
)

type fakeLister struct {
	items []*models.Item
	err   error
}

func (f *fakeLister) ListItems(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error) {
	return f.items, f.err
}

type fakeRunner struct {
	updates []tasks.ProgressUpdate
	report  *models.MigrationReport
	err     error
	opts    tasks.RunOptions
}

func (f *fakeRunner) Run(ctx context.Context, opts tasks.RunOptions, progress chan<- tasks.ProgressUpdate) (*models.MigrationReport, error) {
	f.opts = opts
	for _, u := range f.updates {
		progress <- u
	}
	return f.report, f.err
}

func testItems() []*models.Item {
	return []*models.Item{
		{ItemID: "vid001", Title: "First", Status: models.StatusDone, Uploaded: true, DestinationRef: "pt-vid001"},
		{ItemID: "vid002", Title: "Second", Status: models.StatusPending},
		{ItemID: "vid003", Title: "Third", Status: models.StatusFailed, Attempts: 3, LastError: "rejected by destination"},
	}
}

func press(m *Model, keys string) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return cmd
}

// drain feeds cmd's messages back into m until the run completes.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for range 100 {
		if cmd == nil {
			t.Fatal("run ended without a completion message")
		}
		msg := cmd()
		_, cmd = m.Update(msg)
		if m.view == ResultView {
			return
		}
	}
	t.Fatal("run did not complete")
}

func TestModel(t *testing.T) {
	t.Run("loads the journal", func(t *testing.T) {
		m := NewModel(context.Background(), &fakeLister{items: testItems()}, &fakeRunner{}, tasks.RunOptions{})
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		m.Update(m.loadItems()())

		if len(m.loaded) != 3 {
			t.Fatalf("expected 3 items, got %d", len(m.loaded))
		}
		if m.itemList.Title != "Journal: 3 items, 1 pending" {
			t.Errorf("unexpected title: %q", m.itemList.Title)
		}
	})

	t.Run("load error is shown", func(t *testing.T) {
		m := NewModel(context.Background(), &fakeLister{err: errors.New("database is locked")}, &fakeRunner{}, tasks.RunOptions{})
		m.Update(m.loadItems()())

		if !strings.Contains(m.View(), "database is locked") {
			t.Errorf("expected error in view, got %q", m.View())
		}
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.view != JournalView {
			t.Errorf("should not leave the journal after a load error")
		}
	})

	t.Run("confirm and run", func(t *testing.T) {
		report := &models.MigrationReport{ChannelID: "UC123", Selected: 2, Uploaded: 1, Failed: 1, FailedItemIDs: []string{"vid003"}}
		runner := &fakeRunner{
			updates: []tasks.ProgressUpdate{
				{Phase: tasks.SelectItems, Step: 2, Total: 2, Message: "Selected 2 pending items"},
				{Phase: tasks.ItemFinished, Step: 1, Total: 2, Message: "uploaded 1 / 2: vid002"},
				{Phase: tasks.ItemFinished, Step: 2, Total: 2, Message: "[2/2] ✗ vid003: rejected"},
			},
			report: report,
		}
		m := NewModel(context.Background(), &fakeLister{items: testItems()}, runner, tasks.RunOptions{ChannelRef: "UC123", ItemLimit: 5})
		m.Update(m.loadItems()())

		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.view != ConfirmView {
			t.Fatalf("expected confirm view, got %v", m.view)
		}
		if view := m.View(); !strings.Contains(view, "Migrate UC123") || !strings.Contains(view, "up to 5") {
			t.Errorf("unexpected confirm view: %q", view)
		}

		cmd := press(m, "y")
		if m.view != RunView {
			t.Fatalf("expected run view, got %v", m.view)
		}
		drain(t, m, cmd)

		if m.Report() != report {
			t.Errorf("report not recorded")
		}
		if runner.opts.ItemLimit != 5 {
			t.Errorf("run options not passed through: %+v", runner.opts)
		}
		if len(m.recent) != 2 {
			t.Errorf("expected 2 recent outcomes, got %v", m.recent)
		}

		view := m.View()
		for _, want := range []string{"Migration complete", "Uploaded: 1", "vid003"} {
			if !strings.Contains(view, want) {
				t.Errorf("result view missing %q: %q", want, view)
			}
		}
	})

	t.Run("declining returns to the journal", func(t *testing.T) {
		m := NewModel(context.Background(), &fakeLister{items: testItems()}, &fakeRunner{}, tasks.RunOptions{})
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		press(m, "n")
		if m.view != JournalView {
			t.Errorf("expected journal view, got %v", m.view)
		}
	})

	t.Run("run error is reported", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("authentication failed")}
		m := NewModel(context.Background(), &fakeLister{}, runner, tasks.RunOptions{SkipSync: true})
		m.view = ConfirmView

		drain(t, m, press(m, "y"))
		if !strings.Contains(m.View(), "authentication failed") {
			t.Errorf("expected error in result view: %q", m.View())
		}

		press(m, "r")
		if m.view != JournalView || m.err != nil {
			t.Errorf("restart should return to a clean journal view")
		}
	})

	t.Run("stop cancels the run context", func(t *testing.T) {
		m := NewModel(context.Background(), &fakeLister{}, &fakeRunner{}, tasks.RunOptions{})
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.view = RunView

		press(m, "s")
		if ctx.Err() == nil {
			t.Error("expected run context to be cancelled")
		}
		if !strings.Contains(m.View(), "Stopping") {
			t.Errorf("expected stopping notice, got %q", m.View())
		}
	})
}

func TestRatio(t *testing.T) {
	tests := []struct {
		step, total int
		want        float64
	}{
		{0, 0, 0},
		{1, 2, 0.5},
		{3, 2, 1},
		{-1, 2, 0},
	}
	for _, tt := range tests {
		if got := ratio(tt.step, tt.total); got != tt.want {
			t.Errorf("ratio(%d, %d) = %v, want %v", tt.step, tt.total, got, tt.want)
		}
	}
}
