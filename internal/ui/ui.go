package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/tasks"
)

const recentOutcomes = 6

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JournalView ViewState = iota
	ConfirmView
	RunView
	ResultView
)

// ItemLister reads items from the journal.
type ItemLister interface {
	ListItems(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error)
}

// MigrationRunner runs one migration, streaming progress.
type MigrationRunner interface {
	Run(ctx context.Context, opts tasks.RunOptions, progress chan<- tasks.ProgressUpdate) (*models.MigrationReport, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	view   ViewState
	items  ItemLister
	runner MigrationRunner
	opts   tasks.RunOptions

	width    int
	height   int
	itemList list.Model
	loaded   []*models.Item

	progressChan chan tasks.ProgressUpdate
	doneChan     chan runComplete
	progress     tasks.ProgressUpdate
	recent       []string
	stopping     bool
	report       *models.MigrationReport

	err     error
	bar     progress.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates a new TUI model that migrates with runner using opts.
func NewModel(ctx context.Context, items ItemLister, runner MigrationRunner, opts tasks.RunOptions) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Journal"

	return &Model{
		ctx:      ctx,
		view:     JournalView,
		items:    items,
		runner:   runner,
		opts:     opts,
		itemList: l,
		bar:      progress.New(progress.WithDefaultGradient()),
		spinner:  s,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Report returns the last run's report, or nil if no run finished.
func (m *Model) Report() *models.MigrationReport {
	return m.report
}

// Err returns the error the last run or journal load ended with.
func (m *Model) Err() error {
	return m.err
}

// Init loads the journal.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadItems(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.itemList.SetSize(max(msg.Width-4, 0), max(msg.Height-8, 0))
		m.bar.Width = min(max(msg.Width-8, 10), 80)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case JournalView:
			return m.handleJournalKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			return m.handleRunKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == JournalView {
		m.itemList, cmd = m.itemList.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgItemsLoaded:
		data := msg.data.(itemsLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.loaded = data.items
		m.itemList.Title = journalTitle(data.items)
		return m, m.itemList.SetItems(journalItems(data.items))

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = update
		if update.Phase == tasks.ItemFinished {
			m.recent = append(m.recent, update.Message)
			if len(m.recent) > recentOutcomes {
				m.recent = m.recent[len(m.recent)-recentOutcomes:]
			}
		}
		return m, m.waitForProgress()

	case MsgRunComplete:
		data := msg.data.(runComplete)
		m.report = data.report
		m.err = data.err
		m.view = ResultView
		m.progressChan = nil
		m.doneChan = nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == JournalView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case JournalView:
		return m.renderJournal()
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleJournalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.itemList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.itemList, cmd = m.itemList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.start):
		if m.err == nil {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.itemList, cmd = m.itemList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = JournalView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = RunView
		return m, m.startRun()
	}
	return m, nil
}

func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.stop) || key.Matches(msg, m.keys.quit) {
		if m.cancel != nil {
			m.cancel()
		}
		m.stopping = true
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = JournalView
		m.err = nil
		m.recent = nil
		m.stopping = false
		m.progress = tasks.ProgressUpdate{}
		return m, m.loadItems()
	}
	return m, nil
}

func (m *Model) loadItems() tea.Cmd {
	return func() tea.Msg {
		items, err := m.items.ListItems(m.ctx, models.ItemFilter{})
		return itemsLoadedMsg(items, err)
	}
}

// startRun launches the migration in a goroutine. Progress is read one update per command; the result follows once
// the progress channel closes.
func (m *Model) startRun() tea.Cmd {
	runCtx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan runComplete, 1)
	m.report = nil
	m.recent = nil

	progressChan, doneChan := m.progressChan, m.doneChan
	go func() {
		report, err := m.runner.Run(runCtx, m.opts, progressChan)
		doneChan <- runComplete{report: report, err: err}
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, doneChan := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progressChan == nil {
			return runCompleteMsg(m.report, m.err)
		}

		update, ok := <-progressChan
		if !ok {
			done := <-doneChan
			return runCompleteMsg(done.report, done.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderJournal() string {
	helpKeys := []key.Binding{m.keys.start, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.itemList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	target := m.opts.ChannelRef
	if target == "" {
		target = "the journal"
	}
	title := styles.title.Render(fmt.Sprintf("Migrate %s to PeerTube?", target))

	limit := "all pending"
	if m.opts.ItemLimit > 0 {
		limit = fmt.Sprintf("up to %d", m.opts.ItemLimit)
	}
	info := fmt.Sprintf("\nPending: %d\nItems: %s\n", countPending(m.loaded), limit)
	if m.opts.RetryFailed {
		info += "Failed items will be retried\n"
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRun() string {
	title := styles.title.Render("Migrating")

	var phase string
	switch m.progress.Phase {
	case tasks.SyncChannel, tasks.FetchPage:
		phase = "Listing channel"
	case tasks.SelectItems:
		phase = "Selecting items"
	case tasks.AcquireItem:
		phase = "Downloading"
	case tasks.UploadItem:
		phase = "Uploading"
	case tasks.ItemFinished, tasks.RunFinished:
		phase = "Transferring"
	default:
		phase = "Starting"
	}
	if m.stopping {
		phase = styles.warn.Render("Stopping after current items")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s %s\n", title, m.spinner.View(), phase)
	if m.progress.Total > 0 {
		b.WriteString(m.bar.ViewAs(ratio(m.progress.Step, m.progress.Total)))
		b.WriteString("\n")
	}
	if m.progress.Message != "" {
		b.WriteString(styles.help.Render(m.progress.Message))
		b.WriteString("\n")
	}
	for _, line := range m.recent {
		b.WriteString("\n  " + line)
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.stop})
	return fmt.Sprintf("%s\n\n%s", b.String(), helpView)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.report == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Migration failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}

	var title string
	switch {
	case m.err != nil:
		title = styles.err.Render(fmt.Sprintf("✗ Migration stopped: %v", m.err))
	case m.report.Canceled:
		title = styles.warn.Render("Migration canceled")
	default:
		title = styles.ok.Render("✓ Migration complete!")
	}

	info := fmt.Sprintf(
		"\nChannel: %s\nDiscovered: %d\nSelected: %d\nUploaded: %d\nFailed: %d\nSkipped: %d\nElapsed: %s",
		m.report.ChannelID,
		m.report.TotalDiscovered,
		m.report.Selected,
		m.report.Uploaded,
		m.report.Failed,
		m.report.Skipped,
		m.report.Elapsed().Round(time.Millisecond),
	)

	var failed string
	if len(m.report.FailedItemIDs) > 0 {
		failed = fmt.Sprintf("\n\n%s", styles.warn.Render(fmt.Sprintf("%d items failed:", len(m.report.FailedItemIDs))))
		for _, id := range m.report.FailedItemIDs {
			failed += fmt.Sprintf("\n  • %s", id)
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}

func journalTitle(items []*models.Item) string {
	return fmt.Sprintf("Journal: %d items, %d pending", len(items), countPending(items))
}

func countPending(items []*models.Item) int {
	n := 0
	for _, item := range items {
		if item.Pending() {
			n++
		}
	}
	return n
}

func ratio(step, total int) float64 {
	if total <= 0 {
		return 0
	}
	return min(max(float64(step)/float64(total), 0), 1)
}
