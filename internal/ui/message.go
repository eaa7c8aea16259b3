package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgItemsLoaded MsgKind = iota
	MsgProgressUpdate
	MsgRunComplete
)

type itemsLoaded struct {
	items []*models.Item
	err   error
}

type runComplete struct {
	report *models.MigrationReport
	err    error
}

// itemsLoadedMsg is the constructor for [MsgItemsLoaded]
func itemsLoadedMsg(items []*models.Item, err error) Msg {
	return Msg{kind: MsgItemsLoaded, data: itemsLoaded{items, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(report *models.MigrationReport, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runComplete{report, err}}
}
