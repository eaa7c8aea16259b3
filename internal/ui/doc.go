// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through one migration:
//  1. [JournalView] : Browse journal items and their status
//  2. [ConfirmView] : Confirm the run
//  3. [RunView] : Monitor progress (spinner, progress bar, recent outcomes)
//  4. [ResultView] : Display the run report and failed items
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the migration runner, one update per command, so the view never blocks the run.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, s, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
