package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/yt2pt/internal/formatter"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/desertthunder/yt2pt/internal/tasks"
	"github.com/desertthunder/yt2pt/internal/ui"
)

const tuiLogPath = "./tmp/yt2pt-tui.log"

// runTUI follows a migration in the interactive terminal UI and prints the report once it exits.
func (r *Runner) runTUI(ctx context.Context, mode string, opts tasks.RunOptions, format formatter.Format) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	p, err := r.newPipeline(ctx, mode)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.close(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to release resources", "error", err)
		}
	}()

	model := ui.NewModel(ctx, p.journal.Items, p.coordinator, opts)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	r.logTotals(context.WithoutCancel(ctx), p.telemetry)
	if report := model.Report(); report != nil {
		return r.finishReport(report, model.Err(), format)
	}
	return model.Err()
}
