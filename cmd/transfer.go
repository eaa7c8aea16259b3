package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/yt2pt/internal/formatter"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/desertthunder/yt2pt/internal/tasks"
	"github.com/desertthunder/yt2pt/internal/telemetry"
	"github.com/urfave/cli/v3"
)

// Sync records the source channel's uploads in the journal.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	channel, err := r.channelRef(cmd.String("channel"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, _, err := r.newFetcher(ctx, telemetry.Disabled(), telemetry.NoopMetrics())
	if err != nil {
		return err
	}

	progressCh, done := r.printProgress()
	result, err := fetcher.SyncCatalog(ctx, channel, progressCh)
	close(progressCh)
	<-done

	if result != nil {
		r.writePlain("\nChannel: %s (%s)\n", result.Channel.DisplayName, result.Channel.ChannelID)
		r.writePlain("Pages: %d, items seen: %d, new: %d\n", result.Pages, result.ItemsSeen, result.NewItems)
	}
	return err
}

// Run syncs the channel and transfers pending items, printing progress and a report.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	opts := tasks.RunOptions{
		ItemLimit:   r.config.Transfer.ItemLimit,
		RetryFailed: r.config.Transfer.RetryFailed || cmd.Bool("retry-failed"),
		SkipSync:    cmd.Bool("skip-sync"),
		Workers:     int(cmd.Int("workers")),
	}
	if limit := int(cmd.Int("limit")); limit >= 0 {
		opts.ItemLimit = limit
	}
	if !opts.SkipSync {
		if opts.ChannelRef, err = r.channelRef(cmd.String("channel")); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Bool("tui") {
		return r.runTUI(ctx, cmd.String("mode"), opts, format)
	}

	p, err := r.newPipeline(ctx, cmd.String("mode"))
	if err != nil {
		return err
	}
	defer func() {
		if err := p.close(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to release resources", "error", err)
		}
	}()

	r.logger.Info("starting migration", "channel", opts.ChannelRef, "limit", opts.ItemLimit, "mode", r.config.Destination.Mode)
	if format == formatter.FormatText {
		r.writePlain("Starting migration...\n")
		r.writePlain("Source: %s\n", displayChannel(opts))
		r.writePlain("Destination: %s (channel %s)\n\n", r.config.Destination.Instance, r.config.Destination.ChannelID)
	}

	var progressCh chan tasks.ProgressUpdate
	done := make(chan struct{})
	if format == formatter.FormatText {
		progressCh, done = r.printProgress()
	} else {
		close(done)
	}

	report, runErr := p.coordinator.Run(ctx, opts, progressCh)
	if progressCh != nil {
		close(progressCh)
	}
	<-done

	r.logTotals(context.WithoutCancel(ctx), p.telemetry)
	return r.finishReport(report, runErr, format)
}

// finishReport prints the report (also after a fatal error, when one exists) and returns runErr.
func (r *Runner) finishReport(report *models.MigrationReport, runErr error, format formatter.Format) error {
	if report != nil {
		if format == formatter.FormatText {
			r.writePlain("\n")
			r.writePlainHeader(reportTitle(report, runErr))
		}
		if err := formatter.WriteReport(r.output, report, format); err != nil {
			return err
		}
	}
	return runErr
}

// printProgress renders progress updates as lines until the returned channel is closed.
//
// done is closed once every update has been written.
func (r *Runner) printProgress() (chan tasks.ProgressUpdate, chan struct{}) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.SyncChannel:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.FetchPage:
				r.writePlain("   %s\n", update.Message)
			case tasks.SelectItems:
				r.writePlain("\n🔍 %s\n", update.Message)
			case tasks.AcquireItem, tasks.UploadItem:
				r.logger.Debug(update.Message)
			case tasks.ItemFinished:
				r.writePlain("   %s\n", update.Message)
			case tasks.RunFinished:
				r.writePlain("\n📝 %s\n", update.Message)
			}
		}
	}()

	return progressCh, done
}

// channelRef picks the channel flag or the configured source channel.
func (r *Runner) channelRef(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if r.config.Source.ChannelID != "" {
		return r.config.Source.ChannelID, nil
	}
	return "", fmt.Errorf("%w: --channel or source.channel_id", shared.ErrMissingArgument)
}

func displayChannel(opts tasks.RunOptions) string {
	if opts.SkipSync {
		return "journal (sync skipped)"
	}
	return opts.ChannelRef
}

func reportTitle(report *models.MigrationReport, err error) string {
	switch {
	case err != nil:
		return "Migration Stopped"
	case report.Canceled:
		return "Migration Canceled"
	default:
		return "Migration Complete!"
	}
}
