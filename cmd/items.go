package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/yt2pt/internal/formatter"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/urfave/cli/v3"
)

// ItemsList lists journal items, optionally filtered, to stdout or a file.
func (r *Runner) ItemsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	filter := models.ItemFilter{
		ChannelID: cmd.String("channel"),
		Limit:     int(cmd.Int("limit")),
	}
	if s := cmd.String("status"); s != "" {
		if filter.Status, err = models.ParseItemStatus(s); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidArgument, err)
		}
	}

	journal, err := r.openJournal(ctx)
	if err != nil {
		return err
	}
	items, err := journal.Items.ListItems(ctx, filter)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteItemsFile(items, path); err != nil {
			return err
		}
		r.logger.Info("items exported", "path", path, "count", len(items))
		return nil
	}
	return formatter.WriteItems(r.output, items, format)
}

// ItemsShow prints one item.
func (r *Runner) ItemsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: item id", shared.ErrMissingArgument)
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	journal, err := r.openJournal(ctx)
	if err != nil {
		return err
	}
	item, err := journal.Items.GetItem(ctx, id)
	if err != nil {
		return err
	}

	switch format {
	case formatter.FormatJSON:
		return r.writeJSON(item, true)
	case formatter.FormatCSV:
		return formatter.WriteItems(r.output, []*models.Item{item}, format)
	default:
		_, err := r.output.Write(formatter.ItemToText(item))
		return err
	}
}

// ItemsRetry moves failed items back to pending so the next run picks them up.
func (r *Runner) ItemsRetry(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()

	journal, err := r.openJournal(ctx)
	if err != nil {
		return err
	}
	n, err := journal.Items.ResetFailed(ctx, ids...)
	if err != nil {
		return err
	}

	r.logger.Info("reset failed items", "count", n)
	return r.writePlain("%d items moved back to pending\n", n)
}

// Status prints item counts by status.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	journal, err := r.openJournal(ctx)
	if err != nil {
		return err
	}
	counts, err := journal.Items.CountByStatus(ctx)
	if err != nil {
		return err
	}

	if format == formatter.FormatJSON {
		return r.writeJSON(counts, true)
	}
	_, err = r.output.Write(formatter.StatusCountsToText(counts))
	return err
}

// Runs prints the most recent runs.
func (r *Runner) Runs(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	journal, err := r.openJournal(ctx)
	if err != nil {
		return err
	}
	runs, err := journal.Runs.List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return formatter.WriteRuns(r.output, runs, format)
}
