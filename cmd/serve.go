package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/yt2pt/internal/server"
	"github.com/desertthunder/yt2pt/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP trigger layer until interrupted. Background runs are cancelled on shutdown and awaited.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := r.newPipeline(ctx, cmd.String("mode"))
	if err != nil {
		return err
	}
	defer func() {
		if err := p.close(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to release resources", "error", err)
		}
	}()

	defaults := tasks.RunOptions{
		ChannelRef:  r.config.Source.ChannelID,
		ItemLimit:   r.config.Transfer.ItemLimit,
		RetryFailed: r.config.Transfer.RetryFailed,
	}
	handler := server.NewMigrationHandler(ctx, p.coordinator, p.journal.Items, p.journal.Runs, defaults, r.logger)
	router := server.NewRouter(handler, r.logger)

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	err = server.Serve(ctx, addr, router, r.logger)
	handler.Wait()
	r.logTotals(context.WithoutCancel(ctx), p.telemetry)
	return err
}
