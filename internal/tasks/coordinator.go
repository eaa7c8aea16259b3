package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/repositories"
	"github.com/desertthunder/yt2pt/internal/shared"
)

const (
	DefaultWorkers = 2
	MaxWorkers     = 8
)

// RunOptions selects what a migration run does.
type RunOptions struct {
	ChannelRef  string // source channel id or @handle
	ItemLimit   int    // pending items to attempt; <= 0 means all
	RetryFailed bool   // reset failed items to pending before selecting
	SkipSync    bool   // work from the journal without listing the source
	Workers     int    // overrides the coordinator's pool size when > 0
}

// transferJob is a unit of work sent to a worker.
type transferJob struct {
	index int
	item  *models.Item
}

// transferDone is a worker's answer for one job.
type transferDone struct {
	index  int
	result TransferResult
	err    error
}

// Coordinator runs the migration pipeline: sync the catalog, select pending items, transfer them with a worker pool.
//
// Only one run may be active per Coordinator.
type Coordinator struct {
	journal  *repositories.Journal
	fetcher  *CatalogFetcher
	transfer *Transferer
	workers  int
	logger   *log.Logger

	active atomic.Bool
}

// NewCoordinator creates a Coordinator. workers is clamped to [1, MaxWorkers]; zero selects DefaultWorkers.
func NewCoordinator(journal *repositories.Journal, fetcher *CatalogFetcher, transfer *Transferer, workers int, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Coordinator{
		journal:  journal,
		fetcher:  fetcher,
		transfer: transfer,
		workers:  clampWorkers(workers),
		logger:   logger,
	}
}

// Active reports whether a run is in progress.
func (c *Coordinator) Active() bool {
	return c.active.Load()
}

// Run executes one migration run and records it in the journal.
//
// Cancelling ctx stops dispatching new items; transfers already started finish on a detached context so every item
// ends in a resumable or terminal status. A cancelled run returns its partial report with Canceled set and a nil
// error. Run-level failures return the partial report together with the error.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions, progress chan<- ProgressUpdate) (*models.MigrationReport, error) {
	if !c.active.CompareAndSwap(false, true) {
		return nil, shared.ErrRunInProgress
	}
	defer c.active.Store(false)

	report := &models.MigrationReport{
		ChannelID:     opts.ChannelRef,
		FailedItemIDs: []string{},
		StartedAt:     time.Now().UTC(),
	}

	if ctx.Err() != nil {
		report.Canceled = true
		report.FinishedAt = report.StartedAt
		return report, nil
	}

	if err := c.journal.EnsureSchema(ctx); err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	run := &models.Run{ChannelID: opts.ChannelRef, ItemLimit: opts.ItemLimit}
	if err := c.journal.Runs.Create(ctx, run); err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, journalErr(err)
	}
	report.RunID = run.ID

	logger := shared.WithLogger(c.logger, "run", run.ID)
	logger.Info("migration started", "channel", opts.ChannelRef, "limit", opts.ItemLimit, "mode", c.transfer.Mode())

	err := c.execute(ctx, opts, report, logger, progress)
	report.FinishedAt = time.Now().UTC()

	if ferr := c.finishRun(context.WithoutCancel(ctx), run, report, err); ferr != nil {
		logger.Error("could not record run", "err", ferr)
		if err == nil {
			err = ferr
		}
	}

	sendProgress(progress, runFinishedUpdate(report))
	logger.Info("migration finished",
		"uploaded", report.Uploaded, "failed", report.Failed, "skipped", report.Skipped,
		"canceled", report.Canceled, "elapsed", report.Elapsed())
	return report, err
}

func (c *Coordinator) execute(ctx context.Context, opts RunOptions, report *models.MigrationReport, logger *log.Logger, progress chan<- ProgressUpdate) error {
	if opts.SkipSync {
		total, err := c.countItems(ctx)
		if err != nil {
			return err
		}
		report.TotalDiscovered = total
	} else {
		result, err := c.fetcher.SyncCatalog(ctx, opts.ChannelRef, progress)
		if result != nil {
			report.ChannelID = result.Channel.ChannelID
			report.TotalDiscovered = result.ItemsSeen
		}
		if err != nil {
			if isCanceled(err) {
				report.Canceled = true
				return nil
			}
			return err
		}
	}

	if ctx.Err() != nil {
		report.Canceled = true
		return nil
	}

	if opts.RetryFailed {
		n, err := c.journal.Items.ResetFailed(ctx)
		if err != nil {
			return journalErr(err)
		}
		if n > 0 {
			logger.Info("reset failed items", "count", n)
		}
	}

	pending, err := c.journal.Items.ListPendingItems(ctx, opts.ItemLimit)
	if err != nil {
		if isCanceled(err) {
			report.Canceled = true
			return nil
		}
		return journalErr(err)
	}
	report.Selected = len(pending)
	sendProgress(progress, selectedUpdate(len(pending), opts.ItemLimit))

	if len(pending) == 0 {
		logger.Info("nothing to transfer")
		return nil
	}

	workers := c.workers
	if opts.Workers > 0 {
		workers = clampWorkers(opts.Workers)
	}
	return c.dispatch(ctx, pending, workers, report, logger, progress)
}

// dispatch feeds pending to a pool of workers and folds their results into report in discovery order.
func (c *Coordinator) dispatch(ctx context.Context, pending []*models.Item, workers int, report *models.MigrationReport, logger *log.Logger, progress chan<- ProgressUpdate) error {
	jobs := make(chan transferJob)
	results := make(chan transferDone, len(pending))
	stop := make(chan struct{})
	var stopOnce sync.Once
	var finished atomic.Int64
	var wg sync.WaitGroup

	workCtx := context.WithoutCancel(ctx)
	total := len(pending)

	for range min(workers, total) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-stop:
					continue
				default:
				}
				if ctx.Err() != nil {
					continue
				}
				res, err := c.transfer.Transfer(workCtx, job.item, progress)
				if err != nil {
					stopOnce.Do(func() { close(stop) })
				} else {
					n := finished.Add(1)
					sendProgress(progress, itemFinishedUpdate(int(n), total, res))
				}
				results <- transferDone{index: job.index, result: res, err: err}
			}
		}()
	}

dispatch:
	for i, item := range pending {
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}
		select {
		case <-stop:
			break dispatch
		default:
		}
		select {
		case <-ctx.Done():
			report.Canceled = true
			break dispatch
		case <-stop:
			break dispatch
		case jobs <- transferJob{index: i, item: item}:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	byIndex := make(map[int]transferDone, total)
	var fatal error
	for done := range results {
		byIndex[done.index] = done
	}
	if ctx.Err() != nil && len(byIndex) < total {
		report.Canceled = true
	}

	for i := range pending {
		done, ok := byIndex[i]
		if !ok {
			continue
		}
		if done.err != nil {
			if fatal == nil {
				fatal = done.err
			}
			continue
		}
		switch done.result.Outcome {
		case OutcomeDone:
			report.Uploaded++
		case OutcomeFailed:
			report.Failed++
			report.FailedItemIDs = append(report.FailedItemIDs, done.result.ItemID)
		case OutcomeSkipped:
			report.Skipped++
		}
	}

	if fatal != nil {
		logger.Error("run aborted", "err", fatal)
	}
	return fatal
}

func (c *Coordinator) finishRun(ctx context.Context, run *models.Run, report *models.MigrationReport, runErr error) error {
	run.ChannelID = report.ChannelID
	run.Discovered = report.TotalDiscovered
	run.Uploaded = report.Uploaded
	run.Failed = report.Failed
	run.Skipped = report.Skipped

	switch {
	case runErr != nil:
		run.Status = models.RunFailed
		run.ErrorMessage = runErr.Error()
	case report.Canceled:
		run.Status = models.RunCanceled
	default:
		run.Status = models.RunCompleted
	}

	if err := c.journal.Runs.Finish(ctx, run); err != nil {
		return journalErr(err)
	}
	return nil
}

func (c *Coordinator) countItems(ctx context.Context) (int, error) {
	counts, err := c.journal.Items.CountByStatus(ctx)
	if err != nil {
		return 0, journalErr(err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func clampWorkers(n int) int {
	switch {
	case n <= 0:
		return DefaultWorkers
	case n > MaxWorkers:
		return MaxWorkers
	default:
		return n
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
