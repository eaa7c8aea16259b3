package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/yt2pt/internal/lock"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/services"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/desertthunder/yt2pt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// TransferMode selects how an item reaches the destination.
type TransferMode string

const (
	// ModeUpload downloads the asset into the staging directory, then uploads the file.
	ModeUpload TransferMode = "upload"
	// ModeImport asks the destination to fetch the source URL itself.
	ModeImport TransferMode = "import"
)

// ParseTransferMode parses "upload" or "import". An empty string means upload.
func ParseTransferMode(s string) (TransferMode, error) {
	switch TransferMode(s) {
	case "", ModeUpload:
		return ModeUpload, nil
	case ModeImport:
		return ModeImport, nil
	default:
		return "", fmt.Errorf("%w: transfer mode must be upload or import, got %q", shared.ErrInvalidArgument, s)
	}
}

// TransferOutcome is the per-item result of a transfer.
type TransferOutcome string

const (
	OutcomeDone    TransferOutcome = "done"
	OutcomeFailed  TransferOutcome = "failed"
	OutcomeSkipped TransferOutcome = "skipped"
)

// TransferResult describes what happened to one item.
type TransferResult struct {
	ItemID    string          `json:"item_id"`
	Outcome   TransferOutcome `json:"outcome"`
	RemoteRef string          `json:"remote_ref,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`
}

// ItemStore is the part of the journal a transfer reads and writes.
type ItemStore interface {
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	SetStatus(ctx context.Context, itemID string, status models.ItemStatus) error
	MarkDownloaded(ctx context.Context, itemID, localRef string) error
	MarkUploaded(ctx context.Context, itemID, destRef string) error
	MarkFailed(ctx context.Context, itemID, reason string) error
}

// TransferDeps wires a [Transferer]. Zero values get defaults, except Items, Assets (upload mode), Importer and Tokens.
type TransferDeps struct {
	Items       ItemStore
	Assets      services.AssetClient
	Importer    services.ImportClient
	Tokens      *TokenCache
	Locker      lock.Locker
	Stager      *Stager
	Policy      RetryPolicy
	Mode        TransferMode
	DestChannel string
	KeepStaged  bool
	Logger      *log.Logger
	Metrics     *telemetry.Metrics
	Tracer      trace.Tracer
}

// Transferer moves single items from the source to the destination, recording every step in the journal.
type Transferer struct {
	items       ItemStore
	assets      services.AssetClient
	importer    services.ImportClient
	tokens      *TokenCache
	locker      lock.Locker
	stager      *Stager
	policy      RetryPolicy
	mode        TransferMode
	destChannel string
	keepStaged  bool
	logger      *log.Logger
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
}

// NewTransferer creates a Transferer from deps.
func NewTransferer(deps TransferDeps) *Transferer {
	t := &Transferer{
		items:       deps.Items,
		assets:      deps.Assets,
		importer:    deps.Importer,
		tokens:      deps.Tokens,
		locker:      deps.Locker,
		stager:      deps.Stager,
		policy:      deps.Policy,
		mode:        deps.Mode,
		destChannel: deps.DestChannel,
		keepStaged:  deps.KeepStaged,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
	}
	if t.locker == nil {
		t.locker = lock.NewLocalLocker()
	}
	if t.stager == nil {
		t.stager = NewStager("")
	}
	if t.policy.MaxAttempts == 0 {
		t.policy = DefaultRetryPolicy()
	}
	if t.mode == "" {
		t.mode = ModeUpload
	}
	if t.logger == nil {
		t.logger = shared.NewLogger(nil)
	}
	if t.metrics == nil {
		t.metrics = telemetry.NoopMetrics()
	}
	if t.tracer == nil {
		t.tracer = nooptrace.NewTracerProvider().Tracer(telemetry.ScopeName)
	}
	return t
}

// Mode returns the transfer mode.
func (t *Transferer) Mode() TransferMode {
	return t.mode
}

// Transfer drives one item to done or failed.
//
// Per-item failures are reported in the result with a nil error. The returned error is non-nil only when the whole
// run must stop: journal failures, rejected credentials, or missing configuration. In that case the item is left in a
// status the next run resumes from.
func (t *Transferer) Transfer(ctx context.Context, item *models.Item, progress chan<- ProgressUpdate) (res TransferResult, err error) {
	start := time.Now()
	res = TransferResult{ItemID: item.ItemID}

	ctx, span := telemetry.StartSpan(ctx, t.tracer, "transfer",
		attribute.String("item.id", item.ItemID),
		attribute.String("transfer.mode", string(t.mode)),
	)
	t.metrics.ActiveTransfers.Add(ctx, 1)
	defer func() {
		t.metrics.ActiveTransfers.Add(ctx, -1)
		res.Elapsed = time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			t.metrics.RecordOutcome(ctx, string(res.Outcome), res.Elapsed)
		}
		span.SetAttributes(attribute.String("transfer.outcome", string(res.Outcome)))
		span.End()
	}()

	unlock, err := t.locker.TryLock(ctx, lock.ItemKey(item.ItemID))
	if lock.IsLocked(err) {
		res.Outcome = OutcomeSkipped
		res.Reason = "transfer already in flight"
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%w: lock %s: %w", shared.ErrStorage, item.ItemID, err)
	}
	defer unlock()

	cur, err := t.items.GetItem(ctx, item.ItemID)
	if err != nil {
		return res, journalErr(err)
	}

	switch {
	case cur.Uploaded:
		res.Outcome = OutcomeDone
		res.RemoteRef = cur.DestinationRef
		return res, nil
	case cur.Status == models.StatusFailed:
		res.Outcome = OutcomeSkipped
		res.Reason = "item is failed"
		return res, nil
	}

	logger := shared.WithLogger(t.logger, "item", cur.ItemID)

	var assetPath string
	if t.mode == ModeUpload {
		if assetPath, err = t.acquire(ctx, cur, logger, progress); err != nil {
			return t.settle(ctx, cur, res, logger, err)
		}
	}

	ref, err := t.upload(ctx, cur, assetPath, logger, progress)
	if err != nil {
		return t.settle(ctx, cur, res, logger, err)
	}

	if err := t.items.MarkUploaded(ctx, cur.ItemID, ref); err != nil {
		return res, journalErr(err)
	}
	if assetPath != "" && !t.keepStaged {
		if err := t.stager.Remove(assetPath); err != nil {
			logger.Warn("could not remove staged asset", "path", assetPath, "err", err)
		}
	}

	logger.Info("transferred", "remote", ref)
	res.Outcome = OutcomeDone
	res.RemoteRef = ref
	return res, nil
}

// acquire makes sure a complete staged asset exists for cur and returns its path.
func (t *Transferer) acquire(ctx context.Context, cur *models.Item, logger *log.Logger, progress chan<- ProgressUpdate) (string, error) {
	if cur.Downloaded && t.stager.Exists(cur.LocalAssetRef) {
		logger.Debug("reusing staged asset", "path", cur.LocalAssetRef)
		if cur.Status == models.StatusAcquiring {
			if err := t.items.SetStatus(ctx, cur.ItemID, models.StatusStaged); err != nil {
				return "", journalErr(err)
			}
			cur.Status = models.StatusStaged
		}
		return cur.LocalAssetRef, nil
	}
	if t.assets == nil {
		return "", fmt.Errorf("%w: no asset client for upload mode", shared.ErrMissingConfig)
	}

	if cur.Status == models.StatusUploading {
		if err := t.items.SetStatus(ctx, cur.ItemID, models.StatusPending); err != nil {
			return "", journalErr(err)
		}
	}
	if err := t.items.SetStatus(ctx, cur.ItemID, models.StatusAcquiring); err != nil {
		return "", journalErr(err)
	}
	cur.Status = models.StatusAcquiring
	sendProgress(progress, acquireUpdate(cur))

	path, err := retry(ctx, t.policy, func(attempt int) (string, error) {
		asset, err := t.assets.FetchAsset(ctx, cur.SourceRef)
		if err != nil {
			return "", err
		}
		return t.stage(ctx, cur.ItemID, asset.Body, logger)
	}, t.onRetry(ctx, logger, "acquire"))
	if err != nil {
		return "", err
	}

	if err := t.items.MarkDownloaded(ctx, cur.ItemID, path); err != nil {
		return "", journalErr(err)
	}
	cur.Status = models.StatusStaged
	cur.Downloaded = true
	cur.LocalAssetRef = path
	return path, nil
}

// stage copies body into the staging directory. A stream that fails on close did not complete and is discarded.
func (t *Transferer) stage(ctx context.Context, itemID string, body io.ReadCloser, logger *log.Logger) (string, error) {
	path, n, err := t.stager.Stage(ctx, itemID, body)
	cerr := body.Close()
	if err != nil {
		return "", err
	}
	if cerr != nil {
		_ = t.stager.Remove(path)
		return "", cerr
	}
	logger.Debug("staged asset", "path", path, "bytes", n)
	return path, nil
}

// upload submits cur to the destination and returns the remote reference.
//
// Rejected credentials return the item to the status it resumes from.
func (t *Transferer) upload(ctx context.Context, cur *models.Item, assetPath string, logger *log.Logger, progress chan<- ProgressUpdate) (string, error) {
	if t.importer == nil || t.tokens == nil {
		return "", fmt.Errorf("%w: no destination client", shared.ErrMissingConfig)
	}

	resumeTo := models.StatusPending
	if t.mode == ModeUpload {
		resumeTo = models.StatusStaged
	} else if cur.Status == models.StatusAcquiring {
		if err := t.items.SetStatus(ctx, cur.ItemID, models.StatusPending); err != nil {
			return "", journalErr(err)
		}
	}

	if err := t.items.SetStatus(ctx, cur.ItemID, models.StatusUploading); err != nil {
		return "", journalErr(err)
	}
	cur.Status = models.StatusUploading
	sendProgress(progress, uploadUpdate(cur))

	req := services.ImportRequest{
		ChannelID:      t.destChannel,
		Title:          cur.Title,
		Description:    cur.Description,
		IdempotencyKey: cur.IdempotencyKey,
	}
	if t.mode == ModeUpload {
		req.AssetPath = assetPath
	} else {
		req.TargetURL = cur.SourceRef
	}

	result, err := retry(ctx, t.policy, func(attempt int) (*services.ImportResult, error) {
		return t.submit(ctx, req)
	}, t.onRetry(ctx, logger, "upload"))
	if err != nil {
		if errors.Is(err, shared.ErrAuth) {
			if rerr := t.items.SetStatus(ctx, cur.ItemID, resumeTo); rerr != nil {
				return "", journalErr(rerr)
			}
		}
		return "", err
	}

	ref := result.Ref()
	if ref == "" {
		return "", fmt.Errorf("%w: destination returned no video id", shared.ErrRejected)
	}
	return ref, nil
}

// token returns a cached or fresh token. Rejected credentials get one more fetch before they are fatal.
func (t *Transferer) token(ctx context.Context) (*services.Token, error) {
	token, err := t.tokens.Get(ctx)
	if err == nil || !errors.Is(err, shared.ErrAuth) {
		return token, err
	}

	t.logger.Warn("credential fetch rejected, re-authenticating", "err", err)
	t.tokens.Invalidate(nil)
	return t.tokens.Get(ctx)
}

// submit sends req with a cached token, re-authenticating once on a 401.
func (t *Transferer) submit(ctx context.Context, req services.ImportRequest) (*services.ImportResult, error) {
	token, err := t.token(ctx)
	if err != nil {
		return nil, err
	}

	result, err := t.importer.SubmitImport(ctx, req, token)
	if !shared.IsUnauthorized(err) {
		return result, err
	}

	t.tokens.Invalidate(token)
	if token, err = t.tokens.Get(ctx); err != nil {
		return nil, err
	}

	result, err = t.importer.SubmitImport(ctx, req, token)
	if shared.IsUnauthorized(err) {
		return nil, fmt.Errorf("%w: destination rejected a fresh token: %w", shared.ErrAuth, err)
	}
	return result, err
}

// settle records a per-item failure or passes a run-level error through.
func (t *Transferer) settle(ctx context.Context, cur *models.Item, res TransferResult, logger *log.Logger, err error) (TransferResult, error) {
	if isRunFatal(err) {
		logger.Error("transfer aborted", "status", cur.Status, "err", err)
		return res, err
	}

	reason := err.Error()
	if merr := t.items.MarkFailed(ctx, cur.ItemID, reason); merr != nil {
		return res, journalErr(merr)
	}

	logger.Warn("transfer failed", "err", err)
	res.Outcome = OutcomeFailed
	res.Reason = reason
	return res, nil
}

func (t *Transferer) onRetry(ctx context.Context, logger *log.Logger, step string) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		t.metrics.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
		logger.Warn("retrying", "step", step, "wait", wait, "err", err)
	}
}

// isRunFatal reports whether err must stop the run instead of failing a single item.
func isRunFatal(err error) bool {
	return shared.IsFatal(err) ||
		errors.Is(err, shared.ErrMissingConfig) ||
		errors.Is(err, shared.ErrMissingCredentials) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// journalErr marks any journal failure as a storage failure.
func journalErr(err error) error {
	if errors.Is(err, shared.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrStorage, err)
}
