package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/services"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/desertthunder/yt2pt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const watchURL = "https://www.youtube.com/watch?v="

// ChannelStore persists channel rows.
type ChannelStore interface {
	UpsertChannel(ctx context.Context, ch *models.Channel) error
}

// ItemUpserter persists a page of discovered items.
type ItemUpserter interface {
	UpsertItems(ctx context.Context, items []*models.Item) (int, error)
}

// SyncResult summarizes a catalog sync.
type SyncResult struct {
	Channel   *models.Channel
	Pages     int
	ItemsSeen int
	NewItems  int
}

// CatalogFetcher walks a source channel's listing and records every entry in the journal.
type CatalogFetcher struct {
	catalog  services.CatalogClient
	channels ChannelStore
	items    ItemUpserter
	logger   *log.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// NewCatalogFetcher creates a CatalogFetcher. A nil logger, metrics or tracer is replaced with a default.
func NewCatalogFetcher(catalog services.CatalogClient, channels ChannelStore, items ItemUpserter, logger *log.Logger, metrics *telemetry.Metrics, tracer trace.Tracer) *CatalogFetcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(telemetry.ScopeName)
	}
	return &CatalogFetcher{catalog: catalog, channels: channels, items: items, logger: logger, metrics: metrics, tracer: tracer}
}

// SyncCatalog resolves channelRef and upserts every listed item, one page per transaction.
//
// Items are never removed, and items already in the journal keep their status. Source failures wrap
// [shared.ErrRemoteFetch]; journal failures wrap [shared.ErrStorage].
func (f *CatalogFetcher) SyncCatalog(ctx context.Context, channelRef string, progress chan<- ProgressUpdate) (result *SyncResult, err error) {
	if channelRef == "" {
		return nil, fmt.Errorf("%w: channel reference", shared.ErrMissingArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, f.tracer, "sync_catalog", attribute.String("channel.ref", channelRef))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	meta, err := f.catalog.GetChannelMetadata(ctx, channelRef)
	if err != nil {
		return nil, remoteFetchErr("channel metadata", err)
	}

	ch := &models.Channel{
		ChannelID:         meta.ID,
		DisplayName:       meta.Name,
		SourcePlaylistRef: meta.PaginationRoot,
		TotalItemCount:    meta.ItemCount,
	}
	if err := f.channels.UpsertChannel(ctx, ch); err != nil {
		return nil, journalErr(err)
	}

	logger := shared.WithLogger(f.logger, "channel", ch.ChannelID)
	logger.Info("syncing catalog", "name", ch.DisplayName, "videos", ch.TotalItemCount)
	sendProgress(progress, syncChannelUpdate(ch))

	result = &SyncResult{Channel: ch}
	seen := map[string]bool{}
	cursor := ""

	for {
		page, err := f.catalog.ListPage(ctx, meta.PaginationRoot, cursor)
		if err != nil {
			return result, remoteFetchErr(fmt.Sprintf("page %d", result.Pages+1), err)
		}
		result.Pages++
		f.metrics.PagesFetched.Add(ctx, 1)

		items := make([]*models.Item, 0, len(page.Items))
		for _, entry := range page.Items {
			if entry.ItemID == "" {
				continue
			}
			items = append(items, itemFromEntry(ch.ChannelID, entry))
		}

		if len(items) > 0 {
			created, err := f.items.UpsertItems(ctx, items)
			if err != nil {
				return result, journalErr(err)
			}
			result.NewItems += created
			result.ItemsSeen += len(items)
			f.metrics.ItemsDiscovered.Add(ctx, int64(len(items)))
		}

		logger.Debug("fetched page", "page", result.Pages, "items", len(items))
		sendProgress(progress, collectedUpdate(result.ItemsSeen, max(ch.TotalItemCount, result.ItemsSeen)))

		if page.NextCursor == "" {
			break
		}
		if seen[page.NextCursor] || page.NextCursor == cursor {
			return result, fmt.Errorf("%w: source repeated page cursor %q", shared.ErrRemoteFetch, page.NextCursor)
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}

	logger.Info("catalog synced", "pages", result.Pages, "seen", result.ItemsSeen, "new", result.NewItems)
	return result, nil
}

func itemFromEntry(channelID string, entry services.CatalogEntry) *models.Item {
	ref := entry.SourceRef
	if ref == "" {
		ref = watchURL + entry.ItemID
	}
	return &models.Item{
		ItemID:      entry.ItemID,
		ChannelID:   channelID,
		SourceRef:   ref,
		Title:       entry.Title,
		Description: entry.Description,
	}
}

// remoteFetchErr wraps a source failure. Cancellation passes through unchanged.
func remoteFetchErr(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, shared.ErrRemoteFetch) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", shared.ErrRemoteFetch, what, err)
}
