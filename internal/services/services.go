// package services defines the collaborator interfaces the migration pipeline talks to
//
// YouTube (source), PeerTube (destination), yt-dlp and HTTP (assets)
package services

import (
	"context"
	"io"
	"time"
)

// CatalogClient lists a source channel's items.
type CatalogClient interface {
	// GetChannelMetadata resolves a channel reference to its name, item count and pagination root.
	GetChannelMetadata(ctx context.Context, channelRef string) (*ChannelMetadata, error)

	// ListPage fetches one page under paginationRoot. An empty cursor requests the first page.
	// An empty NextCursor in the result marks the last page.
	ListPage(ctx context.Context, paginationRoot, cursor string) (*Page, error)
}

// AssetClient downloads an item's media.
type AssetClient interface {
	// FetchAsset opens a stream of the media behind sourceRef. The caller must close Body.
	// A read error on Body, or a non-nil error from Close, means the transfer did not complete.
	FetchAsset(ctx context.Context, sourceRef string) (*Asset, error)
}

// AuthClient issues destination access tokens.
type AuthClient interface {
	AccessToken(ctx context.Context) (*Token, error)
}

// ImportClient submits items to the destination.
type ImportClient interface {
	SubmitImport(ctx context.Context, req ImportRequest, token *Token) (*ImportResult, error)
}

// ChannelMetadata describes a source channel.
type ChannelMetadata struct {
	ID             string
	Name           string
	ItemCount      int
	PaginationRoot string // uploads playlist
}

// CatalogEntry is one item as listed by the source.
type CatalogEntry struct {
	ItemID      string
	Title       string
	Description string
	SourceRef   string
	PublishedAt time.Time
}

// Page is one page of a catalog listing.
type Page struct {
	Items      []CatalogEntry
	NextCursor string
}

// Asset is an open media stream.
type Asset struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	ContentType string
}

// Token is a destination bearer token.
//
// A zero ExpiresAt means the issuer did not say when it expires.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is usable at now, leaving skew before expiry.
func (t *Token) Valid(now time.Time, skew time.Duration) bool {
	if t == nil || t.Value == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(skew).Before(t.ExpiresAt)
}

// ImportRequest describes one submission.
//
// When AssetPath is set the file is uploaded; otherwise the destination imports TargetURL itself.
type ImportRequest struct {
	ChannelID      string
	Title          string
	Description    string
	TargetURL      string
	AssetPath      string
	IdempotencyKey string
}

// ImportResult identifies the created destination object.
type ImportResult struct {
	RemoteID string
	UUID     string
}

// Ref returns the most stable identifier of the result.
func (r *ImportResult) Ref() string {
	if r.UUID != "" {
		return r.UUID
	}
	return r.RemoteID
}
