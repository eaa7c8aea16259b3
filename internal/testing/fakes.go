package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/yt2pt/internal/services"
	"github.com/desertthunder/yt2pt/internal/shared"
)

// ItemIDFromRef extracts the video id from a watch URL or a staged file path.
func ItemIDFromRef(ref string) string {
	if _, id, ok := strings.Cut(ref, "v="); ok {
		return id
	}
	return strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))
}

// script hands out queued errors per item id, one per call.
type script struct {
	mu    sync.Mutex
	errs  map[string][]error
	calls map[string]int
}

func (s *script) next(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[id]++
	queue := s.errs[id]
	if len(queue) == 0 {
		return nil
	}
	s.errs[id] = queue[1:]
	return queue[0]
}

func (s *script) fail(id string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = map[string][]error{}
	}
	s.errs[id] = append(s.errs[id], errs...)
}

func (s *script) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *script) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// FakeCatalog is a [services.CatalogClient] serving a fixed channel listing.
type FakeCatalog struct {
	Meta    services.ChannelMetadata
	Pages   []services.Page
	MetaErr error
	PageErr map[int]error // by page index

	mu        sync.Mutex
	MetaCalls int
	Cursors   []string
}

// NewFakeCatalog builds a channel with n items ("vid001", "vid002", ...) split into pages of pageSize.
func NewFakeCatalog(channelID string, n, pageSize int) *FakeCatalog {
	c := &FakeCatalog{
		Meta: services.ChannelMetadata{
			ID:             channelID,
			Name:           "Test Channel",
			ItemCount:      n,
			PaginationRoot: "UU" + strings.TrimPrefix(channelID, "UC"),
		},
	}
	for start := 0; start < n; start += pageSize {
		var page services.Page
		for i := start; i < min(start+pageSize, n); i++ {
			id := fmt.Sprintf("vid%03d", i+1)
			page.Items = append(page.Items, services.CatalogEntry{
				ItemID:    id,
				Title:     "Video " + id,
				SourceRef: "https://www.youtube.com/watch?v=" + id,
			})
		}
		if start+pageSize < n {
			page.NextCursor = fmt.Sprintf("page-%d", len(c.Pages)+1)
		}
		c.Pages = append(c.Pages, page)
	}
	return c
}

func (c *FakeCatalog) GetChannelMetadata(ctx context.Context, channelRef string) (*services.ChannelMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MetaCalls++
	if c.MetaErr != nil {
		return nil, c.MetaErr
	}
	meta := c.Meta
	return &meta, nil
}

func (c *FakeCatalog) ListPage(ctx context.Context, paginationRoot, cursor string) (*services.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.Cursors = append(c.Cursors, cursor)

	index := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "page-%d", &index); err != nil {
			return nil, shared.NewStatusError(http.StatusBadRequest, []byte("bad page token"))
		}
	}
	if err := c.PageErr[index]; err != nil {
		return nil, err
	}
	if index >= len(c.Pages) {
		return &services.Page{}, nil
	}
	page := c.Pages[index]
	return &page, nil
}

// PageCalls returns the number of ListPage calls.
func (c *FakeCatalog) PageCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Cursors)
}

// FakeAssets is a [services.AssetClient] returning Content for every item, unless an error is scripted.
type FakeAssets struct {
	Content  []byte
	CloseErr error

	calls script
}

// NewFakeAssets creates FakeAssets serving content.
func NewFakeAssets(content string) *FakeAssets {
	return &FakeAssets{Content: []byte(content)}
}

// Fail queues errors returned by the next FetchAsset calls for itemID.
func (a *FakeAssets) Fail(itemID string, errs ...error) { a.calls.fail(itemID, errs...) }

// Calls returns how often itemID was fetched.
func (a *FakeAssets) Calls(itemID string) int { return a.calls.count(itemID) }

// TotalCalls returns the number of fetches across all items.
func (a *FakeAssets) TotalCalls() int { return a.calls.total() }

func (a *FakeAssets) FetchAsset(ctx context.Context, sourceRef string) (*services.Asset, error) {
	if err := a.calls.next(ItemIDFromRef(sourceRef)); err != nil {
		return nil, err
	}
	return &services.Asset{
		Body:        &closer{Reader: bytes.NewReader(a.Content), err: a.CloseErr},
		Size:        int64(len(a.Content)),
		ContentType: "video/mp4",
	}, nil
}

type closer struct {
	io.Reader
	err error
}

func (c *closer) Close() error { return c.err }

// FakeAuth is a [services.AuthClient] issuing "token-1", "token-2", ...
//
// Errs are returned by the first calls, one each; Err by every call after that.
type FakeAuth struct {
	TTL  time.Duration // zero issues tokens without expiry
	Err  error
	Errs []error

	mu    sync.Mutex
	Calls int
}

func (a *FakeAuth) AccessToken(ctx context.Context) (*services.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	if len(a.Errs) > 0 {
		err := a.Errs[0]
		a.Errs = a.Errs[1:]
		return nil, err
	}
	if a.Err != nil {
		return nil, a.Err
	}
	token := &services.Token{Value: fmt.Sprintf("token-%d", a.Calls)}
	if a.TTL > 0 {
		token.ExpiresAt = time.Now().Add(a.TTL)
	}
	return token, nil
}

// TokenCalls returns the number of tokens issued or refused.
func (a *FakeAuth) TokenCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Calls
}

// FakeImporter is a [services.ImportClient] that records every submission.
//
// Tokens listed in Reject get a 401. Uploaded files are read so tests can check what was staged.
// When Release is set, each submission reports its item id on Entered and then waits for Release to close.
type FakeImporter struct {
	Reject  map[string]bool
	Entered chan string
	Release chan struct{}

	calls    script
	mu       sync.Mutex
	Requests []services.ImportRequest
	Tokens   []string
	Uploads  map[string][]byte
}

// NewFakeImporter creates an empty FakeImporter.
func NewFakeImporter() *FakeImporter {
	return &FakeImporter{Reject: map[string]bool{}, Uploads: map[string][]byte{}}
}

// Fail queues errors returned by the next submissions for itemID.
func (f *FakeImporter) Fail(itemID string, errs ...error) { f.calls.fail(itemID, errs...) }

// Calls returns how often itemID was submitted.
func (f *FakeImporter) Calls(itemID string) int { return f.calls.count(itemID) }

// TotalCalls returns the number of submissions across all items.
func (f *FakeImporter) TotalCalls() int { return f.calls.total() }

// Keys returns the idempotency keys sent for itemID, in order.
func (f *FakeImporter) Keys(itemID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, req := range f.Requests {
		if requestItemID(req) == itemID {
			keys = append(keys, req.IdempotencyKey)
		}
	}
	return keys
}

func (f *FakeImporter) SubmitImport(ctx context.Context, req services.ImportRequest, token *services.Token) (*services.ImportResult, error) {
	id := requestItemID(req)

	if f.Release != nil {
		if f.Entered != nil {
			f.Entered <- id
		}
		<-f.Release
	}

	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	f.Tokens = append(f.Tokens, token.Value)
	rejected := f.Reject[token.Value]
	f.mu.Unlock()

	if err := f.calls.next(id); err != nil {
		return nil, err
	}
	if rejected {
		return nil, shared.NewStatusError(http.StatusUnauthorized, []byte(`{"error":"invalid_token"}`))
	}

	if req.AssetPath != "" {
		data, err := os.ReadFile(req.AssetPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrRemoteTransfer, err)
		}
		f.mu.Lock()
		f.Uploads[id] = data
		f.mu.Unlock()
	}

	return &services.ImportResult{RemoteID: "1", UUID: "pt-" + id}, nil
}

func requestItemID(req services.ImportRequest) string {
	if req.AssetPath != "" {
		return ItemIDFromRef(req.AssetPath)
	}
	return ItemIDFromRef(req.TargetURL)
}
