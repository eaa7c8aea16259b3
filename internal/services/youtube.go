// YouTube Data API v3 implementation of [CatalogClient]
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/yt2pt/internal/shared"
)

const (
	defaultYTBaseURL  = "https://www.googleapis.com/youtube/v3"
	defaultYTPageSize = 50
	youtubeWatchURL   = "https://www.youtube.com/watch?v="
)

type youtubeChannelList struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
		Statistics struct {
			VideoCount string `json:"videoCount"` // the API encodes counts as strings
		} `json:"statistics"`
	} `json:"items"`
}

// YouTubePlaylistItem is one entry of a playlistItems response.
type YouTubePlaylistItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ResourceID  struct {
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
	ContentDetails struct {
		VideoID          string `json:"videoId"`
		VideoPublishedAt string `json:"videoPublishedAt"`
	} `json:"contentDetails"`
}

type youtubePlaylistItemList struct {
	Items         []YouTubePlaylistItem `json:"items"`
	NextPageToken string                `json:"nextPageToken"`
	PageInfo      struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
}

// YouTubeService implements [CatalogClient] for the YouTube Data API.
type YouTubeService struct {
	api      *apiClient
	apiKey   string
	pageSize int
}

// NewYouTubeService creates a YouTube catalog client from source settings.
func NewYouTubeService(cfg shared.SourceConfig, client *http.Client) *YouTubeService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultYTPageSize {
		pageSize = defaultYTPageSize
	}

	return &YouTubeService{
		api:      newAPIClient(baseURL, client, cfg.RateLimit),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube"
}

// GetChannelMetadata resolves a channel ID (UC...) or handle (@name) to its uploads playlist.
func (y *YouTubeService) GetChannelMetadata(ctx context.Context, channelRef string) (*ChannelMetadata, error) {
	channelRef = strings.TrimSpace(channelRef)
	if channelRef == "" {
		return nil, fmt.Errorf("%w: channel reference", shared.ErrMissingArgument)
	}

	query := url.Values{}
	query.Set("part", "snippet,contentDetails,statistics")
	query.Set("key", y.apiKey)
	if strings.HasPrefix(channelRef, "@") {
		query.Set("forHandle", channelRef)
	} else {
		query.Set("id", channelRef)
	}

	var list youtubeChannelList
	if err := y.api.getJSON(ctx, "/channels", query, &list); err != nil {
		return nil, fmt.Errorf("youtube channels: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrChannelNotFound, channelRef)
	}

	ch := list.Items[0]
	uploads := ch.ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return nil, fmt.Errorf("youtube channel %s has no uploads playlist", ch.ID)
	}

	count, _ := strconv.Atoi(ch.Statistics.VideoCount)

	return &ChannelMetadata{
		ID:             ch.ID,
		Name:           ch.Snippet.Title,
		ItemCount:      count,
		PaginationRoot: uploads,
	}, nil
}

// ListPage fetches one page of the uploads playlist.
//
// Entries without a video ID (removed videos) are skipped.
func (y *YouTubeService) ListPage(ctx context.Context, paginationRoot, cursor string) (*Page, error) {
	query := url.Values{}
	query.Set("part", "snippet,contentDetails")
	query.Set("playlistId", paginationRoot)
	query.Set("maxResults", strconv.Itoa(y.pageSize))
	query.Set("key", y.apiKey)
	if cursor != "" {
		query.Set("pageToken", cursor)
	}

	var list youtubePlaylistItemList
	if err := y.api.getJSON(ctx, "/playlistItems", query, &list); err != nil {
		return nil, fmt.Errorf("youtube playlistItems: %w", err)
	}

	page := &Page{
		Items:      make([]CatalogEntry, 0, len(list.Items)),
		NextCursor: list.NextPageToken,
	}
	for _, item := range list.Items {
		entry, ok := item.entry()
		if !ok {
			continue
		}
		page.Items = append(page.Items, entry)
	}
	return page, nil
}

func (i YouTubePlaylistItem) entry() (CatalogEntry, bool) {
	videoID := i.ContentDetails.VideoID
	if videoID == "" {
		videoID = i.Snippet.ResourceID.VideoID
	}
	if videoID == "" {
		return CatalogEntry{}, false
	}

	entry := CatalogEntry{
		ItemID:      videoID,
		Title:       i.Snippet.Title,
		Description: i.Snippet.Description,
		SourceRef:   youtubeWatchURL + videoID,
	}
	if ts, err := time.Parse(time.RFC3339, i.ContentDetails.VideoPublishedAt); err == nil {
		entry.PublishedAt = ts
	}
	return entry, true
}
