// Asset download clients: yt-dlp subprocess and plain HTTP
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"

	"github.com/desertthunder/yt2pt/internal/shared"
	"golang.org/x/time/rate"
)

const defaultDownloader = "yt-dlp"

// permanentMarkers are yt-dlp error fragments for items that will never become downloadable.
var permanentMarkers = []string{
	"Video unavailable",
	"Private video",
	"This video has been removed",
	"members-only",
	"Sign in to confirm your age",
}

// YTDLPAssetClient streams media by running yt-dlp with output to stdout.
type YTDLPAssetClient struct {
	binary string
	args   []string
}

// NewYTDLPAssetClient creates a client running binary (default "yt-dlp") with extra args before the URL.
func NewYTDLPAssetClient(binary string, args []string) *YTDLPAssetClient {
	if binary == "" {
		binary = defaultDownloader
	}
	return &YTDLPAssetClient{binary: binary, args: args}
}

// FetchAsset starts yt-dlp for sourceRef. The process exit status is reported by Body.Close.
func (y *YTDLPAssetClient) FetchAsset(ctx context.Context, sourceRef string) (*Asset, error) {
	args := append([]string{}, y.args...)
	args = append(args, "--no-progress", "-o", "-", sourceRef)

	cmd := exec.CommandContext(ctx, y.binary, args...)
	stderr := &headBuffer{max: 2048}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: yt-dlp stdout: %w", shared.ErrRemoteTransfer, err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not found in PATH", shared.ErrMissingConfig, y.binary)
		}
		return nil, fmt.Errorf("%w: start yt-dlp: %w", shared.ErrRemoteTransfer, err)
	}

	return &Asset{
		Body:        &processStream{stdout: stdout, cmd: cmd, stderr: stderr},
		Size:        -1,
		ContentType: "video/mp4",
	}, nil
}

// processStream reads a child's stdout; Close reaps the child and reports its exit status.
type processStream struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	stderr *headBuffer

	eof   bool
	once  sync.Once
	close error
}

func (s *processStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == io.EOF {
		s.eof = true
	}
	return n, err
}

// Close kills the child if the stream was abandoned early, then waits for it.
func (s *processStream) Close() error {
	s.once.Do(func() {
		if !s.eof {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
			return
		}
		if err := s.cmd.Wait(); err != nil {
			msg := strings.TrimSpace(s.stderr.String())
			sentinel := shared.ErrRemoteTransfer
			for _, marker := range permanentMarkers {
				if strings.Contains(msg, marker) {
					sentinel = shared.ErrRejected
					break
				}
			}
			s.close = fmt.Errorf("%w: yt-dlp: %v: %s", sentinel, err, msg)
		}
	})
	return s.close
}

// headBuffer keeps the first max bytes written to it.
type headBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *headBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *headBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// HTTPAssetClient downloads direct media URLs.
type HTTPAssetClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPAssetClient creates an HTTP asset client allowing rps requests per second.
func NewHTTPAssetClient(client *http.Client, rps float64) *HTTPAssetClient {
	api := newAPIClient("", client, rps)
	return &HTTPAssetClient{httpClient: api.httpClient, limiter: api.limiter}
}

// FetchAsset issues a GET for sourceRef and returns the response body as the stream.
func (h *HTTPAssetClient) FetchAsset(ctx context.Context, sourceRef string) (*Asset, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceRef, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRemoteTransfer, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %w", shared.ErrRemoteTransfer, shared.NewStatusError(resp.StatusCode, body))
	}

	return &Asset{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// NewAssetClient picks the asset client for a downloader setting: "http" or a yt-dlp compatible binary.
func NewAssetClient(cfg shared.SourceConfig, client *http.Client) AssetClient {
	if cfg.Downloader == "http" {
		return NewHTTPAssetClient(client, cfg.RateLimit)
	}
	return NewYTDLPAssetClient(cfg.Downloader, cfg.DownloaderArgs)
}
