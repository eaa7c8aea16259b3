// Shared HTTP plumbing for the provider clients
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/yt2pt/internal/shared"
	"golang.org/x/time/rate"
)

const userAgent = "yt2pt/1.0"

// apiClient issues rate limited JSON requests against a base URL.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// newAPIClient creates an apiClient allowing rps requests per second. A non-positive rps disables limiting.
func newAPIClient(baseURL string, client *http.Client, rps float64) *apiClient {
	if client == nil {
		client = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    limiter,
	}
}

// newRequest builds a request for path, waiting on the limiter first.
func (a *apiClient) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a 2xx JSON body into result. Other statuses become [*shared.StatusError].
func (a *apiClient) do(req *http.Request, result any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return shared.NewStatusError(resp.StatusCode, body)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// getJSON performs a GET and decodes the JSON response.
func (a *apiClient) getJSON(ctx context.Context, path string, query url.Values, result any) error {
	req, err := a.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return a.do(req, result)
}
