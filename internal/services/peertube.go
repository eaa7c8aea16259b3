// PeerTube implementation of [AuthClient] and [ImportClient]
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/desertthunder/yt2pt/internal/shared"
	"golang.org/x/oauth2"
)

const (
	peertubeClientPath = "/api/v1/oauth-clients/local"
	peertubeTokenPath  = "/api/v1/users/token"
	peertubeUploadPath = "/api/v1/videos/upload"
	peertubeImportPath = "/api/v1/videos/imports"
)

type peertubeClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type peertubeVideoResponse struct {
	Video struct {
		ID        int64  `json:"id"`
		UUID      string `json:"uuid"`
		ShortUUID string `json:"shortUUID"`
	} `json:"video"`
}

// PeerTubeService implements [AuthClient] and [ImportClient] for a PeerTube instance.
type PeerTubeService struct {
	api      *apiClient
	instance string
	username string
	password string

	mu     sync.Mutex
	client *peertubeClient
}

// NewPeerTubeService creates a PeerTube client from destination settings.
func NewPeerTubeService(cfg shared.DestinationConfig, client *http.Client) *PeerTubeService {
	return &PeerTubeService{
		api:      newAPIClient(cfg.Instance, client, cfg.RateLimit),
		instance: strings.TrimRight(cfg.Instance, "/"),
		username: cfg.Username,
		password: cfg.Password,
	}
}

// Name returns the service name.
func (p *PeerTubeService) Name() string {
	return "PeerTube"
}

// AccessToken exchanges the account credentials for a bearer token with the OAuth2 password grant.
//
// Rejected credentials are reported as [shared.ErrAuth]; server and network failures are left retryable.
func (p *PeerTubeService) AccessToken(ctx context.Context) (*Token, error) {
	if p.username == "" || p.password == "" {
		return nil, fmt.Errorf("%w: peertube username/password", shared.ErrMissingCredentials)
	}

	oc, err := p.oauthClient(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &oauth2.Config{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.instance + peertubeTokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	if err := p.api.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	tctx := context.WithValue(ctx, oauth2.HTTPClient, p.api.httpClient)
	tok, err := cfg.PasswordCredentialsToken(tctx, p.username, p.password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			if re.Response.StatusCode >= 500 || re.Response.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("peertube token: %w", shared.NewStatusError(re.Response.StatusCode, re.Body))
			}
			p.forgetClient()
			return nil, fmt.Errorf("%w: peertube token: %w", shared.ErrAuth, err)
		}
		return nil, fmt.Errorf("%w: peertube token: %w", shared.ErrRemoteTransfer, err)
	}

	return &Token{Value: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

// oauthClient returns the instance's local OAuth client, fetching it once.
func (p *PeerTubeService) oauthClient(ctx context.Context) (*peertubeClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	var oc peertubeClient
	if err := p.api.getJSON(ctx, peertubeClientPath, nil, &oc); err != nil {
		return nil, fmt.Errorf("peertube oauth client: %w", err)
	}
	if oc.ClientID == "" {
		return nil, fmt.Errorf("%w: peertube returned no oauth client", shared.ErrAuth)
	}
	p.client = &oc
	return p.client, nil
}

func (p *PeerTubeService) forgetClient() {
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
}

// SubmitImport uploads req.AssetPath, or asks the instance to import req.TargetURL when no file is staged.
//
// The idempotency key travels as the Idempotency-Key header.
func (p *PeerTubeService) SubmitImport(ctx context.Context, req ImportRequest, token *Token) (*ImportResult, error) {
	if token == nil || token.Value == "" {
		return nil, fmt.Errorf("%w: no access token", shared.ErrAuth)
	}
	if req.ChannelID == "" {
		return nil, fmt.Errorf("%w: destination channel", shared.ErrMissingArgument)
	}

	path := peertubeUploadPath
	if req.AssetPath == "" {
		if req.TargetURL == "" {
			return nil, fmt.Errorf("%w: neither asset path nor target url", shared.ErrMissingArgument)
		}
		path = peertubeImportPath
	}

	body, contentType, err := multipartBody(req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	httpReq, err := p.api.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+token.Value)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var resp peertubeVideoResponse
	if err := p.api.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("peertube %s: %w", strings.TrimPrefix(path, "/api/v1/"), err)
	}

	return &ImportResult{
		RemoteID: fmt.Sprint(resp.Video.ID),
		UUID:     resp.Video.UUID,
	}, nil
}

// multipartBody streams the form through a pipe so large files are never buffered.
func multipartBody(req ImportRequest) (io.ReadCloser, string, error) {
	var file *os.File
	if req.AssetPath != "" {
		f, err := os.Open(req.AssetPath)
		if err != nil {
			return nil, "", fmt.Errorf("%w: open staged asset: %w", shared.ErrRemoteTransfer, err)
		}
		file = f
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		if file != nil {
			defer file.Close()
		}
		pw.CloseWithError(writeForm(mw, req, file))
	}()

	return pr, mw.FormDataContentType(), nil
}

func writeForm(mw *multipart.Writer, req ImportRequest, file *os.File) error {
	fields := [][2]string{
		{"channelId", req.ChannelID},
		{"name", shared.Truncate(req.Title, 120)},
		{"description", req.Description},
	}
	if file == nil {
		fields = append(fields, [2]string{"targetUrl", req.TargetURL})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	if file != nil {
		h := make(textproto.MIMEHeader)
		name := filepath.Base(file.Name())
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="videofile"; filename="%s"`, name))
		ct := mime.TypeByExtension(filepath.Ext(name))
		if ct == "" {
			ct = "video/mp4"
		}
		h.Set("Content-Type", ct)

		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
	}

	return mw.Close()
}
