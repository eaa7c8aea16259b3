package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/yt2pt/internal/services"
)

const (
	defaultTokenSkew = 30 * time.Second
	defaultTokenTTL  = time.Hour
)

// TokenCache hands out a destination access token, fetching a new one only when the cached token is about to expire
// or has been invalidated after a 401.
type TokenCache struct {
	auth services.AuthClient
	skew time.Duration
	now  func() time.Time

	mu    sync.Mutex
	token *services.Token
}

// NewTokenCache creates a TokenCache backed by auth.
func NewTokenCache(auth services.AuthClient) *TokenCache {
	return &TokenCache{auth: auth, skew: defaultTokenSkew, now: time.Now}
}

// Get returns the cached token while it is valid, otherwise a fresh one.
//
// Tokens without an expiry are kept for an hour.
func (c *TokenCache) Get(ctx context.Context) (*services.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.Valid(now, c.skew) {
		return c.token, nil
	}

	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token.ExpiresAt.IsZero() {
		token = &services.Token{Value: token.Value, ExpiresAt: now.Add(defaultTokenTTL)}
	}
	c.token = token
	return token, nil
}

// Invalidate drops stale from the cache. A token fetched since stale was handed out is kept.
func (c *TokenCache) Invalidate(stale *services.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil || stale == nil || c.token.Value == stale.Value {
		c.token = nil
	}
}
