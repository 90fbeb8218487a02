package credentials

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenSafetyMargin is subtracted from a token's expires_in so a
// request started just before expiry doesn't race the clock.
const tokenSafetyMargin = 30 * time.Second

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// TokenCache resolves and caches OAuth2 client-credentials grants
// per token URL + client ID pair, using golang.org/x/oauth2's
// clientcredentials flow.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
}

func NewTokenCache() *TokenCache {
	return &TokenCache{tokens: make(map[string]cachedToken)}
}

func cacheKey(tokenURL, clientID string) string { return tokenURL + "|" + clientID }

// Token returns a cached access token if still fresh, otherwise fetches
// a new one via the client-credentials grant and caches it until
// expiry minus a safety margin.
func (c *TokenCache) Token(ctx context.Context, tokenURL, clientID, clientSecret string) (string, error) {
	key := cacheKey(tokenURL, clientID)

	c.mu.Lock()
	if t, ok := c.tokens[key]; ok && time.Now().Before(t.expiresAt) {
		c.mu.Unlock()
		return t.accessToken, nil
	}
	c.mu.Unlock()

	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	token, err := cfg.Token(ctx)
	if err != nil {
		return "", err
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	expiresAt = expiresAt.Add(-tokenSafetyMargin)

	c.mu.Lock()
	c.tokens[key] = cachedToken{accessToken: token.AccessToken, expiresAt: expiresAt}
	c.mu.Unlock()

	return token.AccessToken, nil
}

// Invalidate drops a cached token so the next Token call fetches a
// fresh one, used after a 401 from the resource server.
func (c *TokenCache) Invalidate(tokenURL, clientID string) {
	c.mu.Lock()
	delete(c.tokens, cacheKey(tokenURL, clientID))
	c.mu.Unlock()
}
