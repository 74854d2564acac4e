package gateway

import "time"

const (
	// defaultTokenLifetime is assumed when the token endpoint omits
	// expires_in.
	defaultTokenLifetime = 3000 * time.Second

	// refreshMargin is how early a cached token is considered stale, so a
	// request never goes out with a token about to expire mid-flight.
	refreshMargin = 60 * time.Second
)

// tokenCache holds one OAuth2 access token per adapter instance. The adapter
// serializes access with its own mutex; the cache itself is not locked.
type tokenCache struct {
	accessToken string
	expiresAt   time.Time
	now         func() time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{now: time.Now}
}

// get returns the cached token, or "" when absent or stale.
func (c *tokenCache) get() string {
	if c.accessToken == "" || !c.now().Before(c.expiresAt) {
		return ""
	}
	return c.accessToken
}

// put caches a token for lifetime, refreshing early by refreshMargin. Tokens
// shorter than the margin keep their full lifetime so they are still usable
// at all.
func (c *tokenCache) put(token string, lifetime time.Duration) {
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	if lifetime > refreshMargin {
		lifetime -= refreshMargin
	}
	c.accessToken = token
	c.expiresAt = c.now().Add(lifetime)
}
