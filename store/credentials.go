package store

import (
	"context"
	"encoding/json"

	"github.com/jrsteele09/go-rail-auth/authmodel"
	"github.com/rs/zerolog/log"
)

// Credentials gives typed access to the credential keys of a Store.
//
// Reads report failures as absence. Writes never fail the caller: a store
// error is logged and the in-memory session stays authoritative until the
// next successful write.
type Credentials struct {
	store Store
}

func NewCredentials(s Store) *Credentials {
	return &Credentials{store: s}
}

// Store returns the underlying key-value store.
func (c *Credentials) Store() Store {
	return c.store
}

// AccessToken returns the stored access token, if any.
func (c *Credentials) AccessToken(ctx context.Context) (string, bool) {
	return c.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, if any.
func (c *Credentials) RefreshToken(ctx context.Context) (string, bool) {
	return c.get(ctx, KeyRefreshToken)
}

// Tokens returns the stored token pair. The pair is only reported when both
// halves are present; a lone token reads as logged out.
func (c *Credentials) Tokens(ctx context.Context) (authmodel.Tokens, bool) {
	access, ok := c.AccessToken(ctx)
	if !ok {
		return authmodel.Tokens{}, false
	}
	refresh, ok := c.RefreshToken(ctx)
	if !ok {
		return authmodel.Tokens{}, false
	}
	return authmodel.Tokens{AccessToken: access, RefreshToken: refresh}, true
}

// SaveTokens writes both tokens. It reports whether every write succeeded.
func (c *Credentials) SaveTokens(ctx context.Context, t authmodel.Tokens) bool {
	ok := c.set(ctx, KeyAccessToken, t.AccessToken)
	return c.set(ctx, KeyRefreshToken, t.RefreshToken) && ok
}

// SaveUser caches the signed-in user as JSON.
func (c *Credentials) SaveUser(ctx context.Context, u authmodel.User) bool {
	data, err := json.Marshal(u)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode cached user")
		return false
	}
	return c.set(ctx, KeyUser, string(data))
}

// CachedUser returns the cached user. Corrupt JSON reads as absent.
func (c *Credentials) CachedUser(ctx context.Context) (authmodel.User, bool) {
	raw, ok := c.get(ctx, KeyUser)
	if !ok {
		return authmodel.User{}, false
	}
	var u authmodel.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Warn().Err(err).Msg("Cached user is corrupt, ignoring")
		return authmodel.User{}, false
	}
	return u, true
}

// Clear removes every credential key.
func (c *Credentials) Clear(ctx context.Context) bool {
	ok := true
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		if err := c.store.Remove(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to remove credential")
			ok = false
		}
	}
	return ok
}

func (c *Credentials) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to read credential")
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (c *Credentials) set(ctx context.Context, key, value string) bool {
	if err := c.store.Set(ctx, key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to write credential")
		return false
	}
	return true
}
