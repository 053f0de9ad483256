// Package store persists the client's credentials: the access token, the
// refresh token and a cached copy of the signed-in user.
package store

import "context"

// Keys under which credentials are stored.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// Store is a durable string key-value store. A missing key is reported with
// ok == false and no error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
