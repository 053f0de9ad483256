package fakeapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-rail-auth/internal/errors"
)

const (
	issuer             = "nextgen-rail-dev"
	refreshTokenLength = 32
)

// storedRefreshToken is the server side record of an opaque refresh token.
type storedRefreshToken struct {
	Token  string
	UserID string
	Iat    time.Time
}

// accessClaims are the claims carried by an access token.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// tokenIssuer signs HS256 access tokens, rotates opaque refresh tokens (one
// per user) and remembers revoked access tokens until they expire.
type tokenIssuer struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time

	lock         sync.RWMutex
	refresh      map[string]*storedRefreshToken
	userRefresh  map[string]string    // user id to refresh token
	revokedUntil map[string]time.Time // jti to access token expiry
}

func newTokenIssuer(secret string, accessExpiry, refreshExpiry time.Duration, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           now,
		refresh:       make(map[string]*storedRefreshToken),
		userRefresh:   make(map[string]string),
		revokedUntil:  make(map[string]time.Time),
	}
}

// issue creates a fresh token pair for the user, replacing any refresh token
// they already hold.
func (t *tokenIssuer) issue(userID, email string) (access, refresh string, err error) {
	access, err = t.createAccessToken(userID, email)
	if err != nil {
		return "", "", err
	}
	refresh, err = t.createRefreshToken(userID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (t *tokenIssuer) createAccessToken(userID, email string) (string, error) {
	now := t.now()
	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessExpiry)),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("[tokenIssuer] sign access token: %w", err)
	}
	return signed, nil
}

func (t *tokenIssuer) createRefreshToken(userID string) (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("[tokenIssuer] generate refresh token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	t.lock.Lock()
	defer t.lock.Unlock()
	if existing, ok := t.userRefresh[userID]; ok {
		delete(t.refresh, existing)
	}
	t.refresh[token] = &storedRefreshToken{Token: token, UserID: userID, Iat: t.now()}
	t.userRefresh[userID] = token
	return token, nil
}

// redeem consumes a refresh token and returns the user it was issued to.
func (t *tokenIssuer) redeem(token string) (string, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	rt, ok := t.refresh[token]
	if !ok {
		return "", apperrors.ErrInvalidRefreshToken
	}
	delete(t.refresh, token)
	delete(t.userRefresh, rt.UserID)

	if t.now().Sub(rt.Iat) > t.refreshExpiry {
		return "", apperrors.ErrRefreshTokenExpired
	}
	return rt.UserID, nil
}

// verify checks an access token's signature, expiry and revocation.
func (t *tokenIssuer) verify(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		if apperrors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	if !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}

	t.lock.RLock()
	_, revoked := t.revokedUntil[claims.ID]
	t.lock.RUnlock()
	if revoked {
		return nil, apperrors.ErrTokenRevoked
	}
	return claims, nil
}

// revoke ends a user's session: the refresh token is dropped and the access
// token is refused until it would have expired anyway.
func (t *tokenIssuer) revoke(claims *accessClaims) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if token, ok := t.userRefresh[claims.Subject]; ok {
		delete(t.refresh, token)
		delete(t.userRefresh, claims.Subject)
	}
	if claims.ExpiresAt != nil {
		t.revokedUntil[claims.ID] = claims.ExpiresAt.Time
	}

	now := t.now()
	for jti, exp := range t.revokedUntil {
		if now.After(exp) {
			delete(t.revokedUntil, jti)
		}
	}
}
