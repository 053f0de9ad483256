package authmodel

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const TokenTypeBearer = "Bearer"

// Tokens is the access/refresh pair persisted by the credential store.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Complete reports whether both halves of the pair are present.
func (t Tokens) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

// OAuth2 converts the pair into an oauth2.Token so callers can use
// SetAuthHeader and friends. The expiry is read from the access token when
// it is a JWT.
func (t Tokens) OAuth2() *oauth2.Token {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = TokenTypeBearer
	}
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
	}
	if exp, ok := AccessTokenExpiry(t.AccessToken); ok {
		tok.Expiry = exp
	}
	return tok
}

// AccessTokenExpiry extracts the exp claim of a JWT access token without
// verifying its signature. Tokens are opaque to the client, so a token that
// isn't a JWT or carries no exp simply reports false.
func AccessTokenExpiry(accessToken string) (time.Time, bool) {
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
